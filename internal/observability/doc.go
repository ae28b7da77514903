// Package observability builds the zap logger and the Prometheus collectors
// shared by the API and worker binaries.
package observability
