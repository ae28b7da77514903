package handlers

import "errors"

var errNotConfigured = errors.New("dependency not configured")
