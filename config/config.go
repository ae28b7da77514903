package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is the development fallback rejected in production
const DefaultJWTSecret = "change-me"

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Queue         QueueConfig
	Outbox        OutboxConfig
	Rules         RulesConfig
	Auth          AuthConfig
	Notifications NotificationsConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	InitSchema       bool
}

// RedisConfig holds the queue backend connection settings.
// When URL (from REDIS_URL) is set, it takes precedence over individual fields.
type RedisConfig struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
}

// QueueConfig holds event queue and worker settings
type QueueConfig struct {
	EventStream       string
	DeadLetterStream  string
	ConsumerGroup     string
	ConsumerName      string
	MaxAttempts       int
	BackoffBase       time.Duration
	JobTimeout        time.Duration
	BatchSize         int64
	Block             time.Duration
	Concurrency       int
	// ReclaimMinIdle must exceed BatchWindow or jobs still queued in a
	// worker's local batch get claimed by a second consumer
	ReclaimMinIdle    time.Duration
	ReclaimInterval   time.Duration
	SchedulerInterval time.Duration
}

// BatchWindow is the longest a delivery can sit in one read batch before its
// attempt ends
func (q QueueConfig) BatchWindow() time.Duration {
	return time.Duration(q.BatchSize) * q.JobTimeout
}

// OutboxConfig holds transactional outbox relay settings
type OutboxConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
}

// RulesConfig holds worker-side rule lookup settings.
// A zero CacheTTL disables the rule cache.
type RulesConfig struct {
	CacheTTL  time.Duration
	CacheSize int
}

// AuthConfig holds API-key and operator token settings
type AuthConfig struct {
	JWTSecret          string
	JWTIssuer          string
	APIKeyPrefixLength int
}

// NotificationsConfig holds channel provider settings
type NotificationsConfig struct {
	SMTP     SMTPConfig
	Telegram TelegramConfig
}

// SMTPConfig holds the email provider transport settings.
// An empty Host keeps the email provider in log-only mode.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// TelegramConfig holds the Bot API settings.
// An empty BotToken keeps the telegram provider in log-only mode.
type TelegramConfig struct {
	BotToken string
	BaseURL  string
	Timeout  time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
	MetricsPort    int
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			EventStream:       getEnv("EVENT_QUEUE_NAME", "events"),
			DeadLetterStream:  getEnv("DLQ_NAME", "events-dlq"),
			ConsumerGroup:     getEnv("QUEUE_CONSUMER_GROUP", "event-workers"),
			ConsumerName:      getEnv("QUEUE_CONSUMER_NAME", hostname),
			MaxAttempts:       getEnvAsInt("QUEUE_MAX_ATTEMPTS", 5),
			BackoffBase:       getEnvAsDuration("QUEUE_BACKOFF_BASE", 2*time.Second),
			JobTimeout:        getEnvAsDuration("QUEUE_JOB_TIMEOUT", 30*time.Second),
			BatchSize:         int64(getEnvAsInt("QUEUE_BATCH_SIZE", 10)),
			Block:             getEnvAsDuration("QUEUE_BLOCK", 5*time.Second),
			Concurrency:       getEnvAsInt("WORKER_CONCURRENCY", 4),
			ReclaimMinIdle:    getEnvAsDuration("QUEUE_RECLAIM_MIN_IDLE", 0),
			ReclaimInterval:   getEnvAsDuration("QUEUE_RECLAIM_INTERVAL", 30*time.Second),
			SchedulerInterval: getEnvAsDuration("QUEUE_SCHEDULER_INTERVAL", 500*time.Millisecond),
		},
		Outbox: OutboxConfig{
			Enabled:      getEnvAsBool("OUTBOX_ENABLED", false),
			PollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 100),
		},
		Rules: RulesConfig{
			CacheTTL:  getEnvAsDuration("RULES_CACHE_TTL", 30*time.Second),
			CacheSize: getEnvAsInt("RULES_CACHE_SIZE", 1000),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", DefaultJWTSecret),
			JWTIssuer:          getEnv("JWT_ISSUER", "signalops"),
			APIKeyPrefixLength: getEnvAsInt("API_KEY_PREFIX_LENGTH", 16),
		},
		Notifications: NotificationsConfig{
			SMTP: SMTPConfig{
				Host:     getEnv("SMTP_HOST", ""),
				Port:     getEnvAsInt("SMTP_PORT", 587),
				Username: getEnv("SMTP_USERNAME", ""),
				Password: getEnv("SMTP_PASSWORD", ""),
				From:     getEnv("SMTP_FROM", "alerts@signalops.local"),
			},
			Telegram: TelegramConfig{
				BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
				BaseURL:  getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
				Timeout:  getEnvAsDuration("TELEGRAM_TIMEOUT", 10*time.Second),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
	}

	if cfg.Queue.ReclaimMinIdle <= 0 {
		cfg.Queue.ReclaimMinIdle = cfg.Queue.BatchWindow() + cfg.Queue.JobTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Redis.URL == "" && c.Redis.Host == "" {
		return fmt.Errorf("redis configuration required: set REDIS_URL or REDIS_HOST")
	}

	if c.Queue.EventStream == "" || c.Queue.DeadLetterStream == "" {
		return fmt.Errorf("event queue and dead-letter queue names are required")
	}
	if c.Queue.EventStream == c.Queue.DeadLetterStream {
		return fmt.Errorf("dead-letter queue must differ from the event queue")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue max attempts must be at least 1")
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1")
	}
	if c.Queue.ReclaimMinIdle > 0 && c.Queue.ReclaimMinIdle <= c.Queue.BatchWindow() {
		return fmt.Errorf("QUEUE_RECLAIM_MIN_IDLE (%s) must exceed QUEUE_BATCH_SIZE x QUEUE_JOB_TIMEOUT (%s)",
			c.Queue.ReclaimMinIdle, c.Queue.BatchWindow())
	}

	if c.Auth.APIKeyPrefixLength <= 0 {
		return fmt.Errorf("api key prefix length must be positive")
	}
	if c.IsProduction() && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == DefaultJWTSecret) {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Addr returns the host:port pair used when no REDIS_URL is configured
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogString returns the redis endpoint without credentials
func (c *RedisConfig) LogString() string {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err == nil {
			return fmt.Sprintf("addr=%s db=%s", u.Host, strings.TrimPrefix(u.Path, "/"))
		}
		return "addr=<from REDIS_URL>"
	}
	return fmt.Sprintf("addr=%s db=%d", c.Addr(), c.DB)
}

// DelayedSet returns the sorted-set key holding jobs waiting for their retry delay
func (c *QueueConfig) DelayedSet() string {
	return c.EventStream + ":delayed"
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			InitSchema:       getEnvAsBool("DB_INIT_SCHEMA", true),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		Database:        getEnv("DB_NAME", "signalops"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		InitSchema:      getEnvAsBool("DB_INIT_SCHEMA", true),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 3000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 3000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
