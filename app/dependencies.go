package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/upb/signalops/auth"
	"github.com/upb/signalops/config"
	"github.com/upb/signalops/internal/observability"
	"github.com/upb/signalops/internal/queue"
	"github.com/upb/signalops/middleware"
	"github.com/upb/signalops/repositories"
	"github.com/upb/signalops/repositories/postgres"
	"github.com/upb/signalops/services/apikeys"
	"github.com/upb/signalops/services/billing"
	"github.com/upb/signalops/services/ingestion"
	"github.com/upb/signalops/services/notifications"
	"github.com/upb/signalops/services/outbox"
	"github.com/upb/signalops/services/rules"
	"github.com/upb/signalops/services/usage"
	"go.uber.org/zap"
)

// Dependencies holds everything both binaries need.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config   *config.Config
	DB       *postgres.DB
	Redis    *redis.Client
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Ingestion side
	Usage       *usage.Service
	Billing     *billing.Service
	Producer    *queue.RedisProducer
	Ingestion   *ingestion.Service
	APIKeys     *apikeys.Service
	DeadLetters *queue.DeadLetterReader
	Relay       *outbox.Relay

	// Consumer side
	Rules         *rules.Engine
	Notifications *notifications.Registry
	Dispatcher    *notifications.Dispatcher

	// Auth
	APIKeyMiddleware *middleware.APIKeyMiddleware
	AuthMiddleware   *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics()

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize Redis
	if err := deps.initRedis(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	deps.initRepositories()
	deps.initServices(cfg)

	if err := deps.initNotifications(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize notifications: %w", err)
	}

	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initMetrics creates a dedicated registry so /metrics only exposes what we register
func (d *Dependencies) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewMetrics(d.Registry)
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if cfg.Database.InitSchema {
		if err := factory.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}

func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config) error {
	opts, err := redisOptions(cfg.Redis)
	if err != nil {
		return err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Redis = client
	d.Logger.Info("redis connection established", zap.String("connection", cfg.Redis.LogString()))
	return nil
}

// redisOptions prefers REDIS_URL and falls back to host/port settings
func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.Repos = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.Usage = usage.NewService(d.Repos.Usage, d.Metrics, d.Logger)
	d.Billing = billing.NewService(d.Repos.Usage, d.Logger)
	d.Producer = queue.NewRedisProducer(d.Redis, cfg.Queue.EventStream, d.Logger)
	d.Ingestion = ingestion.NewService(
		d.TxManager,
		d.Repos,
		d.Usage,
		d.Producer,
		ingestion.Config{OutboxEnabled: cfg.Outbox.Enabled},
		d.Metrics,
		d.Logger,
	)
	d.APIKeys = apikeys.NewService(d.Repos.APIKeys, d.Repos.Tenants, cfg.Auth.APIKeyPrefixLength, d.Logger)
	d.DeadLetters = queue.NewDeadLetterReader(d.Redis, cfg.Queue.DeadLetterStream, d.Logger)
	d.Relay = outbox.NewRelay(
		d.TxManager,
		d.Repos.Outbox,
		d.Ingestion,
		outbox.Config{PollInterval: cfg.Outbox.PollInterval, BatchSize: cfg.Outbox.BatchSize},
		d.Metrics,
		d.Logger,
	)
	d.Rules = rules.NewEngine(ruleSource(d.Repos.Rules, cfg.Rules), d.Logger)
}

// ruleSource puts the TTL cache in front of the rule repository when enabled
func ruleSource(repo repositories.RuleRepository, cfg config.RulesConfig) repositories.RuleRepository {
	if cfg.CacheTTL <= 0 {
		return repo
	}
	return rules.NewCachedRepository(repo, rules.NewCache(cfg.CacheSize, cfg.CacheTTL))
}

func (d *Dependencies) initNotifications(cfg *config.Config) error {
	registry, err := newNotificationRegistry(cfg.Notifications, d.Logger)
	if err != nil {
		return err
	}
	d.Notifications = registry
	d.Dispatcher = notifications.NewDispatcher(d.Repos.NotificationConfigs, registry, d.Metrics, d.Logger)
	return nil
}

// newNotificationRegistry registers one provider per supported channel
func newNotificationRegistry(cfg config.NotificationsConfig, logger *zap.Logger) (*notifications.Registry, error) {
	registry := notifications.NewRegistry()

	providers := []notifications.Provider{
		notifications.NewEmailProvider(notifications.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, logger),
		notifications.NewTelegramProvider(notifications.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			BaseURL:  cfg.Telegram.BaseURL,
			Timeout:  cfg.Telegram.Timeout,
		}, logger),
		notifications.NewWhatsAppProvider(logger),
	}
	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP not configured, email notifications are logged only")
	}
	if cfg.Telegram.BotToken == "" {
		logger.Warn("telegram bot token not configured, telegram notifications are logged only")
	}
	return registry, nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	d.APIKeyMiddleware = middleware.NewAPIKeyMiddleware(d.APIKeys, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer), d.Logger)
	if cfg.Auth.JWTSecret == "" || cfg.Auth.JWTSecret == config.DefaultJWTSecret {
		d.Logger.Warn("using the development JWT secret")
	}
}

// Close gracefully shuts down all dependencies. Calling it twice is safe.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
		d.Redis = nil
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
		d.DB = nil
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
