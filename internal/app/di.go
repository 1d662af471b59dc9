// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/time/rate"

	applicationDomain "github.com/allisson/admissions/internal/application/domain"
	applicationHTTP "github.com/allisson/admissions/internal/application/http"
	applicationUseCase "github.com/allisson/admissions/internal/application/usecase"
	"github.com/allisson/admissions/internal/config"
	"github.com/allisson/admissions/internal/database"
	"github.com/allisson/admissions/internal/http"
	"github.com/allisson/admissions/internal/metrics"
	outboxHTTP "github.com/allisson/admissions/internal/outbox/http"
	"github.com/allisson/admissions/internal/outbox/publisher"
	outboxUseCase "github.com/allisson/admissions/internal/outbox/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	outboxMetrics   metrics.OutboxMetrics

	// Managers
	txManager database.TxManager

	// Outbox
	outboxRepository  outboxUseCase.OutboxEventRepository
	publisher         outboxUseCase.Publisher
	pubSubPublisher   *publisher.PubSubPublisher
	rabbitMQPublisher *publisher.RabbitMQPublisher
	rabbitMQConnector *publisher.RabbitMQConnector
	dispatcher        *outboxUseCase.Dispatcher
	healthMonitor     *outboxUseCase.HealthMonitor
	outboxWriter      *outboxUseCase.Writer
	outboxUseCase     outboxUseCase.UseCase
	outboxScheduler   *outboxUseCase.Scheduler
	outboxHandler     *outboxHTTP.OutboxHandler

	// Applications
	applicationRepository   applicationUseCase.ApplicationRepository
	transitionLogRepository applicationUseCase.TransitionLogRepository
	policy                  *applicationDomain.Policy
	transitionUseCase       applicationUseCase.TransitionUseCase
	applicationUseCase      applicationUseCase.UseCase
	applicationHandler      *applicationHTTP.ApplicationHandler

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                          sync.Mutex
	loggerInit                  sync.Once
	dbInit                      sync.Once
	txManagerInit               sync.Once
	metricsProviderInit         sync.Once
	businessMetricsInit         sync.Once
	outboxMetricsInit           sync.Once
	outboxRepositoryInit        sync.Once
	publisherInit               sync.Once
	dispatcherInit              sync.Once
	healthMonitorInit           sync.Once
	outboxWriterInit            sync.Once
	outboxUseCaseInit           sync.Once
	outboxSchedulerInit         sync.Once
	outboxHandlerInit           sync.Once
	applicationRepositoryInit   sync.Once
	transitionLogRepositoryInit sync.Once
	policyInit                  sync.Once
	transitionUseCaseInit       sync.Once
	applicationUseCaseInit      sync.Once
	applicationHandlerInit      sync.Once
	httpServerInit              sync.Once
	metricsServerInit           sync.Once
	initErrors                  map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = c.initMetricsProvider()
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. It is a no-op when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// OutboxMetrics returns the dispatcher and health recorder. It is a no-op when metrics are disabled.
func (c *Container) OutboxMetrics() (metrics.OutboxMetrics, error) {
	var err error
	c.outboxMetricsInit.Do(func() {
		c.outboxMetrics, err = c.initOutboxMetrics()
		if err != nil {
			c.initErrors["outboxMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxMetrics"]; exists {
		return nil, storedErr
	}
	return c.outboxMetrics, nil
}

// HTTPServer returns the HTTP server instance with every route registered.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	// Publishers close before the database.
	if c.pubSubPublisher != nil {
		if err := c.pubSubPublisher.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("pubsub publisher shutdown: %w", err))
		}
	}

	if c.rabbitMQPublisher != nil {
		if err := c.rabbitMQPublisher.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("rabbitmq publisher close: %w", err))
		}
	}

	if c.rabbitMQConnector != nil {
		if err := c.rabbitMQConnector.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("rabbitmq connection close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initMetricsProvider creates the OpenTelemetry provider backed by a Prometheus registry.
func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	provider, err := metrics.NewProvider(c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initOutboxMetrics creates the outbox metrics recorder.
func (c *Container) initOutboxMetrics() (metrics.OutboxMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for outbox metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpOutboxMetrics(), nil
	}
	return metrics.NewOutboxMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initHTTPServer creates the API server and registers the application and outbox routes.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	applicationHandler, err := c.ApplicationHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get application handler for http server: %w", err)
	}

	outboxHandler, err := c.OutboxHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox handler for http server: %w", err)
	}

	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, logger)
	server.SetupRouter(
		c.config,
		applicationHandler,
		outboxHandler,
		metricsProvider,
		c.config.MetricsNamespace,
	)

	return server, nil
}

// initMetricsServer creates the /metrics server when metrics are enabled.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if metricsProvider == nil {
		return nil, nil
	}
	monitor, err := c.HealthMonitor()
	if err != nil {
		return nil, fmt.Errorf("failed to get health monitor for metrics server: %w", err)
	}
	return http.NewMetricsServer(
		c.config.ServerHost,
		c.config.MetricsPort,
		c.Logger(),
		metricsProvider,
		monitor,
	), nil
}

// publishLimiter returns the dispatcher throttle, or nil when throttling is disabled.
func (c *Container) publishLimiter() *rate.Limiter {
	if c.config.OutboxPublishRatePerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.config.OutboxPublishRatePerSec), c.config.OutboxPublishBurst)
}
