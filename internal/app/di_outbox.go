package app

import (
	"fmt"

	"github.com/allisson/admissions/internal/config"
	"github.com/allisson/admissions/internal/database"
	outboxHTTP "github.com/allisson/admissions/internal/outbox/http"
	"github.com/allisson/admissions/internal/outbox/publisher"
	outboxMySQL "github.com/allisson/admissions/internal/outbox/repository/mysql"
	outboxPostgreSQL "github.com/allisson/admissions/internal/outbox/repository/postgresql"
	outboxSQLite "github.com/allisson/admissions/internal/outbox/repository/sqlite"
	outboxUseCase "github.com/allisson/admissions/internal/outbox/usecase"
)

// OutboxRepository returns the outbox event repository based on database driver.
func (c *Container) OutboxRepository() (outboxUseCase.OutboxEventRepository, error) {
	var err error
	c.outboxRepositoryInit.Do(func() {
		c.outboxRepository, err = c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxRepository"]; exists {
		return nil, storedErr
	}
	return c.outboxRepository, nil
}

// Publisher returns the transport publisher selected by OUTBOX_TRANSPORT.
func (c *Container) Publisher() (outboxUseCase.Publisher, error) {
	var err error
	c.publisherInit.Do(func() {
		c.publisher, err = c.initPublisher()
		if err != nil {
			c.initErrors["publisher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["publisher"]; exists {
		return nil, storedErr
	}
	return c.publisher, nil
}

// Dispatcher returns the outbox dispatcher.
func (c *Container) Dispatcher() (*outboxUseCase.Dispatcher, error) {
	var err error
	c.dispatcherInit.Do(func() {
		c.dispatcher, err = c.initDispatcher()
		if err != nil {
			c.initErrors["dispatcher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dispatcher"]; exists {
		return nil, storedErr
	}
	return c.dispatcher, nil
}

// HealthMonitor returns the outbox health monitor.
func (c *Container) HealthMonitor() (*outboxUseCase.HealthMonitor, error) {
	var err error
	c.healthMonitorInit.Do(func() {
		c.healthMonitor, err = c.initHealthMonitor()
		if err != nil {
			c.initErrors["healthMonitor"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["healthMonitor"]; exists {
		return nil, storedErr
	}
	return c.healthMonitor, nil
}

// OutboxWriter returns the writer used by producers to append events.
func (c *Container) OutboxWriter() (*outboxUseCase.Writer, error) {
	var err error
	c.outboxWriterInit.Do(func() {
		c.outboxWriter, err = c.initOutboxWriter()
		if err != nil {
			c.initErrors["outboxWriter"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxWriter"]; exists {
		return nil, storedErr
	}
	return c.outboxWriter, nil
}

// OutboxUseCase returns the outbox operations use case.
func (c *Container) OutboxUseCase() (outboxUseCase.UseCase, error) {
	var err error
	c.outboxUseCaseInit.Do(func() {
		c.outboxUseCase, err = c.initOutboxUseCase()
		if err != nil {
			c.initErrors["outboxUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxUseCase"]; exists {
		return nil, storedErr
	}
	return c.outboxUseCase, nil
}

// OutboxScheduler returns the scheduler running the dispatcher cadences and the health check.
func (c *Container) OutboxScheduler() (*outboxUseCase.Scheduler, error) {
	var err error
	c.outboxSchedulerInit.Do(func() {
		c.outboxScheduler, err = c.initOutboxScheduler()
		if err != nil {
			c.initErrors["outboxScheduler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxScheduler"]; exists {
		return nil, storedErr
	}
	return c.outboxScheduler, nil
}

// OutboxHandler returns the HTTP handler for outbox operations.
func (c *Container) OutboxHandler() (*outboxHTTP.OutboxHandler, error) {
	var err error
	c.outboxHandlerInit.Do(func() {
		c.outboxHandler, err = c.initOutboxHandler()
		if err != nil {
			c.initErrors["outboxHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxHandler"]; exists {
		return nil, storedErr
	}
	return c.outboxHandler, nil
}

// OutboxConfig maps the environment configuration onto the dispatcher settings.
func (c *Container) OutboxConfig() outboxUseCase.Config {
	return outboxUseCase.Config{
		CriticalBatchSize:      c.config.OutboxCriticalBatchSize,
		BatchSize:              c.config.OutboxBatchSize,
		RetryBatchSize:         c.config.OutboxRetryBatchSize,
		RetryBaseDelay:         c.config.OutboxRetryBaseDelay,
		RetryMaxDelay:          c.config.OutboxRetryMaxDelay,
		PublishTimeout:         c.config.OutboxPublishTimeout,
		LeaseTimeout:           c.config.OutboxLeaseTimeout,
		MaxLeaseAge:            c.config.OutboxMaxLeaseAge,
		ProcessedRetention:     c.config.OutboxProcessedRetention,
		FailedRetention:        c.config.OutboxFailedRetention,
		AllowTerminalReprocess: c.config.OutboxAllowTerminalReprocess,
		MaxLeased:              int64(c.config.OutboxHealthMaxLeased),
		MaxFailed:              int64(c.config.OutboxHealthMaxFailed),
		PollInterval:           c.config.OutboxPollInterval,
		RetryInterval:          c.config.OutboxRetryInterval,
		ReclaimInterval:        c.config.OutboxReclaimInterval,
		HealthInterval:         c.config.OutboxHealthInterval,
		PurgeSchedule:          c.config.OutboxPurgeSchedule,
	}
}

// initOutboxRepository creates the outbox event repository based on the database driver.
func (c *Container) initOutboxRepository() (outboxUseCase.OutboxEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return outboxPostgreSQL.NewPostgreSQLOutboxEventRepository(db), nil
	case database.DriverMySQL:
		return outboxMySQL.NewMySQLOutboxEventRepository(db), nil
	case database.DriverSQLite:
		return outboxSQLite.NewSQLiteOutboxEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initPublisher creates the configured transport, optionally guarded by a circuit breaker.
func (c *Container) initPublisher() (outboxUseCase.Publisher, error) {
	logger := c.Logger()

	var base publisher.Publisher
	switch c.config.OutboxTransport {
	case config.TransportLog:
		base = publisher.NewLogPublisher(c.config.OutboxDefaultChannel, logger)
	case config.TransportPubSub:
		c.pubSubPublisher = publisher.NewPubSubPublisher(
			c.config.OutboxPubSubURLPrefix,
			c.config.OutboxDefaultChannel,
			logger,
		)
		base = c.pubSubPublisher
	case config.TransportRabbitMQ:
		connector := publisher.NewRabbitMQConnector(c.config.OutboxRabbitMQURL)
		ch, err := connector.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
		}
		rabbitMQPublisher, err := publisher.NewRabbitMQPublisher(
			ch,
			c.config.OutboxDefaultChannel,
			c.config.OutboxConfirmTimeout,
			logger,
			publisher.WithAutoRecovery(connector.Channel),
		)
		if err != nil {
			_ = connector.Close()
			return nil, fmt.Errorf("failed to create rabbitmq publisher: %w", err)
		}
		c.rabbitMQConnector = connector
		c.rabbitMQPublisher = rabbitMQPublisher
		base = rabbitMQPublisher
	default:
		return nil, fmt.Errorf("unsupported outbox transport: %s", c.config.OutboxTransport)
	}

	if !c.config.OutboxBreakerEnabled {
		return base, nil
	}

	return publisher.NewBreakerPublisher(base, publisher.BreakerConfig{
		Name:        "outbox-" + c.config.OutboxTransport,
		MaxFailures: uint32(c.config.OutboxBreakerMaxFailures), //nolint:gosec // validated to be positive
		OpenTimeout: c.config.OutboxBreakerOpenTimeout,
	}, logger), nil
}

// initDispatcher creates the dispatcher with its transport, throttle, and metrics.
func (c *Container) initDispatcher() (*outboxUseCase.Dispatcher, error) {
	outboxRepository, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for dispatcher: %w", err)
	}

	eventPublisher, err := c.Publisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get publisher for dispatcher: %w", err)
	}

	outboxMetrics, err := c.OutboxMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox metrics for dispatcher: %w", err)
	}

	return outboxUseCase.NewDispatcher(
		c.OutboxConfig(),
		outboxRepository,
		eventPublisher,
		c.publishLimiter(),
		outboxMetrics,
		c.Logger(),
	), nil
}

// initHealthMonitor creates the health monitor bound to the dispatcher pause flag.
func (c *Container) initHealthMonitor() (*outboxUseCase.HealthMonitor, error) {
	outboxRepository, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for health monitor: %w", err)
	}

	dispatcher, err := c.Dispatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatcher for health monitor: %w", err)
	}

	outboxMetrics, err := c.OutboxMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox metrics for health monitor: %w", err)
	}

	return outboxUseCase.NewHealthMonitor(
		c.OutboxConfig(),
		outboxRepository,
		dispatcher.Paused,
		outboxMetrics,
		c.Logger(),
	), nil
}

// initOutboxWriter creates the writer stamping the default channel and retry budget.
func (c *Container) initOutboxWriter() (*outboxUseCase.Writer, error) {
	outboxRepository, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for outbox writer: %w", err)
	}
	return outboxUseCase.NewWriter(
		outboxRepository,
		c.config.OutboxDefaultChannel,
		c.config.OutboxMaxRetries,
	), nil
}

// initOutboxUseCase creates the outbox operations use case.
func (c *Container) initOutboxUseCase() (outboxUseCase.UseCase, error) {
	dispatcher, err := c.Dispatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatcher for outbox use case: %w", err)
	}

	healthMonitor, err := c.HealthMonitor()
	if err != nil {
		return nil, fmt.Errorf("failed to get health monitor for outbox use case: %w", err)
	}

	outboxRepository, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for outbox use case: %w", err)
	}

	baseUseCase := outboxUseCase.NewOutboxUseCase(dispatcher, healthMonitor, outboxRepository)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for outbox use case: %w", err)
		}
		return outboxUseCase.NewOutboxUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initOutboxScheduler registers the dispatcher cadences, the purge cron, and the health check.
func (c *Container) initOutboxScheduler() (*outboxUseCase.Scheduler, error) {
	dispatcher, err := c.Dispatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatcher for outbox scheduler: %w", err)
	}

	healthMonitor, err := c.HealthMonitor()
	if err != nil {
		return nil, fmt.Errorf("failed to get health monitor for outbox scheduler: %w", err)
	}

	scheduler, err := outboxUseCase.NewOutboxScheduler(c.OutboxConfig(), dispatcher, healthMonitor, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox scheduler: %w", err)
	}
	return scheduler, nil
}

// initOutboxHandler creates the outbox HTTP handler.
func (c *Container) initOutboxHandler() (*outboxHTTP.OutboxHandler, error) {
	useCase, err := c.OutboxUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox use case for outbox handler: %w", err)
	}
	return outboxHTTP.NewOutboxHandler(useCase, c.Logger()), nil
}
