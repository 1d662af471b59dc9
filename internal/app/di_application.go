package app

import (
	"fmt"
	"os"

	applicationDomain "github.com/allisson/admissions/internal/application/domain"
	applicationHTTP "github.com/allisson/admissions/internal/application/http"
	applicationMySQL "github.com/allisson/admissions/internal/application/repository/mysql"
	applicationPostgreSQL "github.com/allisson/admissions/internal/application/repository/postgresql"
	applicationSQLite "github.com/allisson/admissions/internal/application/repository/sqlite"
	applicationUseCase "github.com/allisson/admissions/internal/application/usecase"
	"github.com/allisson/admissions/internal/database"
)

// ApplicationRepository returns the application repository based on database driver.
func (c *Container) ApplicationRepository() (applicationUseCase.ApplicationRepository, error) {
	var err error
	c.applicationRepositoryInit.Do(func() {
		c.applicationRepository, err = c.initApplicationRepository()
		if err != nil {
			c.initErrors["applicationRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["applicationRepository"]; exists {
		return nil, storedErr
	}
	return c.applicationRepository, nil
}

// TransitionLogRepository returns the transition audit log repository based on database driver.
func (c *Container) TransitionLogRepository() (applicationUseCase.TransitionLogRepository, error) {
	var err error
	c.transitionLogRepositoryInit.Do(func() {
		c.transitionLogRepository, err = c.initTransitionLogRepository()
		if err != nil {
			c.initErrors["transitionLogRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["transitionLogRepository"]; exists {
		return nil, storedErr
	}
	return c.transitionLogRepository, nil
}

// Policy returns the transition policy: the built-in table plus the rules of
// TRANSITION_POLICY_FILE when one is configured.
func (c *Container) Policy() (*applicationDomain.Policy, error) {
	var err error
	c.policyInit.Do(func() {
		c.policy, err = c.initPolicy()
		if err != nil {
			c.initErrors["policy"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["policy"]; exists {
		return nil, storedErr
	}
	return c.policy, nil
}

// TransitionUseCase returns the state transition engine.
func (c *Container) TransitionUseCase() (applicationUseCase.TransitionUseCase, error) {
	var err error
	c.transitionUseCaseInit.Do(func() {
		c.transitionUseCase, err = c.initTransitionUseCase()
		if err != nil {
			c.initErrors["transitionUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["transitionUseCase"]; exists {
		return nil, storedErr
	}
	return c.transitionUseCase, nil
}

// ApplicationUseCase returns the application use case.
func (c *Container) ApplicationUseCase() (applicationUseCase.UseCase, error) {
	var err error
	c.applicationUseCaseInit.Do(func() {
		c.applicationUseCase, err = c.initApplicationUseCase()
		if err != nil {
			c.initErrors["applicationUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["applicationUseCase"]; exists {
		return nil, storedErr
	}
	return c.applicationUseCase, nil
}

// ApplicationHandler returns the HTTP handler for application operations.
func (c *Container) ApplicationHandler() (*applicationHTTP.ApplicationHandler, error) {
	var err error
	c.applicationHandlerInit.Do(func() {
		c.applicationHandler, err = c.initApplicationHandler()
		if err != nil {
			c.initErrors["applicationHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["applicationHandler"]; exists {
		return nil, storedErr
	}
	return c.applicationHandler, nil
}

// initApplicationRepository creates the application repository based on the database driver.
func (c *Container) initApplicationRepository() (applicationUseCase.ApplicationRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for application repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return applicationPostgreSQL.NewPostgreSQLApplicationRepository(db), nil
	case database.DriverMySQL:
		return applicationMySQL.NewMySQLApplicationRepository(db), nil
	case database.DriverSQLite:
		return applicationSQLite.NewSQLiteApplicationRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initTransitionLogRepository creates the transition log repository based on the database driver.
func (c *Container) initTransitionLogRepository() (applicationUseCase.TransitionLogRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for transition log repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return applicationPostgreSQL.NewPostgreSQLTransitionLogRepository(db), nil
	case database.DriverMySQL:
		return applicationMySQL.NewMySQLTransitionLogRepository(db), nil
	case database.DriverSQLite:
		return applicationSQLite.NewSQLiteTransitionLogRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initPolicy loads the policy file, if any, and merges its rules into the default policy.
func (c *Container) initPolicy() (*applicationDomain.Policy, error) {
	policy := applicationDomain.DefaultPolicy()
	if c.config.TransitionPolicyFile == "" {
		return policy, nil
	}

	file, err := os.Open(c.config.TransitionPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open transition policy file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	rules, err := applicationDomain.LoadPolicyYAML(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load transition policy file: %w", err)
	}

	merged, err := policy.Merge(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to merge transition policy: %w", err)
	}

	c.Logger().Info("transition policy extended",
		"file", c.config.TransitionPolicyFile,
		"extra_rules", len(rules),
	)
	return merged, nil
}

// initTransitionUseCase creates the transition engine with all its dependencies.
func (c *Container) initTransitionUseCase() (applicationUseCase.TransitionUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for transition use case: %w", err)
	}

	applicationRepository, err := c.ApplicationRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get application repository for transition use case: %w", err)
	}

	transitionLogRepository, err := c.TransitionLogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get transition log repository for transition use case: %w", err)
	}

	outboxWriter, err := c.OutboxWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox writer for transition use case: %w", err)
	}

	policy, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy for transition use case: %w", err)
	}

	return applicationUseCase.NewTransitionUseCase(
		applicationUseCase.Config{
			MaxAttempts:   c.config.TransitionMaxAttempts,
			RetryDelay:    c.config.TransitionRetryDelay,
			ReminderDelay: c.config.DocumentsReminderDelay,
		},
		txManager,
		applicationRepository,
		transitionLogRepository,
		outboxWriter,
		policy,
		c.Logger(),
	), nil
}

// initApplicationUseCase creates the application use case with all its dependencies.
func (c *Container) initApplicationUseCase() (applicationUseCase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for application use case: %w", err)
	}

	applicationRepository, err := c.ApplicationRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get application repository for application use case: %w", err)
	}

	transitionLogRepository, err := c.TransitionLogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get transition log repository for application use case: %w", err)
	}

	outboxWriter, err := c.OutboxWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox writer for application use case: %w", err)
	}

	transitionUseCase, err := c.TransitionUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get transition use case for application use case: %w", err)
	}

	policy, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy for application use case: %w", err)
	}

	baseUseCase := applicationUseCase.NewApplicationUseCase(
		txManager,
		applicationRepository,
		transitionLogRepository,
		outboxWriter,
		transitionUseCase,
		policy,
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for application use case: %w", err)
		}
		return applicationUseCase.NewApplicationUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initApplicationHandler creates the application HTTP handler.
func (c *Container) initApplicationHandler() (*applicationHTTP.ApplicationHandler, error) {
	useCase, err := c.ApplicationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get application use case for application handler: %w", err)
	}
	return applicationHTTP.NewApplicationHandler(useCase, c.Logger()), nil
}
