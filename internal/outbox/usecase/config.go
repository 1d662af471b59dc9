package usecase

import "time"

// Config holds dispatcher, scheduler, and health monitor settings.
type Config struct {
	CriticalBatchSize int
	BatchSize         int
	RetryBatchSize    int

	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// PublishTimeout bounds each publish call.
	PublishTimeout time.Duration
	// LeaseTimeout bounds each lease and state update statement.
	LeaseTimeout time.Duration
	// MaxLeaseAge is how long a lease may be held before it is considered stale. Events whose
	// lease would expire during a publish are released instead of published.
	MaxLeaseAge time.Duration

	ProcessedRetention     time.Duration
	FailedRetention        time.Duration
	AllowTerminalReprocess bool

	MaxLeased int64
	MaxFailed int64

	PollInterval    time.Duration
	RetryInterval   time.Duration
	ReclaimInterval time.Duration
	HealthInterval  time.Duration
	// PurgeSchedule is a standard cron expression or descriptor such as "@daily".
	PurgeSchedule string
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		CriticalBatchSize:      20,
		BatchSize:              50,
		RetryBatchSize:         50,
		RetryBaseDelay:         30 * time.Second,
		RetryMaxDelay:          time.Hour,
		PublishTimeout:         10 * time.Second,
		LeaseTimeout:           5 * time.Second,
		MaxLeaseAge:            15 * time.Minute,
		ProcessedRetention:     7 * 24 * time.Hour,
		AllowTerminalReprocess: true,
		MaxLeased:              100,
		MaxFailed:              50,
		PollInterval:           2 * time.Second,
		RetryInterval:          time.Minute,
		ReclaimInterval:        time.Minute,
		HealthInterval:         30 * time.Second,
		PurgeSchedule:          "@daily",
	}
}
