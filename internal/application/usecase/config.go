package usecase

import "time"

// Config holds transition engine settings.
type Config struct {
	// MaxAttempts bounds how many times a transition is tried when it loses a race.
	MaxAttempts int
	// RetryDelay is the upper bound of the jittered wait between attempts.
	RetryDelay time.Duration
	// ReminderDelay is how long after DOCUMENTS_REQUESTED the reminder is delivered.
	ReminderDelay time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		RetryDelay:    50 * time.Millisecond,
		ReminderDelay: 72 * time.Hour,
	}
}
