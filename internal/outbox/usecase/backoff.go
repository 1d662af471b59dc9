package usecase

import (
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before the next delivery attempt.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Jitter returns a random extra delay for the given base delay. Nil means no jitter.
	Jitter func(delay time.Duration) time.Duration
}

// NewBackoff returns a Backoff with up to 10% random jitter.
func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{Base: base, Max: max, Jitter: tenPercentJitter}
}

// Delay returns min(Base*2^retryCount, Max) plus jitter.
func (b Backoff) Delay(retryCount int) time.Duration {
	delay := b.Base
	for i := 0; i < retryCount && delay < b.Max; i++ {
		delay *= 2
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	if delay < 0 {
		delay = 0
	}

	if b.Jitter != nil {
		delay += b.Jitter(delay)
	}
	return delay
}

func tenPercentJitter(delay time.Duration) time.Duration {
	spread := int64(delay / 10)
	if spread <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(spread + 1))
}
