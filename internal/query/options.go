package query

import (
	"time"

	"github.com/btp2/btpmon/internal/logger"
)

// Options configures a Client.
type Options struct {
	// Retry is the number of extra attempts after a failed fetch.
	// Retry 2 means up to 3 attempts in total.
	Retry int

	// StaleTime is how long a successful result counts as fresh.
	// Zero means data is stale as soon as it arrives.
	StaleTime time.Duration

	// RefetchInterval polls observed keys at this period. Zero disables it.
	RefetchInterval time.Duration

	// RetryDelay returns how long to wait before retry number attempt (0-based).
	// Nil uses ExponentialBackoff(time.Second, 30*time.Second).
	RetryDelay func(attempt int) time.Duration

	// FetchTimeout bounds a single attempt. Zero means no per-attempt limit.
	FetchTimeout time.Duration

	// Logger receives fetch diagnostics. Nil discards them.
	Logger logger.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Retry:        3,
		RetryDelay:   ExponentialBackoff(time.Second, 30*time.Second),
		FetchTimeout: 10 * time.Second,
	}
}

// ExponentialBackoff returns a delay policy of base*2^attempt, capped at maxDelay.
func ExponentialBackoff(base, maxDelay time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if base <= 0 {
			return 0
		}
		d := base
		for i := 0; i < attempt; i++ {
			d *= 2
			if maxDelay > 0 && d >= maxDelay {
				return maxDelay
			}
		}
		if maxDelay > 0 && d > maxDelay {
			return maxDelay
		}
		return d
	}
}

// Option overrides client options for a single query.
type Option func(*settings)

// settings are the effective per-key options.
type settings struct {
	retry           int
	staleTime       time.Duration
	refetchInterval time.Duration
}

// WithRetry overrides the retry count for this key.
func WithRetry(n int) Option {
	return func(s *settings) {
		if n < 0 {
			n = 0
		}
		s.retry = n
	}
}

// WithStaleTime overrides how long this key's data stays fresh.
func WithStaleTime(d time.Duration) Option {
	return func(s *settings) {
		if d < 0 {
			d = 0
		}
		s.staleTime = d
	}
}

// WithRefetchInterval sets the polling period used by Watch for this key.
func WithRefetchInterval(d time.Duration) Option {
	return func(s *settings) {
		if d < 0 {
			d = 0
		}
		s.refetchInterval = d
	}
}
