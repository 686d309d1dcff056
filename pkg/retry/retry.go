package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config controls how transient failures are retried.
type Config struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Do runs fn until it succeeds, returns an error that retryable rejects, or
// the attempts run out. onRetry, when set, is called before each new attempt.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, onRetry func(error, time.Duration), fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		eb.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		eb.MaxInterval = cfg.MaxInterval
	}
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(cfg.MaxAttempts-1)), ctx)

	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if onRetry == nil {
		return backoff.Retry(op, policy)
	}
	return backoff.RetryNotify(op, policy, onRetry)
}
