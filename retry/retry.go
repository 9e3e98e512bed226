// Package retry retries operations that fail with recoverable errors, such
// as writes to a run recorder whose database is briefly unavailable.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Config controls how an operation is retried.
type Config struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	BackoffRate float64
	Jitter      bool
}

// Option configures a retry
type Option func(*Config)

func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

func WithBaseWait(d time.Duration) Option {
	return func(c *Config) { c.BaseDelay = d }
}

func WithMaxWait(d time.Duration) Option {
	return func(c *Config) { c.MaxDelay = d }
}

func WithBackoffRate(rate float64) Option {
	return func(c *Config) { c.BackoffRate = rate }
}

// WithJitter randomizes each delay between zero and its computed value
func WithJitter(enabled bool) Option {
	return func(c *Config) { c.Jitter = enabled }
}

func defaultConfig() Config {
	return Config{
		MaxRetries:  2,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		BackoffRate: 2.0,
	}
}

// Delay returns the wait before the given retry attempt, counting from 1.
func (c Config) Delay(attempt int) time.Duration {
	delay := float64(c.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.BackoffRate
		if c.MaxDelay > 0 && delay >= float64(c.MaxDelay) {
			break
		}
	}
	d := time.Duration(delay)
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	if c.Jitter && d > 0 {
		d = time.Duration(rand.Int64N(int64(d) + 1))
	}
	return d
}

// Do calls fn until it succeeds, returns an error that is not recoverable,
// or the retries are used up. The last error is returned unchanged.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffRate < 1 {
		cfg.BackoffRate = 1
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries || !IsRecoverable(err) {
			return err
		}
		timer := time.NewTimer(cfg.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
