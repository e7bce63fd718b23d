package events

import (
	"context"
	"math"
	"time"
)

// RetryConfig configures retry behavior for handlers that talk to external systems
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration. Handlers run
// under a short timeout, so delays are small.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      50 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff retry logic
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a new retry policy, filling unset fields with defaults
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}

	return &RetryPolicy{
		config: config,
	}
}

// ShouldRetry determines if another attempt should be made
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextRetryDelay calculates the delay before the next retry
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	// delay = initialDelay * (multiplier ^ (attempts - 1))
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))

	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}

	return time.Duration(delay)
}

// Do runs fn until it succeeds, the attempts are exhausted or ctx is done.
// The last error is returned.
func (p *RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := 0
	for {
		attempts++
		err := fn(ctx)
		if !p.ShouldRetry(attempts, err) {
			return err
		}

		timer := time.NewTimer(p.NextRetryDelay(attempts))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
