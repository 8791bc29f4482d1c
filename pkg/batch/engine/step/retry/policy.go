// Package retry decides which item faults are retried and how long to wait in between.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

// RetryPolicy classifies item faults for retry.
type RetryPolicy interface {
	// ShouldRetry reports whether err is retryable. Fatal errors never are.
	ShouldRetry(err error) bool
	// MaxAttempts returns the total number of attempts, including the first one.
	MaxAttempts() int
	// NewBackOff returns a fresh backoff sequence for one item.
	NewBackOff() backoff.BackOff
}

// DefaultRetryPolicyFactory creates RetryPolicy instances from configuration.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a new DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create returns a policy for cfg. A Multiplier above 1 gives exponential backoff
// capped at MaxInterval, otherwise the wait is InitialInterval every time.
func (f *DefaultRetryPolicyFactory) Create(cfg config.ItemRetryConfig) RetryPolicy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:         maxAttempts,
		initialInterval:     time.Duration(cfg.InitialInterval) * time.Millisecond,
		maxInterval:         time.Duration(cfg.MaxInterval) * time.Millisecond,
		multiplier:          cfg.Multiplier,
		retryableExceptions: append([]string(nil), cfg.RetryableExceptions...),
	}
}

// NoRetryPolicy returns a policy with a single attempt.
func NoRetryPolicy() RetryPolicy {
	return &defaultRetryPolicy{maxAttempts: 1}
}

type defaultRetryPolicy struct {
	maxAttempts         int
	initialInterval     time.Duration
	maxInterval         time.Duration
	multiplier          float64
	retryableExceptions []string
}

func (p *defaultRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry holds for errors flagged retryable and errors matching a configured exception name.
func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil || p.maxAttempts <= 1 || exception.IsFatal(err) {
		return false
	}
	if be, ok := err.(*exception.BatchError); ok && be.IsRetryable() {
		return true
	}
	category := exception.CategoryName(err)
	for _, typeName := range p.retryableExceptions {
		if typeName == category || exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *defaultRetryPolicy) NewBackOff() backoff.BackOff {
	if p.multiplier <= 1 {
		return backoff.NewConstantBackOff(p.initialInterval)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval
	b.Multiplier = p.multiplier
	b.RandomizationFactor = 0
	if p.maxInterval > 0 {
		b.MaxInterval = p.maxInterval
	}
	b.Reset()
	return b
}

// Wait sleeps for the next interval of b. It returns early with ctx's error when ctx ends.
func Wait(ctx context.Context, b backoff.BackOff) error {
	d := b.NextBackOff()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)
