package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	defaultRetryMaxRetries = 3
	defaultRetryBaseDelay  = 300 * time.Millisecond
	defaultRetryMaxDelay   = 5 * time.Second
)

// retryable is implemented by errors that know whether a fresh attempt could
// succeed, such as throttling and transient service failures.
type retryable interface {
	Retryable() bool
}

type markedError struct {
	err error
}

func (e *markedError) Error() string   { return e.err.Error() }
func (e *markedError) Unwrap() error   { return e.err }
func (e *markedError) Retryable() bool { return true }

// MarkRetryable wraps err so IsRetryableError reports true for it and for
// anything that wraps it.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err}
}

// IsRetryableError reports whether any error in err's chain asks to be retried.
// Context cancellation and deadline errors never are.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r retryable
	return errors.As(err, &r) && r.Retryable()
}

// NormalizeRetryPolicy fills unset fields with defaults. Zero MaxRetries means
// unset; a negative value disables retries.
func NormalizeRetryPolicy(policy RetryPolicy) RetryPolicy {
	switch {
	case policy.MaxRetries < 0:
		policy.MaxRetries = 0
	case policy.MaxRetries == 0:
		policy.MaxRetries = defaultRetryMaxRetries
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaultRetryBaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaultRetryMaxDelay
	}
	policy.MaxDelay = max(policy.MaxDelay, policy.BaseDelay)
	return policy
}

// ComputeBackoffDelay doubles BaseDelay per attempt, caps it at MaxDelay and
// applies +/-20% jitter.
func ComputeBackoffDelay(policy RetryPolicy, attempt int) time.Duration {
	nominal := policy.BaseDelay
	for range max(attempt, 0) {
		if nominal >= policy.MaxDelay/2 {
			nominal = policy.MaxDelay
			break
		}
		nominal *= 2
	}
	nominal = min(nominal, policy.MaxDelay)
	return time.Duration(float64(nominal) * (0.8 + 0.4*rand.Float64()))
}

// SleepContext blocks for delay or until ctx is done.
func SleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn with increasing attempt numbers until it succeeds, fails with
// an error IsRetryableError rejects, or the policy runs out of retries.
func Retry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) error {
	policy = NormalizeRetryPolicy(policy)
	var err error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if sleepErr := SleepContext(ctx, ComputeBackoffDelay(policy, attempt-1)); sleepErr != nil {
				return sleepErr
			}
		}
		if err = fn(attempt); err == nil || !IsRetryableError(err) {
			return err
		}
	}
	return err
}
