// Package retry is the single retry-with-backoff abstraction shared by the
// translator and predictor clients and by the stream poll loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 30 * time.Second
)

// Policy bounds one retried operation. The zero value gets sane intervals
// applied; MaxAttempts must be set by the caller for capped retries.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Notify, if set, is called before each backoff wait.
	Notify func(err error, wait time.Duration)
}

func (p Policy) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	} else {
		b.InitialInterval = defaultInitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	} else {
		b.MaxInterval = defaultMaxInterval
	}
	return b
}

// ExhaustedError marks a retryable error that outlived its attempt cap.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs op with jittered exponential backoff until it succeeds, returns a
// non-retryable error, the attempt cap is hit, or ctx is done. A capped-out
// retryable error is wrapped in ExhaustedError.
func Do[T any](ctx context.Context, pol Policy, retryable func(error) bool, op func(context.Context) (T, error)) (T, error) {
	attempts := 0
	wrapped := func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(pol.backoff())}
	if pol.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(pol.MaxAttempts))
	}
	if pol.Notify != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(pol.Notify)))
	}

	v, err := backoff.Retry(ctx, wrapped, opts...)
	if err != nil && retryable(err) && ctx.Err() == nil {
		return v, &ExhaustedError{Attempts: attempts, Err: err}
	}
	return v, err
}

// Attempts extracts the attempt count from an error chain, defaulting to 1
// for errors that never reached the cap.
func Attempts(err error) int {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex.Attempts
	}
	return 1
}
