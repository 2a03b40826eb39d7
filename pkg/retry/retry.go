// Package retry runs fallible operations with exponential backoff. Errors are
// classified by the caller: an operation returns Transient(err) for failures
// that are expected to clear on their own (provider quota, HTTP 429) and any
// other error is treated as permanent and returned without further attempts.
//
// The schedule is fixed by default: the wait after attempt n is
// min(BaseDelay * 2^(n-1), MaxDelay), with a 1s base and a 10s cap. Attempts
// are numbered from one and never exceed the maximum passed to Do.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

const (
	// DefaultBaseDelay is the wait after the first failed attempt.
	DefaultBaseDelay = 1000 * time.Millisecond
	// DefaultMaxDelay caps every wait.
	DefaultMaxDelay = 10000 * time.Millisecond
	// DefaultMaxAttempts is used when Do is given a non-positive count.
	DefaultMaxAttempts = 3
)

// ErrQuotaExceeded is returned when every attempt failed with a transient
// error.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Class tags an error as retryable or not.
type Class int

const (
	// ClassPermanent errors abort immediately.
	ClassPermanent Class = iota
	// ClassTransient errors are retried while attempts remain.
	ClassTransient
)

func (c Class) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "permanent"
}

// Error carries a classification alongside the underlying error.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Transient marks err as retryable. A nil error stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: ClassTransient, Err: err}
}

// Permanent marks err as not retryable. A nil error stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: ClassPermanent, Err: err}
}

// IsTransient reports whether the outermost classification in err's chain is
// transient. Untagged errors are permanent.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassTransient
	}
	return false
}

// Timer is the wait primitive used between attempts. It matches
// backoff.Timer so tests can substitute an instant timer.
type Timer = backoff.Timer

// Notify is called before each wait with the error that triggered it, the
// attempt number that failed and the delay about to be applied.
type Notify func(err error, attempt int, delay time.Duration)

type config struct {
	base   time.Duration
	max    time.Duration
	timer  Timer
	notify Notify
}

// Option customises a call to Do.
type Option func(*config)

// WithDelays overrides the base delay and the cap.
func WithDelays(base, max time.Duration) Option {
	return func(c *config) {
		c.base = base
		c.max = max
	}
}

// WithTimer replaces the wall clock timer used between attempts.
func WithTimer(t Timer) Option {
	return func(c *config) { c.timer = t }
}

// WithNotify registers a callback invoked before every wait.
func WithNotify(fn Notify) Option {
	return func(c *config) { c.notify = fn }
}

func (c *config) schedule(maxAttempts int) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.base
	expo.MaxInterval = c.max
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0
	return backoff.WithMaxRetries(expo, uint64(maxAttempts-1))
}

// Do invokes op until it succeeds, fails permanently, or maxAttempts have
// been made. When the final attempt fails transiently the returned error
// matches ErrQuotaExceeded and wraps the last failure. Cancellation of ctx
// interrupts a pending wait and returns the context error.
func Do[T any](ctx context.Context, maxAttempts int, op func(context.Context) (T, error), opts ...Option) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	cfg := &config{base: DefaultBaseDelay, max: DefaultMaxDelay}
	for _, o := range opts {
		o(cfg)
	}

	var (
		result  T
		attempt int
	)
	operation := func() error {
		attempt++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		if IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, d time.Duration) {
		if cfg.notify != nil {
			cfg.notify(err, attempt, d)
		}
	}

	b := backoff.WithContext(cfg.schedule(maxAttempts), ctx)
	err := backoff.RetryNotifyWithTimer(operation, b, notify, cfg.timer)
	if err == nil {
		return result, nil
	}
	var zero T
	if IsTransient(err) {
		return zero, fmt.Errorf("%w after %d attempts: %w", ErrQuotaExceeded, attempt, err)
	}
	return zero, err
}
