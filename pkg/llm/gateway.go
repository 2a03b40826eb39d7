// Package llm composes the rate limiter and the backoff retrier around a
// single "generate text from prompt" call to a language model provider.
//
// The gateway fails fast with ErrUnavailable when no provider was configured
// and with a *RateLimitError (matching ErrRateLimited) when the local call
// budget for the provider is spent. Otherwise the provider call is retried on
// transient failures. Every call, whatever its outcome, produces one
// structured log entry, updates the Prometheus collectors and is forwarded to
// an optional Recorder.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"SonicMirror/pkg/metrics"
	"SonicMirror/pkg/ratelimit"
	"SonicMirror/pkg/retry"
)

const (
	// DefaultMaxCalls is the number of provider calls allowed per window.
	DefaultMaxCalls = 10
	// DefaultWindow is the rate limit window length.
	DefaultWindow = 60000 * time.Millisecond
	// DefaultMaxAttempts bounds the retrier.
	DefaultMaxAttempts = 3
	// DefaultAttemptTimeout bounds a single provider call.
	DefaultAttemptTimeout = 30 * time.Second
)

var (
	// ErrUnavailable is returned when the provider client was never
	// initialised, usually because no API key was configured.
	ErrUnavailable = errors.New("language model provider unavailable")

	// ErrRateLimited is matched by *RateLimitError.
	ErrRateLimited = errors.New("language model rate limited")
)

// RateLimitError is returned when the local limiter denies a call.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return e.Message }

// Is lets errors.Is(err, ErrRateLimited) succeed.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Provider generates text for a prompt. Implementations classify their
// failures with retry.Transient or retry.Permanent.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Call describes one completed gateway invocation.
type Call struct {
	Provider string
	Feature  string
	Success  bool
	Latency  time.Duration
	Err      error
}

// Recorder receives a Call after every invocation.
type Recorder interface {
	RecordCall(ctx context.Context, c Call) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, c Call) error

// RecordCall calls f.
func (f RecorderFunc) RecordCall(ctx context.Context, c Call) error { return f(ctx, c) }

// Config holds the gateway policy.
type Config struct {
	// MaxCalls and Window define the provider rate limit.
	MaxCalls int
	Window   time.Duration

	// MaxAttempts is passed to the retrier.
	MaxAttempts int

	// AttemptTimeout bounds each provider call. Zero disables the bound.
	AttemptTimeout time.Duration
}

// DefaultConfig returns the default policy: 10 calls per minute, three
// attempts, 30 seconds per attempt.
func DefaultConfig() Config {
	return Config{
		MaxCalls:       DefaultMaxCalls,
		Window:         DefaultWindow,
		MaxAttempts:    DefaultMaxAttempts,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Gateway wraps a Provider with rate limiting, retries and call logging.
type Gateway struct {
	provider  Provider
	limiter   *ratelimit.Limiter
	cfg       Config
	recorder  Recorder
	log       logrus.FieldLogger
	retryOpts []retry.Option
	now       func() time.Time
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithRecorder forwards every Call to r.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// WithLogger replaces the standard logrus logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Gateway) { g.log = l }
}

// WithRetryOptions passes options through to retry.Do.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(g *Gateway) { g.retryOpts = append(g.retryOpts, opts...) }
}

// New builds a Gateway. provider may be nil, in which case every call fails
// with ErrUnavailable. A nil limiter gets a private one.
func New(provider Provider, limiter *ratelimit.Limiter, cfg Config, opts ...Option) *Gateway {
	def := DefaultConfig()
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = def.MaxCalls
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	g := &Gateway{
		provider: provider,
		limiter:  limiter,
		cfg:      cfg,
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Available reports whether a provider is configured.
func (g *Gateway) Available() bool { return g.provider != nil }

// ProviderName returns the configured provider's name or "none".
func (g *Gateway) ProviderName() string {
	if g.provider == nil {
		return "none"
	}
	return g.provider.Name()
}

// GenerateContent sends prompt to the provider on behalf of feature and
// returns the generated text.
func (g *Gateway) GenerateContent(ctx context.Context, prompt, feature string) (text string, err error) {
	provider := g.ProviderName()
	start := g.now()
	defer func() {
		g.observe(ctx, Call{
			Provider: provider,
			Feature:  feature,
			Success:  err == nil,
			Latency:  g.now().Sub(start),
			Err:      err,
		})
	}()

	if g.provider == nil {
		return "", ErrUnavailable
	}

	d := g.limiter.Check(provider, g.cfg.MaxCalls, g.cfg.Window)
	if !d.Allowed {
		return "", &RateLimitError{Provider: provider, Message: d.Message, RetryAfter: d.RetryAfter}
	}

	text, err = retry.Do(ctx, g.cfg.MaxAttempts, func(ctx context.Context) (string, error) {
		if g.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.cfg.AttemptTimeout)
			defer cancel()
		}
		return g.provider.Generate(ctx, prompt)
	}, g.retryOpts...)
	if err != nil {
		return "", fmt.Errorf("%s generate %s: %w", provider, feature, err)
	}
	return text, nil
}

func (g *Gateway) observe(ctx context.Context, c Call) {
	outcome := metrics.OutcomeSuccess
	switch {
	case c.Err == nil:
	case errors.Is(c.Err, ErrUnavailable):
		outcome = metrics.OutcomeUnavailable
	case errors.Is(c.Err, ErrRateLimited):
		outcome = metrics.OutcomeRateLimited
	case errors.Is(c.Err, retry.ErrQuotaExceeded):
		outcome = metrics.OutcomeQuota
	default:
		outcome = metrics.OutcomeError
	}
	metrics.LLMRequests.WithLabelValues(c.Provider, c.Feature, outcome).Inc()
	metrics.LLMDuration.WithLabelValues(c.Provider, c.Feature).Observe(c.Latency.Seconds())

	entry := g.log.WithFields(logrus.Fields{
		"provider":   c.Provider,
		"feature":    c.Feature,
		"success":    c.Success,
		"latency_ms": c.Latency.Milliseconds(),
	})
	if c.Err != nil {
		entry.WithError(c.Err).WithField("outcome", outcome).Warn("llm call failed")
	} else {
		entry.Info("llm call")
	}

	if g.recorder != nil {
		if err := g.recorder.RecordCall(ctx, c); err != nil {
			g.log.WithError(err).Warn("record llm call")
		}
	}
}
