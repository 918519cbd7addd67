// Package executor runs external calls with bounded retry and classifies
// their failures.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/prospector/internal/config"
	obsmetrics "github.com/smallbiznis/prospector/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// State is the lifecycle position of one call.
type State string

const (
	StatePending    State = "pending"
	StateAttempting State = "attempting"
	StateRetryWait  State = "retry_wait"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

type Config struct {
	MaxAttempts          int
	BackoffUnit          time.Duration
	RateLimitBackoffUnit time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = 500 * time.Millisecond
	}
	if c.RateLimitBackoffUnit <= 0 {
		c.RateLimitBackoffUnit = time.Second
	}
	return c
}

// Backoff is the wait after the failure of attempt index attemptIndex (0-based).
func (c Config) Backoff(kind ErrorKind, attemptIndex int) time.Duration {
	unit := c.BackoffUnit
	if kind == KindRateLimited {
		unit = c.RateLimitBackoffUnit
	}
	return unit * time.Duration(1<<uint(attemptIndex))
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
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

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Executor struct {
	cfg     Config
	sleep   SleepFunc
	log     *zap.Logger
	metrics *obsmetrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Executor)

func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

func WithMetrics(m *obsmetrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func New(p Params) *Executor {
	return NewWithConfig(Config{
		MaxAttempts:          p.Config.Executor.MaxAttempts,
		BackoffUnit:          p.Config.Executor.BackoffUnit,
		RateLimitBackoffUnit: p.Config.Executor.RateLimitBackoffUnit,
	}, p.Log, WithMetrics(p.Metrics))
}

func NewWithConfig(cfg Config, log *zap.Logger, opts ...Option) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Executor{
		cfg:    cfg.withDefaults(),
		sleep:  sleepContext,
		log:    log.Named("executor"),
		tracer: otel.Tracer("prospector/executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Config() Config { return e.cfg }

// Outcome describes one finished call. Kind is the terminal classification;
// LastKind is the classification of the final attempt.
type Outcome[T any] struct {
	Value      T
	State      State
	Kind       ErrorKind
	LastKind   ErrorKind
	Err        error
	Attempts   int
	Elapsed    time.Duration
	Waits      []time.Duration
	StatusCode int
}

func (o Outcome[T]) OK() bool { return o.State == StateSucceeded }

// AsError returns nil for a successful outcome and a *CallError otherwise.
func (o Outcome[T]) AsError(call string) error {
	if o.OK() {
		return nil
	}
	return &CallError{
		Call:       call,
		Kind:       o.Kind,
		LastKind:   o.LastKind,
		Attempts:   o.Attempts,
		StatusCode: o.StatusCode,
		Err:        o.Err,
	}
}

// Execute invokes fn until it succeeds, fails terminally, or MaxAttempts
// retryable failures have occurred. Every retryable failure is followed by a
// 2^attemptIndex unit wait. Exhausted retries escalate to call_failed.
func Execute[T any](ctx context.Context, e *Executor, call string, fn func(context.Context) (T, error)) Outcome[T] {
	ctx, span := e.tracer.Start(ctx, "executor."+call, trace.WithAttributes(attribute.String("call", call)))
	defer span.End()

	start := time.Now()
	out := Outcome[T]{State: StatePending}
	finish := func() Outcome[T] {
		out.Elapsed = time.Since(start)
		span.SetAttributes(
			attribute.Int("attempts", out.Attempts),
			attribute.String("outcome", string(out.State)),
		)
		if out.State == StateFailed {
			span.SetAttributes(attribute.String("error_kind", string(out.Kind)))
			span.SetStatus(codes.Error, string(out.Kind))
		}
		e.metrics.RecordCallOutcome(ctx, call, string(out.State), string(out.Kind), out.Elapsed)
		return out
	}

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			out.State, out.Kind, out.Err = StateFailed, KindCallFailed, err
			return finish()
		}

		out.State = StateAttempting
		out.Attempts = attempt + 1
		e.metrics.RecordCallAttempt(ctx, call)

		value, err := fn(ctx)
		if err == nil {
			out.Value = value
			out.State = StateSucceeded
			out.Kind, out.Err = KindNone, nil
			return finish()
		}

		kind := Classify(err)
		out.Err = err
		out.LastKind = kind
		if code := StatusCodeOf(err); code != 0 {
			out.StatusCode = code
		}

		if !kind.Retryable() {
			out.State, out.Kind = StateFailed, kind
			e.log.Warn("call failed",
				zap.String("call", call),
				zap.Int("attempt", out.Attempts),
				zap.String("error_kind", string(kind)),
				zap.Error(err),
			)
			return finish()
		}

		wait := e.cfg.Backoff(kind, attempt)
		out.State = StateRetryWait
		out.Waits = append(out.Waits, wait)
		e.log.Info("call failed, backing off",
			zap.String("call", call),
			zap.Int("attempt", out.Attempts),
			zap.String("error_kind", string(kind)),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := e.sleep(ctx, wait); err != nil {
			out.State, out.Kind = StateFailed, KindCallFailed
			out.Err = fmt.Errorf("%w (last error: %v)", err, out.Err)
			return finish()
		}
	}

	out.State, out.Kind = StateFailed, KindCallFailed
	e.log.Warn("call retries exhausted",
		zap.String("call", call),
		zap.Int("attempts", out.Attempts),
		zap.String("last_error_kind", string(out.LastKind)),
	)
	return finish()
}
