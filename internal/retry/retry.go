package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"arxivalert/internal/notify"
)

// Policy bounds the retry behavior of one delivery.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
}

// DefaultPolicy mirrors the notification retry settings the bot ships with.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.2,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.JitterFraction < 0 || p.JitterFraction >= 1 {
		p.JitterFraction = 0
	}
	return p
}

// delay computes the backoff before retrying after the attempt-th failure
// (1-based): min(MaxDelay, BaseDelay * 2^(attempt-1)).
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Outcome reports how a retried operation ended.
type Outcome struct {
	Attempts int
	Err      error // nil on success
	Terminal bool  // true when the failure class forbade further attempts
}

// Success reports whether the operation eventually succeeded.
func (o Outcome) Success() bool { return o.Err == nil }

// Engine executes operations under a Policy. Sleeping and randomness are
// injected so backoff math is testable without real delays.
type Engine struct {
	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
	logger *slog.Logger
}

// Option tweaks an Engine.
type Option func(*Engine)

// WithSleep replaces the timer-based sleep (used by tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithRandom replaces the jitter source with a deterministic one.
func WithRandom(fn func() float64) Option {
	return func(e *Engine) { e.random = fn }
}

// NewEngine builds a retry engine logging attempt progress at debug level.
func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		sleep:  sleepCtx,
		random: rand.Float64,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs op until it succeeds, fails terminally, or exhausts the policy.
// The engine only invokes op and sleeps; it never touches the ledger.
func (e *Engine) Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) Outcome {
	policy = policy.withDefaults()

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return Outcome{Attempts: attempt}
		}

		if !notify.IsRetryable(err) {
			return Outcome{Attempts: attempt, Err: err, Terminal: true}
		}
		if attempt >= policy.MaxAttempts {
			return Outcome{Attempts: attempt, Err: err}
		}

		delay := e.jittered(policy, attempt)
		e.debug("delivery retry scheduled", "attempt", attempt+1, "max", policy.MaxAttempts, "delay", delay, "error", err)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return Outcome{Attempts: attempt, Err: sleepErr}
		}
	}
}

// jittered scales the exponential delay by a uniform factor in
// [1-JitterFraction, 1+JitterFraction].
func (e *Engine) jittered(policy Policy, attempt int) time.Duration {
	d := policy.delay(attempt)
	if policy.JitterFraction == 0 {
		return d
	}
	factor := 1 + policy.JitterFraction*(2*e.random()-1)
	return time.Duration(float64(d) * factor)
}

func (e *Engine) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	tmr := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !tmr.Stop() {
			<-tmr.C
		}
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
