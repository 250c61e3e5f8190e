package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Policy describes how a download is retried. Waits double from Base up to
// Cap, shortened by up to Jitter of their length so parallel fetches
// against one mirror drift apart.
type Policy struct {
	Attempts int // total tries; 1 disables retries
	Base     time.Duration
	Cap      time.Duration
	Jitter   float64

	// Label names the operation in retry log lines.
	Label string

	// Retryable decides whether a failure is worth another try. Nil uses
	// the package-level Retryable.
	Retryable func(error) bool

	// OnRetry runs before each wait. Nil logs a warning.
	OnRetry func(attempt int, wait time.Duration, err error)

	Clock clockwork.Clock
}

// DefaultPolicy is the download policy before config overrides.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Base:     time.Second,
		Cap:      30 * time.Second,
		Jitter:   0.25,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Cap <= 0 {
		p.Cap = def.Cap
	}
	p.Jitter = min(max(p.Jitter, 0), 1)
	if p.Retryable == nil {
		p.Retryable = Retryable
	}
	if p.OnRetry == nil {
		label := p.Label
		p.OnRetry = func(attempt int, wait time.Duration, err error) {
			zap.L().Warn("fetch: retrying",
				zap.String("op", label),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	return p
}

// Wait is the pause before retry n (1-based), without jitter.
func (p Policy) Wait(n int) time.Duration {
	d := p.Base
	for i := 1; i < n && d < p.Cap; i++ {
		d *= 2
	}
	return min(d, p.Cap)
}

func (p Policy) jittered(n int) time.Duration {
	d := p.Wait(n)
	if p.Jitter == 0 {
		return d
	}
	return d - time.Duration(rand.Float64()*p.Jitter*float64(d))
}

// Retry runs op until it succeeds, fails with a non-retryable error, runs
// out of attempts, or ctx ends. The last error is returned unchanged.
func Retry[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.Attempts || ctx.Err() != nil || !p.Retryable(err) {
			return zero, err
		}

		wait := p.jittered(attempt)
		p.OnRetry(attempt, wait, err)
		select {
		case <-ctx.Done():
			return zero, err
		case <-p.Clock.After(wait):
		}
	}
}
