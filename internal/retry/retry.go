// Package retry implements the socket retry supervisor: exponential backoff
// with jitter, fault-kind dispatch, and delegation to a REST-fallback probe
// loop, expressed as a function wrapping a Dial closure rather than a
// decorator-based class hierarchy.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/session"
)

// Policy carries the backoff parameters.
type Policy struct {
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy returns the production policy: retries=3, base_delay=2s,
// max_delay=60s.
func DefaultPolicy() Policy {
	return Policy{Retries: 3, BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second}
}

// Dial performs one connect-subscribe-stream attempt (session.Session.Connect); it
// returns a *session.Fault on wire failure, or ctx.Err() when cancelled.
type Dial func(ctx context.Context) error

// Fallback runs the REST-fallback loop until its integrated probe
// succeeds, at which point it returns nil and control returns to Dial.
type Fallback func(ctx context.Context) error

// Supervisor drives one venue's Dial/Fallback pair under the backoff policy.
type Supervisor struct {
	policy Policy
	log    zerolog.Logger

	// jitter and sleep are overridable for deterministic tests.
	jitter func(delay time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds a Supervisor with policy and a logger scoped to the venue.
func New(policy Policy, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		policy: policy,
		log:    log.With().Str("component", "retry.supervisor").Logger(),
		jitter: defaultJitter,
		sleep:  defaultSleep,
	}
}

func defaultJitter(delay time.Duration) time.Duration {
	return time.Duration(rand.Float64() * 0.1 * float64(delay))
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Supervise runs dial under fault classification until ctx is cancelled or
// dial returns nil or a bare context.Canceled; the loop is endless at the
// service level. On FaultTransientWire it retries
// with backoff up to policy.Retries attempts, then falls back; on
// FaultOther it falls back immediately. When fallback returns (its probe
// succeeded), the attempt counter resets and dial is re-entered.
func (s *Supervisor) Supervise(ctx context.Context, dial Dial, fallback Fallback) error {
	attempt := 0
	for {
		err := dial(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A bare cancellation (not wrapped in a *session.Fault) is Dial's
		// non-fault outcome and ends supervision.
		var fault *session.Fault
		if errors.Is(err, context.Canceled) && !errors.As(err, &fault) {
			return err
		}

		kind := classify(err)

		if kind == session.FaultTransientWire && attempt < s.policy.Retries {
			attempt++
			delay := s.computeDelay(attempt)
			s.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("transient wire fault, backing off")
			if werr := s.sleep(ctx, delay); werr != nil {
				return werr
			}
			continue
		}

		s.log.Warn().Err(err).Msg("declaring socket unhealthy, delegating to REST fallback")
		if ferr := fallback(ctx); ferr != nil {
			return ferr
		}
		attempt = 0
	}
}

// computeDelay returns min(base*2^(attempt-1), max_delay) + jitter in
// [0, 10%] of that value.
func (s *Supervisor) computeDelay(attempt int) time.Duration {
	exp := math.Pow(2, float64(attempt-1))
	base := time.Duration(float64(s.policy.BaseDelay) * exp)
	if base > s.policy.MaxDelay {
		base = s.policy.MaxDelay
	}
	return base + s.jitter(base)
}

func classify(err error) session.FaultKind {
	var fault *session.Fault
	if errors.As(err, &fault) {
		return fault.Kind
	}
	return session.FaultOther
}
