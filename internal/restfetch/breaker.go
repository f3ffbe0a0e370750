package restfetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned by CircuitBreaker.Call while a venue's breaker
// is open (or its half-open request budget is exhausted).
var ErrCircuitOpen = errors.New("restfetch: circuit open")

// CircuitBreaker stops hammering a venue whose REST endpoint is already
// failing: one breaker per venue, opened after failureThreshold consecutive
// failures, admitting a single half-open probe again after timeout. Each
// venue's breaker wraps its own sony/gobreaker.CircuitBreaker, lazily
// initialized on first use with the failureThreshold/timeout pair the REST
// poller varies per venue.
type CircuitBreaker struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCircuitBreaker builds an empty breaker set; each venue's breaker is
// created lazily on first Call with the given policy.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (cb *CircuitBreaker) get(venue string, failureThreshold int, timeout time.Duration) *gobreaker.CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	b, ok := cb.breakers[venue]
	if ok {
		return b
	}
	b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        venue,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failureThreshold)
		},
	})
	cb.breakers[venue] = b
	return b
}

// Call executes fn under venue's breaker: an open breaker short-circuits
// with ErrCircuitOpen until timeout elapses, at which point one half-open
// probe is allowed through; a success there closes the breaker, a failure
// reopens it.
func (cb *CircuitBreaker) Call(ctx context.Context, venue string, failureThreshold int, timeout time.Duration, fn func(ctx context.Context) error) error {
	b := cb.get(venue, failureThreshold, timeout)
	_, err := b.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}
