// Package retry implements the exponential-backoff-with-jitter policy
// and per-destination circuit breaker of §4.8, adapting the control
// flow of the teacher's cutover.Run (bounded attempts, per-attempt
// warn-log, final hard error) from "retry the whole cutover" to
// "retry one batch write".
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/siddontang/loggers"
	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/writer"
)

// Schedule is the backoff schedule of §4.8: 1s,2s,4s,8s,16s,30s,30s,30s.
var Schedule = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	16 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
}

const (
	// BreakerOpenThreshold is the consecutive-failure count after
	// which the circuit breaker opens (§4.8).
	BreakerOpenThreshold = 4
)

type breakerState int

const (
	closedState breakerState = iota
	openState
	halfOpenState
)

// CircuitBreaker guards one destination: after BreakerOpenThreshold
// consecutive failures it opens and rejects calls until the next
// backoff window elapses, then half-opens for one trial call.
type CircuitBreaker struct {
	consecutiveFailures int
	state               breakerState
	openedAt            time.Time
	nextProbe           time.Duration
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{state: closedState}
}

func (b *CircuitBreaker) allow(now time.Time) bool {
	switch b.state {
	case closedState:
		return true
	case openState:
		if now.Sub(b.openedAt) >= b.nextProbe {
			b.state = halfOpenState
			return true
		}
		return false
	case halfOpenState:
		return true
	default:
		return true
	}
}

// isOpen reports whether the breaker is rejecting calls right now,
// without the state transition allow performs on probe expiry.
func (b *CircuitBreaker) isOpen(now time.Time) bool {
	return b.state == openState && now.Sub(b.openedAt) < b.nextProbe
}

func (b *CircuitBreaker) onSuccess() {
	b.consecutiveFailures = 0
	b.state = closedState
}

func (b *CircuitBreaker) onFailure(now time.Time, nextBackoff time.Duration) {
	b.consecutiveFailures++
	if b.consecutiveFailures >= BreakerOpenThreshold {
		b.state = openState
		b.openedAt = now
		b.nextProbe = nextBackoff
	}
}

// ErrBreakerOpen is returned by Policy.Do without invoking op when the
// circuit breaker is open.
var ErrBreakerOpen = errors.New("retry: circuit breaker open")

// Policy drives the retry loop for one destination's writes.
type Policy struct {
	breaker *CircuitBreaker
	logger  loggers.Advanced
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

func NewPolicy(logger loggers.Advanced) *Policy {
	return &Policy{
		breaker: NewCircuitBreaker(),
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op, retrying with jittered exponential backoff while the
// error classifies as connector.ErrorRetryable or
// connector.ErrorConnectionFailed, for at most
// len(Schedule) attempts total, honoring the circuit breaker
// throughout.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < len(Schedule); attempt++ {
		if !p.breaker.allow(p.now()) {
			return ErrBreakerOpen
		}
		err := op(ctx)
		if err == nil {
			p.breaker.onSuccess()
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			p.breaker.onFailure(p.now(), Schedule[0])
			return err
		}
		backoff := jitter(Schedule[attempt])
		p.breaker.onFailure(p.now(), backoff)
		if attempt == len(Schedule)-1 {
			break
		}
		if p.logger != nil {
			p.logger.Warnf("retry: attempt %d/%d failed: %v, backing off %s", attempt+1, len(Schedule), err, backoff)
		}
		if err := p.sleep(ctx, backoff); err != nil {
			return err
		}
	}
	return lastErr
}

// BreakerOpen reports whether the circuit breaker is currently
// rejecting calls, without itself counting as a probe attempt.
func (p *Policy) BreakerOpen() bool {
	return p.breaker.isOpen(p.now())
}

// WaitForBreaker blocks until the circuit breaker would allow a call
// through again (closed, or its probe window has elapsed), polling at
// a fixed interval — used by callers that pause item processing on
// ErrBreakerOpen rather than treating it as terminal (§4.8/§4.9).
func (p *Policy) WaitForBreaker(ctx context.Context) error {
	for {
		if p.breaker.allow(p.now()) {
			return nil
		}
		if err := p.sleep(ctx, breakerPollInterval); err != nil {
			return err
		}
	}
}

// breakerPollInterval is how often WaitForBreaker rechecks the
// breaker while an item is paused.
const breakerPollInterval = 50 * time.Millisecond

// jitter adds up to 20% random jitter to a backoff duration, the same
// jittered-exponential shape §4.8 specifies.
func jitter(d time.Duration) time.Duration {
	delta := time.Duration(rand.Int63n(int64(d) / 5))
	return d + delta
}

func isRetryable(err error) bool {
	var classified *writer.ClassifiedError
	if errors.As(err, &classified) {
		return classified.Kind == connector.ErrorRetryable || classified.Kind == connector.ErrorConnectionFailed
	}
	return false
}
