package actor

import (
	"sync/atomic"
	"time"
)

// breakerState is one of a CircuitBreaker's three states.
type breakerState uint32

const (
	// breakerClosed lets every request through.
	breakerClosed breakerState = iota
	// breakerOpen rejects every request until openFor elapses, then
	// moves to half-open.
	breakerOpen
	// breakerHalfOpen lets exactly one probe request through; success
	// closes the breaker, failure reopens it.
	breakerHalfOpen
)

// CircuitBreaker guards one route (a bare AID's destination) against
// repeated failed deliveries: past threshold consecutive failures it
// opens and rejects sends outright, giving the target time to recover
// before the next probe.
//
// State transitions:
//   - closed -> open: threshold consecutive failures
//   - open -> half-open: openFor has elapsed since opening
//   - half-open -> closed: the probe request succeeds
//   - half-open -> open: the probe request fails
type CircuitBreaker struct {
	failures      atomic.Uint64
	state         atomic.Uint32
	openedAtUnix  atomic.Int64
	halfOpenProbe atomic.Bool

	threshold uint64
	openFor   time.Duration
}

// NewCircuitBreaker creates a breaker with the given failure threshold
// and open duration. Zero values default to threshold=50, openFor=30s.
func NewCircuitBreaker(threshold uint64, openFor time.Duration) *CircuitBreaker {
	if threshold == 0 {
		threshold = 50
	}
	if openFor == 0 {
		openFor = 30 * time.Second
	}
	cb := &CircuitBreaker{threshold: threshold, openFor: openFor}
	cb.state.Store(uint32(breakerClosed))
	return cb
}

// Allow reports whether a send may proceed at time now: always true
// when closed, false when open until openFor elapses, and true for
// exactly one probe when half-open.
func (b *CircuitBreaker) Allow(now time.Time) bool {
	st := breakerState(b.state.Load())
	switch st {
	case breakerClosed:
		return true
	case breakerOpen:
		opened := time.Unix(0, b.openedAtUnix.Load())
		if now.Sub(opened) >= b.openFor {
			if b.state.CompareAndSwap(uint32(breakerOpen), uint32(breakerHalfOpen)) {
				b.halfOpenProbe.Store(false)
			}
			st = breakerHalfOpen
		} else {
			return false
		}
		fallthrough
	case breakerHalfOpen:
		return b.halfOpenProbe.CompareAndSwap(false, true)
	default:
		return false
	}
}

// OnSuccess records a successful delivery, resetting the breaker to
// closed.
func (b *CircuitBreaker) OnSuccess() {
	b.failures.Store(0)
	b.state.Store(uint32(breakerClosed))
	b.halfOpenProbe.Store(false)
}

// OnFailure records a failed delivery. A failure while half-open
// reopens the breaker immediately; otherwise it opens once failures
// reach threshold.
func (b *CircuitBreaker) OnFailure(now time.Time) {
	if breakerState(b.state.Load()) == breakerHalfOpen {
		b.open(now)
		return
	}
	if b.failures.Add(1) >= b.threshold {
		b.open(now)
	}
}

func (b *CircuitBreaker) open(now time.Time) {
	b.openedAtUnix.Store(now.UnixNano())
	b.state.Store(uint32(breakerOpen))
	b.halfOpenProbe.Store(false)
}
