package testkit

import (
	"math/rand"
	"time"
)

// Chaos injects network-fault-like behavior into a test: it can drop an
// operation outright or delay it by a random amount, exercising a
// container's retry, timeout, and circuit-breaker paths without a real
// flaky transport.
type Chaos struct {
	// DropProbability is the chance (0.0-1.0) that Apply drops fn
	// without running it.
	DropProbability float64
	// MaxDelay is the upper bound of a random pre-call delay.
	MaxDelay time.Duration
	// Rand is the source used for both decisions; nil seeds one from
	// the current time.
	Rand *rand.Rand
}

// Apply runs fn, first rolling DropProbability and then, if not
// dropped, sleeping a random duration up to MaxDelay. ok is false only
// when fn was dropped.
func (c Chaos) Apply(fn func()) bool {
	r := c.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.DropProbability > 0 && r.Float64() < c.DropProbability {
		return false
	}
	if c.MaxDelay > 0 {
		time.Sleep(time.Duration(r.Int63n(int64(c.MaxDelay))))
	}
	fn()
	return true
}
