package actor

import (
	"sync"
	"time"

	"github.com/nyxmesh/container/mailbox"
)

// RestartStrategy selects how a supervisor reacts to a hosted actor's
// panic.
type RestartStrategy uint8

const (
	// OneForOne restarts only the failed actor, leaving its siblings
	// untouched.
	OneForOne RestartStrategy = iota
	// OneForAll restarts every supervised actor when any one of them
	// fails, for actors whose state must stay consistent as a group.
	OneForAll
	// RestForOne restarts the failed actor and every actor spawned
	// after it, for actors with a dependency on earlier ones.
	RestForOne
)

// BackoffFunc computes the delay before the retry-th restart attempt
// (retries counted from 0).
type BackoffFunc func(retry int) time.Duration

// ExponentialBackoff returns a backoff that starts at base and doubles
// on each retry up to max. base and max default to 50ms and 5s when
// zero.
func ExponentialBackoff(base, max time.Duration) BackoffFunc {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Second
	}
	return func(retry int) time.Duration {
		d := base
		for i := 0; i < retry; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		return d
	}
}

// childSpec is enough to recreate a supervised actor via AddActor after
// it dies.
type childSpec struct {
	aid     string
	handler Handler
	opts    mailbox.Options
}

// childEntry tracks a supervised actor's restart count.
type childEntry struct {
	spec    childSpec
	retries int
}

// Supervisor watches a set of PROCESS-scoped actors hosted by one
// Container and restarts them on panic, per the configured
// RestartStrategy. A hosted handler's panic is always caught and
// logged, never propagated; restart on top of that is opt-in
// enrichment, wired to spawn processActor-backed Handlers via
// Container.AddActor.
type Supervisor struct {
	container  *Container
	strategy   RestartStrategy
	maxRetries int
	backoff    BackoffFunc

	mu       sync.Mutex
	children []childEntry

	restartsMu sync.Mutex
	restarts   uint64
}

// SupervisorOptions configures a Supervisor's restart behavior.
type SupervisorOptions struct {
	Strategy   RestartStrategy
	MaxRetries int
	Backoff    BackoffFunc
}

// NewSupervisor creates a supervisor bound to container and subscribes
// it to the container's failure notifications.
func NewSupervisor(container *Container, opts SupervisorOptions) *Supervisor {
	b := opts.Backoff
	if b == nil {
		b = ExponentialBackoff(50*time.Millisecond, 5*time.Second)
	}
	s := &Supervisor{
		container:  container,
		strategy:   opts.Strategy,
		maxRetries: opts.MaxRetries,
		backoff:    b,
	}
	if s.maxRetries == 0 {
		s.maxRetries = 10
	}
	if container != nil {
		container.SubscribeFailures(s.onFailure)
	}
	return s
}

// Spawn adds a supervised actor to the container and remembers how to
// recreate it after a panic. aid must be a valid identifier; an invalid
// aid is not added to the supervisor's watch list, matching
// Container.AddActor's own no-state-change-on-failure contract.
func (s *Supervisor) Spawn(aid string, handler Handler, opts mailbox.Options) (string, error) {
	full, err := s.container.AddActor(aid, handler, opts)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.children = append(s.children, childEntry{spec: childSpec{aid: full, handler: handler, opts: opts}})
	s.mu.Unlock()
	return full, nil
}

// RestartCount returns the number of restarts the supervisor has
// performed.
func (s *Supervisor) RestartCount() uint64 {
	s.restartsMu.Lock()
	n := s.restarts
	s.restartsMu.Unlock()
	return n
}

func (s *Supervisor) onFailure(aid string, _ any) {
	s.mu.Lock()
	idx := -1
	for i := range s.children {
		if s.children[i].spec.aid == aid {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	switch s.strategy {
	case OneForAll:
		for i := range s.children {
			go s.restartChild(i)
		}
	case RestForOne:
		for i := idx; i < len(s.children); i++ {
			go s.restartChild(i)
		}
	default:
		go s.restartChild(idx)
	}
	s.mu.Unlock()
}

func (s *Supervisor) restartChild(i int) {
	s.mu.Lock()
	if i < 0 || i >= len(s.children) {
		s.mu.Unlock()
		return
	}
	entry := s.children[i]
	entry.retries++
	if entry.retries > s.maxRetries {
		s.mu.Unlock()
		return
	}
	delay := s.backoff(entry.retries - 1)
	s.children[i] = entry
	s.mu.Unlock()

	time.Sleep(delay)
	_ = s.container.RemoveActor(entry.spec.aid)
	_, _ = s.container.AddActor(entry.spec.aid, entry.spec.handler, entry.spec.opts)

	s.restartsMu.Lock()
	s.restarts++
	s.restartsMu.Unlock()
	if s.container.metrics != nil {
		s.container.metrics.IncRestart()
	}
}
