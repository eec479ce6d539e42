// Package circuit stops calling a failing dependency for a cooldown period
// after repeated failures, then probes it again.
package circuit

import (
	"sync"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Change reports a transition caused by a recorded result.
type Change struct {
	Opened bool
	Closed bool
}

// Breaker counts consecutive failures. It opens after failureThreshold of
// them, rejects calls until cooldown has passed, and closes again after
// successThreshold consecutive successes while half-open.
type Breaker struct {
	mu sync.Mutex

	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time

	state     State
	failures  int
	successes int
	openedAt  time.Time
}

type Option func(*Breaker)

func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 1,
		cooldown:         30 * time.Second,
		now:              time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) IsOpen() bool {
	return b.State() != StateClosed
}

// Allow reports whether a call may go through. An open breaker whose cooldown
// has elapsed moves to half-open and lets calls probe the dependency.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.cooldown)) {
		b.state = StateHalfOpen
		b.successes = 0
	}
	return b.state != StateOpen
}

func (b *Breaker) RecordSuccess() Change {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == StateClosed {
		return Change{}
	}
	b.successes++
	if b.successes < b.successThreshold {
		return Change{}
	}
	b.state = StateClosed
	b.successes = 0
	return Change{Closed: true}
}

func (b *Breaker) RecordFailure() Change {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes = 0
	switch b.state {
	case StateHalfOpen:
		b.trip()
		return Change{Opened: true}
	case StateOpen:
		return Change{}
	}
	b.failures++
	if b.failures >= b.failureThreshold {
		b.trip()
		return Change{Opened: true}
	}
	return Change{}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}
