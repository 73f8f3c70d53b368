// Package resilience guards calls to the external sound classifier.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open).
// When the classifier service degrades, the breaker sheds calls immediately
// instead of letting every analysis frame wait out a timeout.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Execute] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards all calls.
	Closed State = iota

	// Open rejects calls with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Threshold is how many consecutive failures open the breaker.
	// Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is how many half-open calls must succeed before the breaker
	// closes again. Default: 3.
	Probes int
}

// Breaker implements the three-state circuit breaker pattern.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	probes    int

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
	passed   int
}

// NewBreaker creates a closed [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		probes:    cfg.Probes,
	}
}

// Execute runs fn unless the breaker is shedding load. In the open state it
// returns [ErrOpen] without calling fn; in half-open only the probe budget
// gets through.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.inFlight = 0
		b.passed = 0
		slog.Info("circuit breaker probing", "name", b.name)

	case HalfOpen:
		if b.inFlight >= b.probes {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == HalfOpen
	if probing {
		b.inFlight++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.fail(probing)
	} else {
		b.succeed(probing)
	}
	return err
}

// fail records a failed call. Caller holds b.mu.
func (b *Breaker) fail(probing bool) {
	b.openedAt = time.Now()
	if probing {
		b.state = Open
		b.failures = b.threshold
		slog.Warn("circuit breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.threshold && b.state == Closed {
		b.state = Open
		slog.Warn("circuit breaker opened", "name", b.name, "failures", b.failures)
	}
}

// succeed records a successful call. Caller holds b.mu.
func (b *Breaker) succeed(probing bool) {
	if probing {
		b.passed++
		if b.passed >= b.probes {
			b.state = Closed
			b.failures = 0
			slog.Info("circuit breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports [HalfOpen]; the transition itself happens on the next
// [Breaker.Execute].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.inFlight = 0
	b.passed = 0
}
