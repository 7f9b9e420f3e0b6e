package circuit

import (
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state for one endpoint key.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Calls blocked
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// Config holds circuit breaker configuration shared by all keys.
type Config struct {
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before opening
	Cooldown         time.Duration `json:"cooldown"`          // Time in OPEN before trial calls
	HalfOpenMax      int           `json:"half_open_max"`     // Trial calls allowed in HALF_OPEN
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
		HalfOpenMax:      1,
	}
}

type endpoint struct {
	state       BreakerState
	failures    int
	openedAt    time.Time
	trialsInUse int
}

// Breaker is a per-endpoint failure-counting wrapper. Each logical endpoint
// name gets its own state machine; keys are created lazily in CLOSED state.
type Breaker struct {
	config Config
	now    func() time.Time
	mu     sync.Mutex
	keys   map[string]*endpoint
}

// NewBreaker creates a breaker with the given configuration.
func NewBreaker(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultConfig().Cooldown
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = DefaultConfig().HalfOpenMax
	}
	return &Breaker{
		config: config,
		now:    time.Now,
		keys:   make(map[string]*endpoint),
	}
}

// SetClock overrides the time source. Intended for tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

func (b *Breaker) get(key string) *endpoint {
	ep, ok := b.keys[key]
	if !ok {
		ep = &endpoint{state: StateClosed}
		b.keys[key] = ep
	}
	return ep
}

// CanRequest reports whether a call to the endpoint is currently allowed.
// It must be checked before every call; an OPEN endpoint transitions to
// HALF_OPEN once the cooldown window has elapsed, after which a bounded
// number of trial calls is admitted.
func (b *Breaker) CanRequest(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ep := b.get(key)
	switch ep.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(ep.openedAt) < b.config.Cooldown {
			return false
		}
		ep.state = StateHalfOpen
		ep.trialsInUse = 0
		fallthrough
	case StateHalfOpen:
		if ep.trialsInUse >= b.config.HalfOpenMax {
			return false
		}
		ep.trialsInUse++
		return true
	}
	return false
}

// Success reports a completed call. A trial success in HALF_OPEN closes
// the endpoint and clears the failure count.
func (b *Breaker) Success(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ep := b.get(key)
	ep.failures = 0
	if ep.state == StateHalfOpen {
		ep.state = StateClosed
		ep.trialsInUse = 0
	}
}

// Failure reports a failed call (timeouts included). Reaching the
// consecutive-failure threshold, or failing a HALF_OPEN trial, opens the
// endpoint.
func (b *Breaker) Failure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ep := b.get(key)
	ep.failures++
	if ep.state == StateHalfOpen || ep.failures >= b.config.FailureThreshold {
		ep.state = StateOpen
		ep.openedAt = b.now()
		ep.failures = 0
	}
}

// State returns the endpoint's current state without side effects.
func (b *Breaker) State(key string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(key).state
}
