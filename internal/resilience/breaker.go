// Package resilience guards calls to remote collaborators with a circuit
// breaker so a failing LLM provider is skipped quickly instead of stalling
// every interview turn on network timeouts.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type BreakerConfig struct {
	Name string
	// MaxFailures consecutive failures open the breaker. Default 5.
	MaxFailures int
	// Cooldown is how long the breaker stays open before letting a probe
	// through. Default 30s.
	Cooldown time.Duration
	// Probes successful half-open calls close the breaker again. Default 1.
	Probes int
}

type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	logger      *slog.Logger
	now         func() time.Time

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	inFlight   int
	successful int
}

func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.Probes,
		logger:      logger,
		now:         time.Now,
	}
}

// Do runs fn unless the breaker is open. While half-open only Probes calls
// may be in flight at once; the rest are rejected with ErrCircuitOpen.
func (b *Breaker) Do(fn func() error) error {
	halfOpen, err := b.admit()
	if err != nil {
		return err
	}

	callErr := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if halfOpen {
		b.inFlight--
	}
	if callErr != nil {
		b.fail(halfOpen)
	} else {
		b.succeed(halfOpen)
	}
	return callErr
}

func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.successful = 0
		b.inFlight = 0
		b.logger.Info("circuit breaker half-open", "name", b.name)
	}
	if b.state == StateHalfOpen {
		if b.inFlight >= b.probes {
			return false, ErrCircuitOpen
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) fail(halfOpen bool) {
	if halfOpen {
		b.trip()
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.maxFailures {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.logger.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.failures)
}

func (b *Breaker) succeed(halfOpen bool) {
	if !halfOpen {
		b.failures = 0
		return
	}
	b.successful++
	if b.state == StateHalfOpen && b.successful >= b.probes {
		b.state = StateClosed
		b.failures = 0
		b.logger.Info("circuit breaker closed", "name", b.name)
	}
}

// State reports the breaker state, treating an open breaker whose cooldown
// has elapsed as half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}
