// Package circuit provides a circuit breaker for calls to a second-level
// page data store.
package circuit

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/objectfs/pagestate/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed lets calls through.
	StateClosed State = iota
	// StateOpen rejects calls until the open timeout passes.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config contains circuit breaker configuration
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32 `yaml:"max_failures"`

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// HalfOpenRequests is the number of probe calls allowed while half-open.
	HalfOpenRequests uint32 `yaml:"half_open_requests"`

	// OnStateChange is called with the breaker lock held; it must not call
	// back into the breaker.
	OnStateChange func(name string, from, to State) `yaml:"-"`

	// IsFailure decides whether an error counts against the breaker.
	IsFailure func(err error) bool `yaml:"-"`
}

// Counts holds the numbers of calls and their outcomes since the last state
// change.
type Counts struct {
	Requests             uint32 `json:"requests"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	name   string
	config Config
	now    func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, config Config) *Breaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = defaultIsFailure
	}
	return &Breaker{
		name:   name,
		config: config,
		now:    time.Now,
	}
}

// defaultIsFailure ignores cancellation by the caller.
func defaultIsFailure(err error) bool {
	return err != nil &&
		!stderrors.Is(err, context.Canceled) &&
		!stderrors.Is(err, context.DeadlineExceeded)
}

// Execute runs fn if the breaker allows it. A rejected call returns a
// DATA_STORE_UNAVAILABLE error without running fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	b.afterRequest(err)
	return err
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateOpen:
		return b.rejected("circuit breaker is open")
	case StateHalfOpen:
		if b.counts.Requests >= b.config.HalfOpenRequests {
			return b.rejected("too many requests in half-open state")
		}
	}
	b.counts.Requests++
	return nil
}

func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState()
	if !b.config.IsFailure(err) {
		b.counts.ConsecutiveFailures = 0
		b.counts.ConsecutiveSuccesses++
		if state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.config.MaxFailures {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
	}
}

// currentState moves an expired open breaker to half-open. Callers hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.config.OpenTimeout)) {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.counts = Counts{}
	if state == StateOpen {
		b.openedAt = b.now()
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, prev, state)
	}
}

func (b *Breaker) rejected(message string) error {
	return errors.NewError(errors.ErrCodeDataStoreUnavailable, message).
		WithComponent("circuit").
		WithDetail("breaker", b.name).
		WithDetail("state", b.state.String())
}

// State returns the current state of the breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// Counts returns a copy of the current counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.counts = Counts{}
}

// Name returns the name of the breaker.
func (b *Breaker) Name() string {
	return b.name
}
