package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// FailureThreshold trips the breaker after this many consecutive failures
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration
	// HalfOpenProbes is how many probes may run, and must succeed, to close again
	HalfOpenProbes uint32
	// IsFailure decides whether an error counts against the breaker.
	// Context cancellation never does.
	IsFailure func(err error) bool
	// OnStateChange is called, under the breaker lock, on every transition
	OnStateChange func(name string, from, to State)
	// Now overrides the clock for tests
	Now func() time.Time
}

// Breaker guards calls to one remote collaborator
type Breaker struct {
	name     string
	settings Settings
	logger   *zap.Logger

	mu       sync.Mutex
	state    State
	failures uint32
	probes   uint32
	passed   uint32
	openedAt time.Time
}

// New creates a breaker, filling unset settings with defaults
func New(name string, settings Settings, logger *zap.Logger) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.OpenTimeout == 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if settings.HalfOpenProbes == 0 {
		settings.HalfOpenProbes = 1
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:     name,
		settings: settings,
		logger:   logger,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, promoting open to half-open once the
// timeout has elapsed
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// Call runs fn if the breaker admits it and records the outcome
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// Do is Call for functions that return a value
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probes >= b.settings.HalfOpenProbes {
			return ErrTooManyRequests
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	failed := err != nil &&
		!errors.Is(err, context.Canceled) &&
		b.settings.IsFailure(err)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		if failed {
			b.transition(StateOpen)
			return
		}
		b.passed++
		if b.passed >= b.settings.HalfOpenProbes {
			b.transition(StateClosed)
		}
	}
}

func (b *Breaker) current() State {
	if b.state == StateOpen && b.settings.Now().Sub(b.openedAt) >= b.settings.OpenTimeout {
		b.transition(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures, b.probes, b.passed = 0, 0, 0
	if to == StateOpen {
		b.openedAt = b.settings.Now()
	}

	b.logger.Info("circuit breaker state change",
		zap.String("breaker", b.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
