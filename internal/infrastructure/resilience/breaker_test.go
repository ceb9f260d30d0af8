package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote failed")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clock *fakeClock) *Breaker {
	return New("standby", Settings{
		FailureThreshold: 3,
		OpenTimeout:      time.Second,
		HalfOpenProbes:   1,
		Now:              clock.Now,
	}, nil)
}

func fail(context.Context) error    { return errRemote }
func succeed(context.Context) error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []bool // true = success, false = failure
		expected State
	}{
		{name: "stays closed on successes", outcomes: []bool{true, true, true}, expected: StateClosed},
		{name: "opens after consecutive failures", outcomes: []bool{false, false, false}, expected: StateOpen},
		{name: "success resets the failure streak", outcomes: []bool{false, false, true, false, false}, expected: StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBreaker(&fakeClock{now: time.Unix(0, 0)})
			for _, ok := range tt.outcomes {
				fn := fail
				if ok {
					fn = succeed
				}
				_ = b.Call(context.Background(), fn)
			}
			assert.Equal(t, tt.expected, b.State())
		})
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	b := newTestBreaker(&fakeClock{now: time.Unix(0, 0)})
	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), fail)
	}

	called := false
	err := b.Call(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var transitions []State
	b := New("standby", Settings{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		Now:              clock.Now,
		OnStateChange: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	}, nil)

	_ = b.Call(context.Background(), fail)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Call(context.Background(), succeed))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), fail)
	}
	clock.Advance(time.Second)

	err := b.Call(context.Background(), fail)
	assert.ErrorIs(t, err, errRemote)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerLimitsProbes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), fail)
	}
	clock.Advance(time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Call(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, b.Call(context.Background(), succeed), ErrTooManyRequests)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := newTestBreaker(&fakeClock{now: time.Unix(0, 0)})
	for i := 0; i < 5; i++ {
		_ = b.Call(context.Background(), func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestDoReturnsValue(t *testing.T) {
	b := newTestBreaker(&fakeClock{now: time.Unix(0, 0)})

	v, err := Do(context.Background(), b, func(context.Context) (int, error) { return 45, nil })
	require.NoError(t, err)
	assert.Equal(t, 45, v)
}
