package restriction

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type laneRecorder struct {
	mu   sync.Mutex
	uids []int
}

func (r *laneRecorder) add(uid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uids = append(r.uids, uid)
}

func (r *laneRecorder) all() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.uids...)
}

func runLane(t *testing.T, l *Lane) (cancel func(), result <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancelFn()
		<-l.Done()
	})
	return cancelFn, done
}

func syncLane(t *testing.T, l *Lane) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Sync(ctx))
}

func TestLaneRunsEventsInOrder(t *testing.T) {
	rec := &laneRecorder{}
	l := NewLane(func(_ context.Context, ev Event) error {
		rec.add(ev.(UidActive).UID)
		return nil
	}, nil)
	runLane(t, l)

	var expected []int
	for i := 0; i < 200; i++ {
		require.NoError(t, l.Submit(UidActive{UID: i}))
		expected = append(expected, i)
	}
	syncLane(t, l)

	assert.Equal(t, expected, rec.all())
	assert.Zero(t, l.Len())
}

func TestLaneRunsOneEventAtATime(t *testing.T) {
	var inflight, peak atomic.Int32
	l := NewLane(func(context.Context, Event) error {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inflight.Add(-1)
		return nil
	}, nil)
	runLane(t, l)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, l.Submit(UidActive{UID: p*100 + i}))
			}
		}(p)
	}
	wg.Wait()
	syncLane(t, l)

	assert.Equal(t, int32(1), peak.Load())
}

func TestLaneSurvivesFaults(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := &laneRecorder{}
	l := NewLane(func(_ context.Context, ev Event) error {
		uid := ev.(UidActive).UID
		switch uid {
		case 1:
			panic("boom")
		case 2:
			return errors.New("bad event")
		}
		rec.add(uid)
		return nil
	}, logging.Wrap(zap.New(core)))
	runLane(t, l)

	for i := 0; i < 4; i++ {
		require.NoError(t, l.Submit(UidActive{UID: i}))
	}
	syncLane(t, l)

	assert.Equal(t, []int{0, 3}, rec.all())

	failures := logs.FilterMessage("Event handler failed").All()
	require.Len(t, failures, 2)

	panicked := failures[0].ContextMap()
	assert.Equal(t, "uid_active", panicked["event"])
	assert.Contains(t, panicked["error"], "panic: boom")
	assert.NotEmpty(t, panicked["stack"])

	errored := failures[1].ContextMap()
	assert.Equal(t, "bad event", errored["error"])
	assert.NotContains(t, errored, "stack")
}

func TestLaneCloseDrainsThenStops(t *testing.T) {
	rec := &laneRecorder{}
	l := NewLane(func(_ context.Context, ev Event) error {
		rec.add(ev.(UidActive).UID)
		return nil
	}, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Submit(UidActive{UID: i}))
	}
	l.Close()
	assert.ErrorIs(t, l.Submit(UidActive{UID: 99}), ErrLaneClosed)

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, rec.all())

	assert.ErrorIs(t, l.Sync(context.Background()), ErrLaneClosed)
}

func TestLaneCloseRunsFollowUps(t *testing.T) {
	rec := &laneRecorder{}
	var l *Lane
	l = NewLane(func(_ context.Context, ev Event) error {
		uid := ev.(UidActive).UID
		rec.add(uid)
		if uid < 3 {
			require.NoError(t, l.post(UidActive{UID: uid + 10}))
		}
		return nil
	}, nil)

	require.NoError(t, l.Submit(UidActive{UID: 1}))
	require.NoError(t, l.Submit(UidActive{UID: 2}))
	l.Close()
	assert.ErrorIs(t, l.Submit(UidActive{UID: 99}), ErrLaneClosed)

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, []int{1, 2, 11, 12}, rec.all())
	assert.ErrorIs(t, l.post(UidActive{UID: 50}), ErrLaneClosed)
	assert.Zero(t, l.Len())
}

func TestLaneCancelDropsQueue(t *testing.T) {
	var calls atomic.Int32
	l := NewLane(func(context.Context, Event) error {
		calls.Add(1)
		return nil
	}, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Submit(UidActive{UID: i}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
	assert.Zero(t, l.Len())
	assert.ErrorIs(t, l.Submit(UidActive{UID: 6}), ErrLaneClosed)
	assert.ErrorIs(t, l.post(UidActive{UID: 7}), ErrLaneClosed)
}

func TestLaneRunTwice(t *testing.T) {
	l := NewLane(func(context.Context, Event) error { return nil }, nil)
	runLane(t, l)

	// Wait for the first Run to own the lane.
	syncLane(t, l)
	assert.Error(t, l.Run(context.Background()))
}

func TestLanePushFrontRunsNext(t *testing.T) {
	rec := &laneRecorder{}
	var l *Lane
	l = NewLane(func(_ context.Context, ev Event) error {
		uid := ev.(UidActive).UID
		rec.add(uid)
		if uid == 0 {
			l.pushFront(UidActive{UID: 10}, UidActive{UID: 11})
		}
		return nil
	}, nil)

	// Queue everything before the lane starts so the order is fixed.
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Submit(UidActive{UID: i}))
	}
	runLane(t, l)
	syncLane(t, l)

	assert.Equal(t, []int{0, 10, 11, 1, 2}, rec.all())
}

func TestLaneSyncHonorsContext(t *testing.T) {
	l := NewLane(func(context.Context, Event) error { return nil }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Nobody runs the lane, so the barrier never completes.
	assert.ErrorIs(t, l.Sync(ctx), context.DeadlineExceeded)
}
