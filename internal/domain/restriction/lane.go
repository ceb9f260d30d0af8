package restriction

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/id"
	"go.uber.org/zap"
)

// Handler applies one event. A returned error or a panic is fatal to that
// event only.
type Handler func(ctx context.Context, ev Event) error

type envelope struct {
	id       id.EventID
	ev       Event
	enqueued time.Time
}

// Lane runs events one at a time, in submission order, on the goroutine
// that calls Run. Submit never blocks.
type Lane struct {
	handler Handler
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	mu     sync.Mutex
	queue   []envelope // Protected by mu
	closed  bool       // Protected by mu
	stopped bool       // Protected by mu

	wake    chan struct{}
	done    chan struct{}
	running atomic.Bool
}

// NewLane creates a lane that feeds handler
func NewLane(handler Handler, logger *logging.Logger) *Lane {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Lane{
		handler: handler,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// WithMetrics adds metrics tracking to the lane
func (l *Lane) WithMetrics(metrics *monitoring.Metrics) *Lane {
	l.metrics = metrics
	return l
}

// WithTracer records a span per event
func (l *Lane) WithTracer(tracer *tracing.Tracer) *Lane {
	l.tracer = tracer
	return l
}

// Submit appends ev to the queue
func (l *Lane) Submit(ev Event) error {
	return l.enqueue(ev, false)
}

// post queues an event raised by a handler. It is accepted while a closed
// lane drains, so follow-up work of queued events still runs.
func (l *Lane) post(ev Event) error {
	return l.enqueue(ev, true)
}

func (l *Lane) enqueue(ev Event, internal bool) error {
	l.mu.Lock()
	if l.stopped || (l.closed && !internal) {
		l.mu.Unlock()
		return ErrLaneClosed
	}
	l.queue = append(l.queue, envelope{id: id.NewEventID(), ev: ev, enqueued: time.Now()})
	depth := len(l.queue)
	l.mu.Unlock()

	l.metrics.SetQueueDepth(depth)

	// A pending signal already covers this event.
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of queued events
func (l *Lane) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Done is closed once Run has returned
func (l *Lane) Done() <-chan struct{} {
	return l.done
}

// Close stops accepting events from Submit. Run drains what is already
// queued, including events those handlers raise, then returns nil.
func (l *Lane) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Sync waits until every event submitted before it has been handled
func (l *Lane) Sync(ctx context.Context) error {
	b := barrier{done: make(chan struct{})}
	if err := l.Submit(b); err != nil {
		return err
	}

	select {
	case <-b.done:
		return nil
	case <-l.done:
		return ErrLaneClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the lane until ctx is cancelled or Close is called.
// Queued events are dropped on cancellation.
func (l *Lane) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("restriction: lane already running")
	}
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.stop()
			return ctx.Err()
		default:
		}

		env, ok, closed := l.next()
		if ok {
			l.execute(ctx, env)
			continue
		}
		if closed {
			l.stop()
			return nil
		}

		select {
		case <-ctx.Done():
			l.stop()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Lane) next() (envelope, bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return envelope{}, false, l.closed
	}
	env := l.queue[0]
	l.queue[0] = envelope{}
	l.queue = l.queue[1:]
	if len(l.queue) == 0 {
		l.queue = nil
	}
	l.metrics.SetQueueDepth(len(l.queue))
	return env, true, l.closed
}

// pushFront queues evs ahead of everything else, keeping their order.
// Only the goroutine running the lane calls it.
func (l *Lane) pushFront(evs ...Event) {
	if len(evs) == 0 {
		return
	}
	now := time.Now()
	front := make([]envelope, 0, len(evs))
	for _, ev := range evs {
		front = append(front, envelope{id: id.NewEventID(), ev: ev, enqueued: now})
	}

	l.mu.Lock()
	l.queue = append(front, l.queue...)
	depth := len(l.queue)
	l.mu.Unlock()

	l.metrics.SetQueueDepth(depth)
}

func (l *Lane) stop() {
	l.mu.Lock()
	l.closed = true
	l.stopped = true
	dropped := len(l.queue)
	l.queue = nil
	l.mu.Unlock()

	if dropped > 0 {
		l.logger.Warn("Lane stopped with pending events", zap.Int("dropped", dropped))
	}
}

func (l *Lane) execute(ctx context.Context, env envelope) {
	if b, ok := env.ev.(barrier); ok {
		close(b.done)
		return
	}

	var span *tracing.Span
	if l.tracer != nil {
		span, ctx = l.tracer.StartSpan(ctx, string(env.ev.Kind()))
		span.SetTag("event_id", env.id.String())
	}

	start := time.Now()
	stack, err := l.invoke(ctx, env.ev)
	elapsed := time.Since(start)

	if err != nil {
		fields := append(eventFields(env.ev),
			zap.String("event_id", env.id.String()),
			zap.Duration("queued", start.Sub(env.enqueued)),
			zap.Error(err),
		)
		if stack != nil {
			fields = append(fields, zap.ByteString("stack", stack))
		}
		l.logger.Error("Event handler failed", fields...)
	}
	l.metrics.RecordEvent(string(env.ev.Kind()), elapsed, err != nil)
	if span != nil {
		if err != nil {
			span.SetError(err)
		}
		l.tracer.Finish(span)
	}
}

func (l *Lane) invoke(ctx context.Context, ev Event) (stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			stack = debug.Stack()
		}
	}()
	return nil, l.handler(ctx, ev)
}
