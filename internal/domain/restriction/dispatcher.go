package restriction

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
)

// LevelChange is delivered to listeners once per realized change
type LevelChange struct {
	UID      int                    `json:"uid"`
	Package  string                 `json:"package"`
	Level    types.RestrictionLevel `json:"level"`
	Previous types.RestrictionLevel `json:"previous"`
	Reason   types.Reason           `json:"reason"`
	At       time.Time              `json:"at"`
}

// Listener observes realized level changes
type Listener interface {
	OnRestrictionLevelChanged(change LevelChange)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(change LevelChange)

// OnRestrictionLevelChanged calls f
func (f ListenerFunc) OnRestrictionLevelChanged(change LevelChange) {
	f(change)
}

type registration struct {
	listener Listener
}

// Dispatcher fans changes out to listeners. Registration copies the set, so
// Notify reads an immutable snapshot without locking.
type Dispatcher struct {
	mu        sync.Mutex // serializes writers
	listeners atomic.Pointer[[]*registration]
	onPanic   func(change LevelChange, recovered error)
}

// NewDispatcher creates a dispatcher. onPanic, if set, is told about
// listeners that panicked.
func NewDispatcher(onPanic func(change LevelChange, recovered error)) *Dispatcher {
	d := &Dispatcher{onPanic: onPanic}
	empty := []*registration{}
	d.listeners.Store(&empty)
	return d
}

// Add registers l and returns a func that removes it
func (d *Dispatcher) Add(l Listener) (remove func()) {
	reg := &registration{listener: l}

	d.mu.Lock()
	cur := *d.listeners.Load()
	next := make([]*registration, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, reg)
	d.listeners.Store(&next)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(reg) })
	}
}

func (d *Dispatcher) remove(reg *registration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := *d.listeners.Load()
	next := make([]*registration, 0, len(cur))
	for _, r := range cur {
		if r != reg {
			next = append(next, r)
		}
	}
	d.listeners.Store(&next)
}

// Len returns the number of registered listeners
func (d *Dispatcher) Len() int {
	return len(*d.listeners.Load())
}

// Notify calls every listener. A panicking listener is reported and skipped.
func (d *Dispatcher) Notify(change LevelChange) {
	for _, reg := range *d.listeners.Load() {
		d.call(reg.listener, change)
	}
}

func (d *Dispatcher) call(l Listener, change LevelChange) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(change, fmt.Errorf("listener panic: %v", r))
		}
	}()
	l.OnRestrictionLevelChanged(change)
}
