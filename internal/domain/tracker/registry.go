package tracker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
)

// ErrDuplicateTracker is returned when registering a name twice
var ErrDuplicateTracker = errors.New("tracker: duplicate name")

// Registry holds trackers in registration order
type Registry struct {
	mu       sync.RWMutex
	trackers []Tracker // Protected by mu
}

// NewRegistry creates a registry holding the given trackers
func NewRegistry(trackers ...Tracker) (*Registry, error) {
	r := &Registry{}
	for _, t := range trackers {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a tracker
func (r *Registry) Register(t Tracker) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("tracker name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.trackers {
		if existing.Name() == t.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateTracker, t.Name())
		}
	}
	r.trackers = append(r.trackers, t)
	return nil
}

// Get returns the tracker registered under name
func (r *Registry) Get(name string) (Tracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.trackers {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Names returns tracker names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.trackers))
	for i, t := range r.trackers {
		names[i] = t.Name()
	}
	return names
}

// Len returns the number of trackers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trackers)
}

// Proposed returns the most restrictive proposal across trackers, Unknown
// when there are none. Any single tracker firing is enough, so this is a
// max, unlike the per-uid min over packages.
func (r *Registry) Proposed(uid int, pkg string) types.RestrictionLevel {
	level := types.LevelUnknown
	r.each(func(t Tracker) {
		level = types.MaxLevel(level, t.ProposedLevel(uid, pkg))
	})
	return level
}

// each calls fn on a snapshot so hooks may register further trackers
func (r *Registry) each(fn func(Tracker)) {
	r.mu.RLock()
	snapshot := make([]Tracker, len(r.trackers))
	copy(snapshot, r.trackers)
	r.mu.RUnlock()

	for _, t := range snapshot {
		fn(t)
	}
}

// OnSystemReady forwards boot completion to every tracker
func (r *Registry) OnSystemReady() { r.each(func(t Tracker) { t.OnSystemReady() }) }

// OnUserAdded forwards a newly created user to every tracker
func (r *Registry) OnUserAdded(userID int) { r.each(func(t Tracker) { t.OnUserAdded(userID) }) }

// OnUserStarted forwards a user start to every tracker
func (r *Registry) OnUserStarted(userID int) { r.each(func(t Tracker) { t.OnUserStarted(userID) }) }

// OnUserStopped forwards a user stop to every tracker
func (r *Registry) OnUserStopped(userID int) { r.each(func(t Tracker) { t.OnUserStopped(userID) }) }

// OnUserRemoved forwards a user removal to every tracker
func (r *Registry) OnUserRemoved(userID int) { r.each(func(t Tracker) { t.OnUserRemoved(userID) }) }

// OnUidAdded forwards a new uid to every tracker
func (r *Registry) OnUidAdded(uid int) { r.each(func(t Tracker) { t.OnUidAdded(uid) }) }

// OnUidRemoved forwards a removed uid to every tracker
func (r *Registry) OnUidRemoved(uid int) { r.each(func(t Tracker) { t.OnUidRemoved(uid) }) }

// OnUserInteractionStarted forwards a foreground interaction with pkg
func (r *Registry) OnUserInteractionStarted(pkg string, uid int) {
	r.each(func(t Tracker) { t.OnUserInteractionStarted(pkg, uid) })
}

// OnBackgroundRestrictionChanged forwards a user flag change for pkg
func (r *Registry) OnBackgroundRestrictionChanged(uid int, pkg string, restricted bool) {
	r.each(func(t Tracker) { t.OnBackgroundRestrictionChanged(uid, pkg, restricted) })
}

// OnPropertiesChanged forwards a changed device property key
func (r *Registry) OnPropertiesChanged(key string) {
	r.each(func(t Tracker) { t.OnPropertiesChanged(key) })
}
