package restriction

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
)

// PackageState is the recorded level of one (uid, package) pair
type PackageState struct {
	PackageName string                 `json:"package"`
	UID         int                    `json:"uid"`
	Current     types.RestrictionLevel `json:"level"`
	Previous    types.RestrictionLevel `json:"previous"`
	Reason      types.Reason           `json:"reason"`
	ChangedAt   time.Time              `json:"changed_at"`
}

// Transition describes a realized change made by Store.Transition
type Transition struct {
	UID        int
	Package    string
	From       types.RestrictionLevel
	To         types.RestrictionLevel
	PrevReason types.Reason
	Reason     types.Reason
	At         time.Time
}

// Store owns every PackageState. One mutex guards all of it, so no reader
// ever observes a half-applied update.
type Store struct {
	mu     sync.RWMutex
	levels map[int]map[string]*PackageState // Protected by mu
	now    func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		levels: make(map[int]map[string]*PackageState),
		now:    time.Now,
	}
}

// WithClock overrides the timestamp source. time.Now carries a monotonic
// reading, so the default never depends on wall-clock adjustments.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Update records level for the pair, creating the entry if needed.
// When the level differs from the current one the current level shifts
// into Previous and prev is the level before this call. Otherwise nothing
// changes and prev is the unchanged current level.
func (s *Store) Update(pkg string, uid int, level types.RestrictionLevel, reason types.Reason) (prev types.RestrictionLevel, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(pkg, uid, level, reason)
}

func (s *Store) updateLocked(pkg string, uid int, level types.RestrictionLevel, reason types.Reason) (types.RestrictionLevel, bool) {
	pkgs, ok := s.levels[uid]
	if !ok {
		pkgs = make(map[string]*PackageState)
		s.levels[uid] = pkgs
	}
	st, ok := pkgs[pkg]
	if !ok {
		st = &PackageState{PackageName: pkg, UID: uid}
		pkgs[pkg] = st
	}

	if st.Current == level {
		return st.Current, false
	}
	st.Previous = st.Current
	st.Current = level
	st.Reason = reason
	st.ChangedAt = s.now()
	return st.Previous, true
}

// Transition moves the pair to level unless its effective level already
// equals it. The effective level falls back to the uid aggregate for
// packages without an entry. The read, the reason lookup and the write
// happen under one lock.
func (s *Store) Transition(pkg string, uid int, level types.RestrictionLevel, reason types.Reason) (Transition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.packageLevelLocked(uid, pkg)
	if from == level {
		return Transition{}, false
	}
	prevReason := s.reasonLocked(uid, pkg)
	s.updateLocked(pkg, uid, level, reason)

	return Transition{
		UID:        uid,
		Package:    pkg,
		From:       from,
		To:         level,
		PrevReason: prevReason,
		Reason:     reason,
		At:         s.levels[uid][pkg].ChangedAt,
	}, true
}

// UIDLevel returns the least restrictive level among the uid's packages.
// Entries still at Unknown are ignored; a uid with none reports Unknown.
func (s *Store) UIDLevel(uid int) types.RestrictionLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uidLevelLocked(uid)
}

func (s *Store) uidLevelLocked(uid int) types.RestrictionLevel {
	level := types.LevelUnknown
	for _, st := range s.levels[uid] {
		if st.Current == types.LevelUnknown {
			continue
		}
		if level == types.LevelUnknown {
			level = st.Current
			continue
		}
		level = types.MinLevel(level, st.Current)
	}
	return level
}

// PackageLevel returns the pair's level, or the uid aggregate if the
// package has no entry yet
func (s *Store) PackageLevel(uid int, pkg string) types.RestrictionLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.packageLevelLocked(uid, pkg)
}

func (s *Store) packageLevelLocked(uid int, pkg string) types.RestrictionLevel {
	if st, ok := s.levels[uid][pkg]; ok {
		return st.Current
	}
	return s.uidLevelLocked(uid)
}

// Reason returns why the pair is at its level, Default|Undefined if unknown
func (s *Store) Reason(uid int, pkg string) types.Reason {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reasonLocked(uid, pkg)
}

func (s *Store) reasonLocked(uid int, pkg string) types.Reason {
	if st, ok := s.levels[uid][pkg]; ok {
		return st.Reason
	}
	return types.ReasonDefault
}

// PreviousLevel returns the pair's level before its latest change
func (s *Store) PreviousLevel(uid int, pkg string) types.RestrictionLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.levels[uid][pkg]; ok {
		return st.Previous
	}
	return types.LevelUnknown
}

// Get returns a copy of the pair's state
func (s *Store) Get(uid int, pkg string) (PackageState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.levels[uid][pkg]; ok {
		return *st, true
	}
	return PackageState{}, false
}

// Packages returns copies of every entry for uid, sorted by package
func (s *Store) Packages(uid int) []PackageState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PackageState, 0, len(s.levels[uid]))
	for _, st := range s.levels[uid] {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageName < out[j].PackageName })
	return out
}

// RemovePackage drops one entry
func (s *Store) RemovePackage(uid int, pkg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pkgs, ok := s.levels[uid]
	if !ok {
		return false
	}
	if _, ok := pkgs[pkg]; !ok {
		return false
	}
	delete(pkgs, pkg)
	if len(pkgs) == 0 {
		delete(s.levels, uid)
	}
	return true
}

// RemoveUID drops every entry of uid and returns how many there were
func (s *Store) RemoveUID(uid int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.levels[uid])
	delete(s.levels, uid)
	return n
}

// RemoveUser drops every entry whose uid belongs to userID
func (s *Store) RemoveUser(userID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for uid, pkgs := range s.levels {
		if types.UserID(uid) == userID {
			removed += len(pkgs)
			delete(s.levels, uid)
		}
	}
	return removed
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, pkgs := range s.levels {
		n += len(pkgs)
	}
	return n
}

// Snapshot returns copies of every entry sorted by uid, then package
func (s *Store) Snapshot() []PackageState {
	s.mu.RLock()
	out := make([]PackageState, 0, len(s.levels))
	for _, pkgs := range s.levels {
		for _, st := range pkgs {
			out = append(out, *st)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UID != out[j].UID {
			return out[i].UID < out[j].UID
		}
		return out[i].PackageName < out[j].PackageName
	})
	return out
}
