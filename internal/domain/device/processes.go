package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
)

// ErrNoSuchUID is returned when starting a process for a uid with no packages
var ErrNoSuchUID = errors.New("device: no package installed for uid")

// ProcessState is the scheduling state of a uid's process
type ProcessState string

const (
	StateForeground ProcessState = "foreground"
	StateBackground ProcessState = "background"
)

// Process is a running uid
type Process struct {
	UID       int          `json:"uid"`
	State     ProcessState `json:"state"`
	Disabled  bool         `json:"disabled"`
	StartedAt time.Time    `json:"started_at"`
}

// ProcessStats summarizes the process table
type ProcessStats struct {
	Total      int  `json:"total"`
	Foreground int  `json:"foreground"`
	Background int  `json:"background"`
	FocusedUID *int `json:"focused_uid,omitempty"`
}

// Processes tracks running uids. At most one is focused; focusing another
// sends the previous one to the background.
type Processes struct {
	mu      sync.RWMutex
	procs   map[int]*Process // Protected by mu
	focused *int             // Protected by mu

	known func(uid int) bool
	emit  func(notes ...notification)
	now   func() time.Time
}

func newProcesses(known func(int) bool, emit func(...notification)) *Processes {
	return &Processes{
		procs: make(map[int]*Process),
		known: known,
		emit:  emit,
		now:   time.Now,
	}
}

// Start launches uid in the foreground, focusing it
func (p *Processes) Start(uid int) (*Process, error) {
	if !p.known(uid) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchUID, uid)
	}

	p.mu.Lock()
	proc, ok := p.procs[uid]
	if !ok {
		proc = &Process{UID: uid, State: StateBackground, StartedAt: p.now()}
		p.procs[uid] = proc
	}
	notes := p.focusLocked(uid)
	out := *proc
	p.mu.Unlock()

	p.emit(notes...)
	return &out, nil
}

// Get retrieves a process by uid
func (p *Processes) Get(uid int) (*Process, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proc, ok := p.procs[uid]
	if !ok {
		return nil, false
	}
	procCopy := *proc
	return &procCopy, true
}

// List returns all processes sorted by uid, optionally filtered by state
func (p *Processes) List(state *ProcessState) []*Process {
	p.mu.RLock()
	defer p.mu.RUnlock()

	procs := make([]*Process, 0, len(p.procs))
	for _, proc := range p.procs {
		if state == nil || proc.State == *state {
			procCopy := *proc
			procs = append(procs, &procCopy)
		}
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].UID < procs[j].UID })
	return procs
}

// Focus brings a running uid to the foreground
func (p *Processes) Focus(uid int) bool {
	p.mu.Lock()
	if _, ok := p.procs[uid]; !ok {
		p.mu.Unlock()
		return false
	}
	notes := p.focusLocked(uid)
	p.mu.Unlock()

	p.emit(notes...)
	return true
}

func (p *Processes) focusLocked(uid int) []notification {
	var notes []notification
	if p.focused != nil && *p.focused != uid {
		if cur, ok := p.procs[*p.focused]; ok && cur.State == StateForeground {
			cur.State = StateBackground
			prev, disabled := cur.UID, cur.Disabled
			notes = append(notes, func(o Observer) { o.OnUidIdle(prev, disabled) })
		}
	}

	proc := p.procs[uid]
	if proc.State != StateForeground {
		proc.State = StateForeground
		notes = append(notes, func(o Observer) { o.OnUidActive(uid) })
	}
	focused := uid
	p.focused = &focused
	return notes
}

// Background sends a uid to the background
func (p *Processes) Background(uid int) bool {
	p.mu.Lock()
	proc, ok := p.procs[uid]
	if !ok {
		p.mu.Unlock()
		return false
	}
	var notes []notification
	if proc.State == StateForeground {
		proc.State = StateBackground
		disabled := proc.Disabled
		notes = append(notes, func(o Observer) { o.OnUidIdle(uid, disabled) })
	}
	if p.focused != nil && *p.focused == uid {
		p.focused = nil
	}
	p.mu.Unlock()

	p.emit(notes...)
	return true
}

// Stop ends a uid's process
func (p *Processes) Stop(uid int) bool {
	p.mu.Lock()
	notes, ok := p.stopLocked(uid)
	p.mu.Unlock()

	p.emit(notes...)
	return ok
}

func (p *Processes) stopLocked(uid int) ([]notification, bool) {
	proc, ok := p.procs[uid]
	if !ok {
		return nil, false
	}
	delete(p.procs, uid)
	if p.focused != nil && *p.focused == uid {
		p.focused = nil
	}
	disabled := proc.Disabled
	return []notification{func(o Observer) { o.OnUidGone(uid, disabled) }}, true
}

// SetDisabled marks whether the uid's app is disabled. The flag is carried
// on later idle and gone reports.
func (p *Processes) SetDisabled(uid int, disabled bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	proc, ok := p.procs[uid]
	if ok {
		proc.Disabled = disabled
	}
	return ok
}

// Stats returns process table statistics
func (p *Processes) Stats() ProcessStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var stats ProcessStats
	for _, proc := range p.procs {
		stats.Total++
		switch proc.State {
		case StateForeground:
			stats.Foreground++
		case StateBackground:
			stats.Background++
		}
	}
	if p.focused != nil {
		uid := *p.focused
		stats.FocusedUID = &uid
	}
	return stats
}

// stopUser stops every process of userID, reporting each as gone
func (p *Processes) stopUser(userID int) {
	p.mu.Lock()
	var notes []notification
	for _, uid := range p.uidsOfLocked(userID) {
		n, _ := p.stopLocked(uid)
		notes = append(notes, n...)
	}
	p.mu.Unlock()

	p.emit(notes...)
}

// forgetUser drops the processes of a removed user without reporting them
func (p *Processes) forgetUser(userID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, uid := range p.uidsOfLocked(userID) {
		p.forgetLocked(uid)
	}
}

// forget drops a removed uid without reporting it
func (p *Processes) forget(uid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forgetLocked(uid)
}

func (p *Processes) forgetLocked(uid int) {
	delete(p.procs, uid)
	if p.focused != nil && *p.focused == uid {
		p.focused = nil
	}
}

func (p *Processes) uidsOfLocked(userID int) []int {
	var uids []int
	for uid := range p.procs {
		if types.UserID(uid) == userID {
			uids = append(uids, uid)
		}
	}
	sort.Ints(uids)
	return uids
}
