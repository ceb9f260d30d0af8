package restriction

import (
	"context"
	"sync"
)

// Action is a deferred restrictive call, run once its uid goes idle
type Action func(ctx context.Context)

// Gate tracks foreground-active keys and the action deferred for each.
// A key mapped to a nil Action is active with nothing pending.
type Gate struct {
	mu     sync.Mutex
	active map[int]map[string]Action // Protected by mu
}

// NewGate creates an empty gate
func NewGate() *Gate {
	return &Gate{active: make(map[int]map[string]Action)}
}

// Arm marks the key active and stores action, replacing any previous one
func (g *Gate) Arm(uid int, pkg string, action Action) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setLocked(uid, pkg, action)
}

// Disarm marks the key active with nothing pending
func (g *Gate) Disarm(uid int, pkg string) {
	g.Arm(uid, pkg, nil)
}

// ArmIfActive stores action only if the key is already active.
// It reports whether the action was stored.
func (g *Gate) ArmIfActive(uid int, pkg string, action Action) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.active[uid][pkg]; !ok {
		return false
	}
	g.setLocked(uid, pkg, action)
	return true
}

// DisarmIfActive clears the key's pending action if the key is active
func (g *Gate) DisarmIfActive(uid int, pkg string) bool {
	return g.ArmIfActive(uid, pkg, nil)
}

func (g *Gate) setLocked(uid int, pkg string, action Action) {
	pkgs, ok := g.active[uid]
	if !ok {
		pkgs = make(map[string]Action)
		g.active[uid] = pkgs
	}
	pkgs[pkg] = action
}

// IsActive reports whether the key is tracked as foreground-active
func (g *Gate) IsActive(uid int, pkg string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[uid][pkg]
	return ok
}

// Pending reports whether the key has an armed action
func (g *Gate) Pending(uid int, pkg string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[uid][pkg] != nil
}

// Flush forgets every key of uid and runs their armed actions. Actions run
// after the lock is released, so they may use the gate or submit events.
// It returns the number of actions run.
func (g *Gate) Flush(ctx context.Context, uid int) int {
	g.mu.Lock()
	pkgs := g.active[uid]
	delete(g.active, uid)
	g.mu.Unlock()

	ran := 0
	for _, action := range pkgs {
		if action != nil {
			action(ctx)
			ran++
		}
	}
	return ran
}

// Forget drops every key of uid without running anything
func (g *Gate) Forget(uid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, uid)
}

// Len returns the number of active keys
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, pkgs := range g.active {
		n += len(pkgs)
	}
	return n
}
