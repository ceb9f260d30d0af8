package tracker

import "github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"

// Tracker watches one abuse dimension and proposes a level for each
// (uid, package). Hooks are called from the restriction lane, one at a time.
type Tracker interface {
	Name() string
	ProposedLevel(uid int, pkg string) types.RestrictionLevel

	OnSystemReady()
	OnUserAdded(userID int)
	OnUserStarted(userID int)
	OnUserStopped(userID int)
	OnUserRemoved(userID int)
	OnUidAdded(uid int)
	OnUidRemoved(uid int)
	OnUserInteractionStarted(pkg string, uid int)
	OnBackgroundRestrictionChanged(uid int, pkg string, restricted bool)
	OnPropertiesChanged(key string)
}

// Base implements every hook as a no-op and proposes Unknown.
// Embed it and override what the tracker cares about.
type Base struct{}

func (Base) ProposedLevel(int, string) types.RestrictionLevel { return types.LevelUnknown }
func (Base) OnSystemReady()                                   {}
func (Base) OnUserAdded(int)                                  {}
func (Base) OnUserStarted(int)                                {}
func (Base) OnUserStopped(int)                                {}
func (Base) OnUserRemoved(int)                                {}
func (Base) OnUidAdded(int)                                   {}
func (Base) OnUidRemoved(int)                                 {}
func (Base) OnUserInteractionStarted(string, int)             {}
func (Base) OnBackgroundRestrictionChanged(int, string, bool) {}
func (Base) OnPropertiesChanged(string)                       {}
