package device

import "github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"

// ProcessObserver is told when a uid moves between foreground and background
type ProcessObserver interface {
	OnUidActive(uid int)
	OnUidIdle(uid int, disabled bool)
	OnUidGone(uid int, disabled bool)
}

// BucketObserver is told about standby bucket changes and user interaction
type BucketObserver interface {
	OnStandbyBucketChanged(pkg string, userID int, bucket types.StandbyBucket)
	OnUserInteractionStarted(pkg string, userID int)
}

// RestrictionObserver is told when the background restriction flag flips
type RestrictionObserver interface {
	OnBackgroundRestrictionChanged(uid int, pkg string, restricted bool)
}

// BroadcastObserver receives package and user lifecycle broadcasts
type BroadcastObserver interface {
	OnPackageAdded(pkg string, uid int, replacing bool)
	OnPackageFullyRemoved(pkg string, uid int)
	OnUidRemoved(uid int, replacing bool)
	OnUserAdded(userID int)
	OnUserStarted(userID int)
	OnUserStopped(userID int)
	OnUserRemoved(userID int)
}

// ConfigObserver is told which property keys changed
type ConfigObserver interface {
	OnPropertiesChanged(keys []string)
}

// Observer receives everything the device emits
type Observer interface {
	ProcessObserver
	BucketObserver
	RestrictionObserver
	BroadcastObserver
	ConfigObserver
}

type notification func(Observer)
