package restriction

import (
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"go.uber.org/zap"
)

// EventKind names an event type in logs and metrics
type EventKind string

const (
	KindBackgroundRestrictionChanged EventKind = "background_restriction_changed"
	KindLevelChanged                 EventKind = "level_changed"
	KindStandbyBucketChanged         EventKind = "standby_bucket_changed"
	KindUserInteractionStarted       EventKind = "user_interaction_started"
	KindEscalationRequested          EventKind = "escalation_requested"
	KindUidInactive                  EventKind = "uid_inactive"
	KindUidActive                    EventKind = "uid_active"
	KindSystemReady                  EventKind = "system_ready"
	KindPackageAdded                 EventKind = "package_added"
	KindPackageFullyRemoved          EventKind = "package_fully_removed"
	KindUidRemoved                   EventKind = "uid_removed"
	KindUserAdded                    EventKind = "user_added"
	KindUserStarted                  EventKind = "user_started"
	KindUserStopped                  EventKind = "user_stopped"
	KindUserRemoved                  EventKind = "user_removed"
	KindPropertiesChanged            EventKind = "properties_changed"
	KindRefreshUID                   EventKind = "refresh_uid"
	KindRefreshUser                  EventKind = "refresh_user"
	KindReevaluateAll                EventKind = "reevaluate_all"
	KindBarrier                      EventKind = "barrier"
)

// Event is one unit of work on the lane. The set is closed: only types in
// this package implement it.
type Event interface {
	Kind() EventKind
	sealed()
}

// BackgroundRestrictionChanged reports the user flipping the background
// restriction flag of a package
type BackgroundRestrictionChanged struct {
	UID        int
	Package    string
	Restricted bool
}

// LevelChanged carries a realized change to the listeners
type LevelChanged struct {
	Change LevelChange
}

// StandbyBucketChanged reports a package moving to a new standby bucket
type StandbyBucketChanged struct {
	Package string
	UserID  int
	Bucket  types.StandbyBucket
}

// UserInteractionStarted reports the user starting to interact with a package
type UserInteractionStarted struct {
	Package string
	UserID  int
}

// EscalationRequested asks the consent surface about a package
type EscalationRequested struct {
	Package string
	UID     int
}

// UidInactive reports a uid going idle or away
type UidInactive struct {
	UID      int
	Disabled bool
	Gone     bool
}

// UidActive reports a uid coming to the foreground
type UidActive struct {
	UID int
}

// SystemReady marks the collaborators as available
type SystemReady struct{}

// PackageAdded reports a package install. Replacing installs are updates.
type PackageAdded struct {
	Package   string
	UID       int
	Replacing bool
}

// PackageFullyRemoved reports a package removed with its data
type PackageFullyRemoved struct {
	Package string
	UID     int
}

// UidRemoved reports a uid going away entirely
type UidRemoved struct {
	UID       int
	Replacing bool
}

// UserAdded reports a new user
type UserAdded struct{ UserID int }

// UserStarted reports a user starting
type UserStarted struct{ UserID int }

// UserStopped reports a user stopping
type UserStopped struct{ UserID int }

// UserRemoved reports a user being deleted
type UserRemoved struct{ UserID int }

// PropertiesChanged reports changed configuration keys
type PropertiesChanged struct {
	Keys []string
}

// RefreshUID recomputes every package of a uid, trackers included
type RefreshUID struct {
	UID             int
	Reason          types.Reason
	AllowEscalation bool
}

// RefreshUser recomputes every package of a user from its standby buckets
type RefreshUser struct {
	UserID int
	Reason types.Reason
}

// ReevaluateAll refreshes every known uid of every user, trackers included
type ReevaluateAll struct {
	Reason types.Reason
}

type barrier struct {
	done chan struct{}
}

func (BackgroundRestrictionChanged) Kind() EventKind { return KindBackgroundRestrictionChanged }
func (LevelChanged) Kind() EventKind                 { return KindLevelChanged }
func (StandbyBucketChanged) Kind() EventKind         { return KindStandbyBucketChanged }
func (UserInteractionStarted) Kind() EventKind       { return KindUserInteractionStarted }
func (EscalationRequested) Kind() EventKind          { return KindEscalationRequested }
func (UidInactive) Kind() EventKind                  { return KindUidInactive }
func (UidActive) Kind() EventKind                    { return KindUidActive }
func (SystemReady) Kind() EventKind                  { return KindSystemReady }
func (PackageAdded) Kind() EventKind                 { return KindPackageAdded }
func (PackageFullyRemoved) Kind() EventKind          { return KindPackageFullyRemoved }
func (UidRemoved) Kind() EventKind                   { return KindUidRemoved }
func (UserAdded) Kind() EventKind                    { return KindUserAdded }
func (UserStarted) Kind() EventKind                  { return KindUserStarted }
func (UserStopped) Kind() EventKind                  { return KindUserStopped }
func (UserRemoved) Kind() EventKind                  { return KindUserRemoved }
func (PropertiesChanged) Kind() EventKind            { return KindPropertiesChanged }
func (RefreshUID) Kind() EventKind                   { return KindRefreshUID }
func (RefreshUser) Kind() EventKind                  { return KindRefreshUser }
func (ReevaluateAll) Kind() EventKind                { return KindReevaluateAll }
func (barrier) Kind() EventKind                      { return KindBarrier }

func (BackgroundRestrictionChanged) sealed() {}
func (LevelChanged) sealed()                 {}
func (StandbyBucketChanged) sealed()         {}
func (UserInteractionStarted) sealed()       {}
func (EscalationRequested) sealed()          {}
func (UidInactive) sealed()                  {}
func (UidActive) sealed()                    {}
func (SystemReady) sealed()                  {}
func (PackageAdded) sealed()                 {}
func (PackageFullyRemoved) sealed()          {}
func (UidRemoved) sealed()                   {}
func (UserAdded) sealed()                    {}
func (UserStarted) sealed()                  {}
func (UserStopped) sealed()                  {}
func (UserRemoved) sealed()                  {}
func (PropertiesChanged) sealed()            {}
func (RefreshUID) sealed()                   {}
func (RefreshUser) sealed()                  {}
func (ReevaluateAll) sealed()                {}
func (barrier) sealed()                      {}

// parkedUntilReady reports whether ev must wait for SystemReady. Only
// process lifecycle, listener fan-out and escalation run before it.
func parkedUntilReady(ev Event) bool {
	switch ev.(type) {
	case UidActive, UidInactive, LevelChanged, EscalationRequested, SystemReady, barrier:
		return false
	default:
		return true
	}
}

// eventFields describes ev for logs
func eventFields(ev Event) []zap.Field {
	fields := []zap.Field{zap.String("event", string(ev.Kind()))}
	switch e := ev.(type) {
	case BackgroundRestrictionChanged:
		fields = append(fields, logging.UID(e.UID), logging.Package(e.Package), zap.Bool("restricted", e.Restricted))
	case LevelChanged:
		fields = append(fields, logging.UID(e.Change.UID), logging.Package(e.Change.Package), logging.Level(e.Change.Level))
	case StandbyBucketChanged:
		fields = append(fields, logging.UserID(e.UserID), logging.Package(e.Package), zap.Stringer("bucket", e.Bucket))
	case UserInteractionStarted:
		fields = append(fields, logging.UserID(e.UserID), logging.Package(e.Package))
	case EscalationRequested:
		fields = append(fields, logging.UID(e.UID), logging.Package(e.Package))
	case UidInactive:
		fields = append(fields, logging.UID(e.UID), zap.Bool("disabled", e.Disabled), zap.Bool("gone", e.Gone))
	case UidActive:
		fields = append(fields, logging.UID(e.UID))
	case PackageAdded:
		fields = append(fields, logging.UID(e.UID), logging.Package(e.Package), zap.Bool("replacing", e.Replacing))
	case PackageFullyRemoved:
		fields = append(fields, logging.UID(e.UID), logging.Package(e.Package))
	case UidRemoved:
		fields = append(fields, logging.UID(e.UID), zap.Bool("replacing", e.Replacing))
	case UserAdded:
		fields = append(fields, logging.UserID(e.UserID))
	case UserStarted:
		fields = append(fields, logging.UserID(e.UserID))
	case UserStopped:
		fields = append(fields, logging.UserID(e.UserID))
	case UserRemoved:
		fields = append(fields, logging.UserID(e.UserID))
	case PropertiesChanged:
		fields = append(fields, zap.Strings("keys", e.Keys))
	case RefreshUID:
		fields = append(fields, logging.UID(e.UID), zap.Stringer("reason", e.Reason))
	case RefreshUser:
		fields = append(fields, logging.UserID(e.UserID), zap.Stringer("reason", e.Reason))
	case ReevaluateAll:
		fields = append(fields, zap.Stringer("reason", e.Reason))
	case SystemReady, barrier:
	}
	return fields
}
