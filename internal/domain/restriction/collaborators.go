package restriction

import (
	"context"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
)

// AppStandbyInfo is one package's bucket as reported for a user
type AppStandbyInfo struct {
	PackageName string              `json:"package"`
	Bucket      types.StandbyBucket `json:"bucket"`
}

// StandbySource reads and nudges the standby bucket subsystem
type StandbySource interface {
	Bucket(ctx context.Context, pkg string, userID int) (types.StandbyBucket, error)
	Buckets(ctx context.Context, userID int) ([]AppStandbyInfo, error)
	Restrict(ctx context.Context, pkg string, userID int, reason types.Reason) error
	Unrestrict(ctx context.Context, pkg string, userID int, prevReason, reason types.Reason) error
}

// HibernationSource reports whether a package is hibernating for a user
type HibernationSource interface {
	IsHibernating(pkg string, userID int) bool
}

// BackgroundRestrictionSource reports the user-set background restriction flag
type BackgroundRestrictionSource interface {
	IsBackgroundRestricted(uid int, pkg string) bool
}

// IdentityResolver maps packages to uids and back.
// UIDForPackage returns ErrPackageNotFound for packages it does not know.
type IdentityResolver interface {
	UIDForPackage(pkg string, userID int) (int, error)
	PackagesForUID(uid int) []string
}

// UserSource lists the users whose levels must be initialized
type UserSource interface {
	UserIDs() []int
}

// ConsentSurface is told when a package should enter the consent-gated level
type ConsentSurface interface {
	RequestEscalation(pkg string, uid int)
}

// Collaborators bundles the external services the controller consults
type Collaborators struct {
	Standby     StandbySource
	Hibernation HibernationSource
	Restriction BackgroundRestrictionSource
	Identity    IdentityResolver
	Users       UserSource
	Consent     ConsentSurface
}

type noConsent struct{}

func (noConsent) RequestEscalation(string, int) {}

type noUsers struct{}

func (noUsers) UserIDs() []int { return nil }

type neverHibernating struct{}

func (neverHibernating) IsHibernating(string, int) bool { return false }

type neverRestricted struct{}

func (neverRestricted) IsBackgroundRestricted(int, string) bool { return false }

// withDefaults fills optional collaborators with inert implementations.
// Standby and Identity have no sensible default and must be set.
func (c Collaborators) withDefaults() Collaborators {
	if c.Hibernation == nil {
		c.Hibernation = neverHibernating{}
	}
	if c.Restriction == nil {
		c.Restriction = neverRestricted{}
	}
	if c.Users == nil {
		c.Users = noUsers{}
	}
	if c.Consent == nil {
		c.Consent = noConsent{}
	}
	return c
}
