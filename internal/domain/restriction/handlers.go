package restriction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"go.uber.org/zap"
)

// handle runs on the lane goroutine
func (c *Controller) handle(ctx context.Context, ev Event) error {
	if !c.ready.Load() && parkedUntilReady(ev) {
		c.parked = append(c.parked, ev)
		c.logger.Debug("Parked until ready", eventFields(ev)...)
		return nil
	}

	switch e := ev.(type) {
	case BackgroundRestrictionChanged:
		return c.handleBackgroundRestrictionChanged(ctx, e)
	case LevelChanged:
		c.listeners.Notify(e.Change)
		return nil
	case StandbyBucketChanged:
		return c.handleStandbyBucketChanged(ctx, e)
	case UserInteractionStarted:
		uid, ok := c.resolve(e.Package, e.UserID)
		if ok {
			c.trackers.OnUserInteractionStarted(e.Package, uid)
		}
		return nil
	case EscalationRequested:
		c.metrics.IncEscalations()
		c.logger.Info("Requesting background restriction", logging.UID(e.UID), logging.Package(e.Package))
		c.collab.Consent.RequestEscalation(e.Package, e.UID)
		return nil
	case UidInactive:
		c.handleUidInactive(ctx, e)
		return nil
	case UidActive:
		c.handleUidActive(e)
		return nil
	case SystemReady:
		return c.handleSystemReady(ctx)
	case PackageAdded:
		if e.Replacing {
			return nil
		}
		err := c.refreshForUID(ctx, e.UID, types.ReasonSystemForced, false)
		c.trackers.OnUidAdded(e.UID)
		return err
	case PackageFullyRemoved:
		c.store.RemovePackage(e.UID, e.Package)
		return nil
	case UidRemoved:
		if e.Replacing {
			return nil
		}
		c.trackers.OnUidRemoved(e.UID)
		c.store.RemoveUID(e.UID)
		c.gate.Forget(e.UID)
		c.metrics.SetActiveKeys(c.gate.Len())
		return nil
	case UserAdded:
		c.trackers.OnUserAdded(e.UserID)
		return nil
	case UserStarted:
		err := c.refreshForUser(ctx, e.UserID, types.ReasonUserFlag)
		c.trackers.OnUserStarted(e.UserID)
		return err
	case UserStopped:
		c.trackers.OnUserStopped(e.UserID)
		return nil
	case UserRemoved:
		c.trackers.OnUserRemoved(e.UserID)
		removed := c.store.RemoveUser(e.UserID)
		c.logger.Debug("Removed user entries", logging.UserID(e.UserID), zap.Int("entries", removed))
		return nil
	case PropertiesChanged:
		for _, key := range e.Keys {
			if strings.HasPrefix(key, PropertyPrefix) {
				c.trackers.OnPropertiesChanged(key)
			}
		}
		return nil
	case RefreshUID:
		return c.refreshForUID(ctx, e.UID, e.Reason, e.AllowEscalation)
	case RefreshUser:
		return c.refreshForUser(ctx, e.UserID, e.Reason)
	case ReevaluateAll:
		return c.reevaluateAll(ctx, e.Reason)
	case barrier:
		close(e.done)
		return nil
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
}

func (c *Controller) handleSystemReady(ctx context.Context) error {
	if c.ready.Load() {
		c.logger.Debug("Duplicate system ready ignored")
		return nil
	}
	c.ready.Store(true)

	var errs []error
	for _, userID := range c.collab.Users.UserIDs() {
		if err := c.refreshForUser(ctx, userID, types.ReasonUserFlag); err != nil {
			errs = append(errs, err)
		}
	}
	c.trackers.OnSystemReady()

	parked := c.parked
	c.parked = nil
	c.lane.pushFront(parked...)
	c.logger.Info("System ready", zap.Int("replayed", len(parked)))
	return errors.Join(errs...)
}

// resolve maps pkg to its uid. A miss is logged and skips the operation.
func (c *Controller) resolve(pkg string, userID int) (int, bool) {
	uid, err := c.collab.Identity.UIDForPackage(pkg, userID)
	if err != nil {
		c.logger.Warn("Unable to resolve package",
			logging.Package(pkg),
			logging.UserID(userID),
			zap.Error(err),
		)
		return 0, false
	}
	return uid, true
}

func (c *Controller) bucket(ctx context.Context, pkg string, userID int) (types.StandbyBucket, error) {
	b, err := c.collab.Standby.Bucket(ctx, pkg, userID)
	c.metrics.RecordCollaboratorCall("standby", "bucket", err)
	if err != nil {
		return 0, fmt.Errorf("read bucket of %s/u%d: %w", pkg, userID, err)
	}
	return b, nil
}

func (c *Controller) handleBackgroundRestrictionChanged(ctx context.Context, e BackgroundRestrictionChanged) error {
	c.trackers.OnBackgroundRestrictionChanged(e.UID, e.Package, e.Restricted)

	curBucket, err := c.bucket(ctx, e.Package, types.UserID(e.UID))
	if err != nil {
		return err
	}

	if e.Restricted {
		// Only the user can put an app here, so the reason says so.
		c.apply(ctx, e.Package, e.UID, types.LevelBackgroundRestricted, curBucket, true, types.ReasonUserFlag)
		return nil
	}

	// Leaving the consent-gated level: stay in the restricted bucket only if
	// that is where the app was before it.
	tentative := types.BucketRare
	switch {
	case curBucket == types.BucketExempted:
		tentative = types.BucketExempted
	case c.store.PreviousLevel(e.UID, e.Package) == types.LevelRestrictedBucket:
		tentative = types.BucketRestricted
	}
	level, err := c.evaluator.Compute(e.UID, e.Package, tentative, false, true)
	if err != nil {
		return err
	}
	c.apply(ctx, e.Package, e.UID, level, curBucket, true, types.ReasonUsageByUser)
	return nil
}

func (c *Controller) handleStandbyBucketChanged(ctx context.Context, e StandbyBucketChanged) error {
	uid, ok := c.resolve(e.Package, e.UserID)
	if !ok {
		return nil
	}
	level, err := c.evaluator.Compute(uid, e.Package, e.Bucket, false, false)
	if err != nil {
		return err
	}
	c.apply(ctx, e.Package, uid, level, e.Bucket, false, types.ReasonDefault)
	return nil
}

func (c *Controller) handleUidInactive(ctx context.Context, e UidInactive) {
	ran := c.gate.Flush(ctx, e.UID)
	for i := 0; i < ran; i++ {
		c.metrics.RecordDeferred("run")
	}
	c.metrics.SetActiveKeys(c.gate.Len())
}

func (c *Controller) handleUidActive(e UidActive) {
	userID := types.UserID(e.UID)
	for _, st := range c.store.Packages(e.UID) {
		if st.Current != types.LevelBackgroundRestricted {
			c.gate.Disarm(e.UID, st.PackageName)
			continue
		}
		pkg, reason := st.PackageName, st.Reason
		c.gate.Arm(e.UID, pkg, func(ctx context.Context) {
			c.restrict(ctx, pkg, userID, reason)
		})
		c.metrics.RecordDeferred("armed")
	}
	c.metrics.SetActiveKeys(c.gate.Len())
}

// refreshForUser recomputes a user's packages from their buckets alone
func (c *Controller) refreshForUser(ctx context.Context, userID int, reason types.Reason) error {
	infos, err := c.collab.Standby.Buckets(ctx, userID)
	c.metrics.RecordCollaboratorCall("standby", "buckets", err)
	if err != nil {
		return fmt.Errorf("list buckets of user %d: %w", userID, err)
	}

	var errs []error
	for _, info := range infos {
		uid, ok := c.resolve(info.PackageName, userID)
		if !ok {
			continue
		}
		level, err := c.evaluator.Compute(uid, info.PackageName, info.Bucket, false, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/u%d: %w", info.PackageName, userID, err))
			continue
		}
		c.apply(ctx, info.PackageName, uid, level, info.Bucket, true, reason)
	}
	return errors.Join(errs...)
}

// refreshForUID recomputes every package of uid, trackers included
func (c *Controller) refreshForUID(ctx context.Context, uid int, reason types.Reason, allowEscalation bool) error {
	pkgs := c.collab.Identity.PackagesForUID(uid)
	userID := types.UserID(uid)

	var errs []error
	for _, pkg := range pkgs {
		curBucket, err := c.bucket(ctx, pkg, userID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		level, err := c.evaluator.Compute(uid, pkg, curBucket, allowEscalation, true)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%d: %w", pkg, uid, err))
			continue
		}
		c.logger.Debug("Proposed level",
			logging.UID(uid),
			logging.Package(pkg),
			logging.Level(level),
		)
		c.apply(ctx, pkg, uid, level, curBucket, true, reason)
	}
	return errors.Join(errs...)
}

func (c *Controller) reevaluateAll(ctx context.Context, reason types.Reason) error {
	var errs []error
	for _, userID := range c.collab.Users.UserIDs() {
		infos, err := c.collab.Standby.Buckets(ctx, userID)
		c.metrics.RecordCollaboratorCall("standby", "buckets", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("list buckets of user %d: %w", userID, err))
			continue
		}

		seen := make(map[int]struct{}, len(infos))
		for _, info := range infos {
			if uid, ok := c.resolve(info.PackageName, userID); ok {
				seen[uid] = struct{}{}
			}
		}
		uids := make([]int, 0, len(seen))
		for uid := range seen {
			uids = append(uids, uid)
		}
		sort.Ints(uids)

		for _, uid := range uids {
			if err := c.refreshForUID(ctx, uid, reason, true); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// apply moves the pair to level and keeps the standby bucket in step.
// Crossing up into RestrictedBucket restricts the app, deferred while the
// key is active. Crossing back down lifts the restriction unless the app
// already sits in the rare bucket.
func (c *Controller) apply(ctx context.Context, pkg string, uid int, level types.RestrictionLevel, curBucket types.StandbyBucket, allowBucketSync bool, reason types.Reason) {
	tr, changed := c.store.Transition(pkg, uid, level, reason)
	if !changed {
		return
	}

	c.metrics.RecordTransition(tr.From.String(), tr.To.String())
	c.logger.Debug("Updating restriction level",
		logging.UID(uid),
		logging.Package(pkg),
		zap.Stringer("from", tr.From),
		zap.Stringer("to", tr.To),
		zap.Stringer("reason", reason),
	)
	c.post(LevelChanged{Change: LevelChange{
		UID:      uid,
		Package:  pkg,
		Level:    tr.To,
		Previous: tr.From,
		Reason:   reason,
		At:       tr.At,
	}})

	if !allowBucketSync || curBucket == types.BucketExempted {
		return
	}
	userID := types.UserID(uid)

	switch {
	case level >= types.LevelRestrictedBucket && tr.From < types.LevelRestrictedBucket:
		if curBucket == types.BucketRestricted {
			return
		}
		action := func(ctx context.Context) { c.restrict(ctx, pkg, userID, reason) }
		if c.gate.ArmIfActive(uid, pkg, action) {
			c.metrics.RecordDeferred("armed")
			return
		}
		action(ctx)
	case tr.From >= types.LevelRestrictedBucket && level < types.LevelRestrictedBucket:
		// A rare app keeps its standby bucket.
		if curBucket == types.BucketRare {
			return
		}
		if c.gate.DisarmIfActive(uid, pkg) {
			c.metrics.RecordDeferred("cleared")
		}
		c.unrestrict(ctx, pkg, userID, tr.PrevReason, reason)
	}
}

func (c *Controller) restrict(ctx context.Context, pkg string, userID int, reason types.Reason) {
	err := c.collab.Standby.Restrict(ctx, pkg, userID, reason)
	c.metrics.RecordCollaboratorCall("standby", "restrict", err)
	if err != nil {
		c.logger.Warn("Failed to restrict app",
			logging.Package(pkg),
			logging.UserID(userID),
			zap.Error(err),
		)
	}
}

func (c *Controller) unrestrict(ctx context.Context, pkg string, userID int, prevReason, reason types.Reason) {
	err := c.collab.Standby.Unrestrict(ctx, pkg, userID, prevReason, reason)
	c.metrics.RecordCollaboratorCall("standby", "unrestrict", err)
	if err != nil {
		c.logger.Warn("Failed to unrestrict app",
			logging.Package(pkg),
			logging.UserID(userID),
			zap.Error(err),
		)
	}
}
