package restriction

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
)

// Proposer returns the aggregated tracker proposal for a pair
type Proposer interface {
	Proposed(uid int, pkg string) types.RestrictionLevel
}

// Evaluator merges hibernation, the standby bucket, the background
// restriction flag and tracker proposals into one level
type Evaluator struct {
	hibernation HibernationSource
	restriction BackgroundRestrictionSource
	trackers    Proposer
	escalate    func(pkg string, uid int)
}

// NewEvaluator creates an evaluator. escalate is called when a tracker
// pushes a pair into the consent-gated level and escalation is allowed.
func NewEvaluator(h HibernationSource, r BackgroundRestrictionSource, trackers Proposer, escalate func(pkg string, uid int)) *Evaluator {
	return &Evaluator{
		hibernation: h,
		restriction: r,
		trackers:    trackers,
		escalate:    escalate,
	}
}

// Compute returns the level for the pair given its standby bucket.
// Tracker opinion alone never yields BackgroundRestricted: that level is
// requested from the consent surface and RestrictedBucket is returned.
func (e *Evaluator) Compute(uid int, pkg string, bucket types.StandbyBucket, allowEscalation, includeTrackers bool) (types.RestrictionLevel, error) {
	if e.hibernation.IsHibernating(pkg, types.UserID(uid)) {
		return types.LevelHibernation, nil
	}

	switch bucket {
	case types.BucketExempted:
		return types.LevelExempted, nil
	case types.BucketNever:
		return types.LevelBackgroundRestricted, nil
	case types.BucketActive, types.BucketWorkingSet, types.BucketFrequent, types.BucketRare, types.BucketRestricted:
	default:
		return types.LevelUnknown, fmt.Errorf("%w: %d", ErrUnknownBucket, int(bucket))
	}

	if e.restriction.IsBackgroundRestricted(uid, pkg) {
		return types.LevelBackgroundRestricted, nil
	}

	level := types.LevelAdaptiveBucket
	if bucket == types.BucketRestricted {
		level = types.LevelRestrictedBucket
	}
	if !includeTrackers || e.trackers == nil {
		return level, nil
	}

	proposed := e.trackers.Proposed(uid, pkg)
	if proposed == types.LevelExempted {
		return types.LevelExempted, nil
	}
	level = types.MaxLevel(proposed, level)
	if level == types.LevelBackgroundRestricted {
		if allowEscalation && e.escalate != nil {
			e.escalate(pkg, uid)
		}
		level = types.LevelRestrictedBucket
	}
	return level, nil
}
