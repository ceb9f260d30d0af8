package device

import (
	"context"
	"sort"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"go.uber.org/zap"
)

// Bucket implements restriction.StandbySource
func (d *Device) Bucket(_ context.Context, pkg string, userID int) (types.StandbyBucket, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st, err := d.lookup(pkg, userID)
	if err != nil {
		return 0, err
	}
	return st.bucket, nil
}

// Buckets implements restriction.StandbySource
func (d *Device) Buckets(_ context.Context, userID int) ([]restriction.AppStandbyInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []restriction.AppStandbyInfo
	for k, st := range d.packages {
		if k.userID == userID {
			out = append(out, restriction.AppStandbyInfo{PackageName: k.pkg, Bucket: st.bucket})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageName < out[j].PackageName })
	return out, nil
}

// SetBucket moves a package to bucket
func (d *Device) SetBucket(pkg string, userID int, bucket types.StandbyBucket) error {
	changed, err := d.setBucket(pkg, userID, bucket, nil)
	if err != nil || !changed {
		return err
	}
	d.emit(func(o Observer) { o.OnStandbyBucketChanged(pkg, userID, bucket) })
	return nil
}

// setBucket updates the bucket and, when reason is set, the recorded
// restrict reason
func (d *Device) setBucket(pkg string, userID int, bucket types.StandbyBucket, reason *types.Reason) (bool, error) {
	if !bucket.Valid() {
		return false, invalidBucket(bucket)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.lookup(pkg, userID)
	if err != nil {
		return false, err
	}
	if reason != nil {
		st.restrictReason = *reason
	}
	if st.bucket == bucket {
		return false, nil
	}
	d.logger.Debug("Bucket changed",
		logging.Package(pkg),
		logging.UserID(userID),
		zap.Stringer("from", st.bucket),
		zap.Stringer("to", bucket),
	)
	st.bucket = bucket
	return true, nil
}

// ReportInteraction records the user using a package. It promotes the
// package to the active bucket.
func (d *Device) ReportInteraction(pkg string, userID int) error {
	changed, err := d.setBucket(pkg, userID, types.BucketActive, nil)
	if err != nil {
		return err
	}

	notes := []notification{func(o Observer) { o.OnUserInteractionStarted(pkg, userID) }}
	if changed {
		notes = append(notes, func(o Observer) { o.OnStandbyBucketChanged(pkg, userID, types.BucketActive) })
	}
	d.emit(notes...)
	return nil
}

// Restrict implements restriction.StandbySource by moving the package to
// the restricted bucket
func (d *Device) Restrict(_ context.Context, pkg string, userID int, reason types.Reason) error {
	changed, err := d.setBucket(pkg, userID, types.BucketRestricted, &reason)
	if err != nil {
		return err
	}
	d.logger.Info("App restricted",
		logging.Package(pkg),
		logging.UserID(userID),
		zap.Stringer("reason", reason),
	)
	if changed {
		d.emit(func(o Observer) { o.OnStandbyBucketChanged(pkg, userID, types.BucketRestricted) })
	}
	return nil
}

// Unrestrict implements restriction.StandbySource. The package leaves the
// restricted bucket for the rare one only if it was restricted for the
// same main reason as prevReason.
func (d *Device) Unrestrict(_ context.Context, pkg string, userID int, prevReason, reason types.Reason) error {
	d.mu.Lock()
	st, err := d.lookup(pkg, userID)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if st.bucket != types.BucketRestricted || st.restrictReason.Main() != prevReason.Main() {
		d.mu.Unlock()
		d.logger.Debug("Unrestrict skipped",
			logging.Package(pkg),
			logging.UserID(userID),
			zap.Stringer("bucket", st.bucket),
			zap.Stringer("prev_reason", prevReason),
		)
		return nil
	}
	st.bucket = types.BucketRare
	st.restrictReason = reason
	d.mu.Unlock()

	d.logger.Info("App unrestricted",
		logging.Package(pkg),
		logging.UserID(userID),
		zap.Stringer("reason", reason),
	)
	d.emit(func(o Observer) { o.OnStandbyBucketChanged(pkg, userID, types.BucketRare) })
	return nil
}
