package device

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"go.uber.org/zap"
)

var errInvalidBucket = errors.New("device: invalid bucket")

func invalidBucket(b types.StandbyBucket) error {
	return fmt.Errorf("%w: %d", errInvalidBucket, int(b))
}

// IsHibernating implements restriction.HibernationSource
func (d *Device) IsHibernating(pkg string, userID int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.packages[pkgKey{pkg, userID}]
	return ok && st.hibernating
}

// SetHibernating changes hibernation state. Nothing is broadcast; callers
// refresh the uid when they want the level to follow.
func (d *Device) SetHibernating(pkg string, userID int, on bool) (uid int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.lookup(pkg, userID)
	if err != nil {
		return 0, err
	}
	st.hibernating = on
	d.logger.Debug("Hibernation changed", logging.Package(pkg), logging.UserID(userID), zap.Bool("hibernating", on))
	return st.uid, nil
}

// IsBackgroundRestricted implements restriction.BackgroundRestrictionSource
func (d *Device) IsBackgroundRestricted(uid int, pkg string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.packages[pkgKey{pkg, types.UserID(uid)}]
	return ok && st.uid == uid && st.restricted
}

// SetBackgroundRestricted flips the user-set background restriction flag
func (d *Device) SetBackgroundRestricted(uid int, pkg string, on bool) error {
	d.mu.Lock()
	st, ok := d.packages[pkgKey{pkg, types.UserID(uid)}]
	if !ok || st.uid != uid {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s/%d", restriction.ErrPackageNotFound, pkg, uid)
	}
	changed := st.restricted != on
	st.restricted = on
	d.mu.Unlock()

	if !changed {
		return nil
	}
	d.logger.Info("Background restriction changed",
		logging.Package(pkg),
		logging.UID(uid),
		zap.Bool("restricted", on),
	)
	d.emit(func(o Observer) { o.OnBackgroundRestrictionChanged(uid, pkg, on) })
	return nil
}
