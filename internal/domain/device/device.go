package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/utils"
	"go.uber.org/zap"
)

// FirstAppID is the first app id handed out to packages without one
const FirstAppID = 10000

var (
	ErrUserExists   = errors.New("device: user already exists")
	ErrUserNotFound = errors.New("device: user not found")
)

type pkgKey struct {
	pkg    string
	userID int
}

type pkgState struct {
	uid            int
	bucket         types.StandbyBucket
	restrictReason types.Reason
	hibernating    bool
	restricted     bool
	installedAt    time.Time
}

// PackageInfo describes one installed package for one user
type PackageInfo struct {
	Name                 string              `json:"name"`
	UserID               int                 `json:"user_id"`
	UID                  int                 `json:"uid"`
	Bucket               types.StandbyBucket `json:"bucket"`
	Hibernating          bool                `json:"hibernating"`
	BackgroundRestricted bool                `json:"background_restricted"`
	InstalledAt          time.Time           `json:"installed_at"`
}

// UserInfo describes a user
type UserInfo struct {
	ID      int  `json:"id"`
	Running bool `json:"running"`
}

// Device is the in-memory system model
type Device struct {
	logger *logging.Logger
	now    func() time.Time
	procs  *Processes

	mu         sync.RWMutex
	users      map[int]bool         // Protected by mu; value is running
	appIDs     map[string]int       // Protected by mu
	nextAppID  int                  // Protected by mu
	packages   map[pkgKey]*pkgState // Protected by mu
	properties map[string]string    // Protected by mu
	escalation []EscalationRequest  // Protected by mu

	obsMu    sync.RWMutex
	observer Observer
}

// New creates a device with the system user 0 running
func New(logger *logging.Logger) *Device {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Device{
		logger:     logger.Named("device"),
		now:        time.Now,
		users:      map[int]bool{0: true},
		appIDs:     make(map[string]int),
		nextAppID:  FirstAppID,
		packages:   make(map[pkgKey]*pkgState),
		properties: make(map[string]string),
	}
	d.procs = newProcesses(d.hasUID, d.emit)
	return d
}

// Attach sets the observer that receives every later mutation
func (d *Device) Attach(o Observer) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	d.observer = o
}

// Collaborators returns the device as the controller's collaborators
func (d *Device) Collaborators() restriction.Collaborators {
	return restriction.Collaborators{
		Standby:     d,
		Hibernation: d,
		Restriction: d,
		Identity:    d,
		Users:       d,
		Consent:     d,
	}
}

// Processes returns the process table
func (d *Device) Processes() *Processes {
	return d.procs
}

// emit delivers notes in order. Callers must not hold mu.
func (d *Device) emit(notes ...notification) {
	d.obsMu.RLock()
	o := d.observer
	d.obsMu.RUnlock()
	if o == nil {
		return
	}
	for _, n := range notes {
		n(o)
	}
}

// Users

// UserIDs implements restriction.UserSource
func (d *Device) UserIDs() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]int, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Users lists every user
func (d *Device) Users() []UserInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]UserInfo, 0, len(d.users))
	for id, running := range d.users {
		out = append(out, UserInfo{ID: id, Running: running})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddUser creates a stopped user
func (d *Device) AddUser(userID int) error {
	if err := d.addUser(userID); err != nil {
		return err
	}
	d.logger.Info("User added", logging.UserID(userID))
	d.emit(func(o Observer) { o.OnUserAdded(userID) })
	return nil
}

func (d *Device) addUser(userID int) error {
	if userID < 0 {
		return fmt.Errorf("device: invalid user id %d", userID)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[userID]; ok {
		return fmt.Errorf("%w: %d", ErrUserExists, userID)
	}
	d.users[userID] = false
	return nil
}

// StartUser marks a user running
func (d *Device) StartUser(userID int) error {
	return d.setUserRunning(userID, true, func(o Observer) { o.OnUserStarted(userID) })
}

// StopUser marks a user stopped and stops its processes
func (d *Device) StopUser(userID int) error {
	if err := d.setUserRunning(userID, false, func(o Observer) { o.OnUserStopped(userID) }); err != nil {
		return err
	}
	d.procs.stopUser(userID)
	return nil
}

func (d *Device) setUserRunning(userID int, running bool, note notification) error {
	d.mu.Lock()
	was, ok := d.users[userID]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	d.users[userID] = running
	d.mu.Unlock()

	if was != running {
		d.logger.Info("User state changed", logging.UserID(userID), zap.Bool("running", running))
		d.emit(note)
	}
	return nil
}

// RemoveUser drops a user and every package installed for it
func (d *Device) RemoveUser(userID int) error {
	if userID == 0 {
		return errors.New("device: the system user cannot be removed")
	}

	d.mu.Lock()
	if _, ok := d.users[userID]; !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	delete(d.users, userID)
	for k := range d.packages {
		if k.userID == userID {
			delete(d.packages, k)
		}
	}
	d.mu.Unlock()

	d.procs.forgetUser(userID)
	d.logger.Info("User removed", logging.UserID(userID))
	d.emit(func(o Observer) { o.OnUserRemoved(userID) })
	return nil
}

// Packages

// Install installs pkg for userID in bucket. The app id is stable across
// users; reinstalling an existing package replaces it.
func (d *Device) Install(pkg string, userID int, bucket types.StandbyBucket) (int, error) {
	uid, replacing, err := d.install(pkg, userID, 0, bucket)
	if err != nil {
		return 0, err
	}
	d.logger.Info("Package installed",
		logging.Package(pkg),
		logging.UID(uid),
		zap.Bool("replacing", replacing),
	)
	d.emit(func(o Observer) { o.OnPackageAdded(pkg, uid, replacing) })
	return uid, nil
}

func (d *Device) install(pkg string, userID, appID int, bucket types.StandbyBucket) (uid int, replacing bool, err error) {
	if err := utils.ValidatePackageName(pkg); err != nil {
		return 0, false, fmt.Errorf("device: %w", err)
	}
	if !bucket.Valid() {
		return 0, false, invalidBucket(bucket)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[userID]; !ok {
		return 0, false, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	known, ok := d.appIDs[pkg]
	switch {
	case ok && appID != 0 && appID != known:
		return 0, false, fmt.Errorf("device: %s already has app id %d", pkg, known)
	case ok:
		appID = known
	case appID == 0:
		appID = d.nextAppID
	}
	if !ok {
		d.appIDs[pkg] = appID
	}
	if appID >= d.nextAppID {
		d.nextAppID = appID + 1
	}

	uid = types.UID(userID, appID)
	k := pkgKey{pkg, userID}
	if st, exists := d.packages[k]; exists {
		st.bucket = bucket
		return uid, true, nil
	}
	d.packages[k] = &pkgState{uid: uid, bucket: bucket, installedAt: d.now()}
	return uid, false, nil
}

// Uninstall removes pkg for userID. The uid is reported removed once no
// package is left on it.
func (d *Device) Uninstall(pkg string, userID int) error {
	d.mu.Lock()
	k := pkgKey{pkg, userID}
	st, ok := d.packages[k]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s/u%d", restriction.ErrPackageNotFound, pkg, userID)
	}
	delete(d.packages, k)
	uid := st.uid
	uidGone := !d.hasUIDLocked(uid)
	d.mu.Unlock()

	d.logger.Info("Package removed", logging.Package(pkg), logging.UID(uid))
	notes := []notification{func(o Observer) { o.OnPackageFullyRemoved(pkg, uid) }}
	if uidGone {
		d.procs.forget(uid)
		notes = append(notes, func(o Observer) { o.OnUidRemoved(uid, false) })
	}
	d.emit(notes...)
	return nil
}

// Package returns one installed package
func (d *Device) Package(pkg string, userID int) (PackageInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st, ok := d.packages[pkgKey{pkg, userID}]
	if !ok {
		return PackageInfo{}, fmt.Errorf("%w: %s/u%d", restriction.ErrPackageNotFound, pkg, userID)
	}
	return st.info(pkg, userID), nil
}

// Packages lists the packages installed for userID, sorted by name
func (d *Device) Packages(userID int) []PackageInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []PackageInfo
	for k, st := range d.packages {
		if k.userID == userID {
			out = append(out, st.info(k.pkg, k.userID))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (st *pkgState) info(pkg string, userID int) PackageInfo {
	return PackageInfo{
		Name:                 pkg,
		UserID:               userID,
		UID:                  st.uid,
		Bucket:               st.bucket,
		Hibernating:          st.hibernating,
		BackgroundRestricted: st.restricted,
		InstalledAt:          st.installedAt,
	}
}

// UIDForPackage implements restriction.IdentityResolver
func (d *Device) UIDForPackage(pkg string, userID int) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st, ok := d.packages[pkgKey{pkg, userID}]
	if !ok {
		return 0, restriction.ErrPackageNotFound
	}
	return st.uid, nil
}

// PackagesForUID implements restriction.IdentityResolver
func (d *Device) PackagesForUID(uid int) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for k, st := range d.packages {
		if st.uid == uid {
			out = append(out, k.pkg)
		}
	}
	sort.Strings(out)
	return out
}

func (d *Device) hasUID(uid int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hasUIDLocked(uid)
}

func (d *Device) hasUIDLocked(uid int) bool {
	for _, st := range d.packages {
		if st.uid == uid {
			return true
		}
	}
	return false
}

// lookup returns the package state; the caller holds mu
func (d *Device) lookup(pkg string, userID int) (*pkgState, error) {
	st, ok := d.packages[pkgKey{pkg, userID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/u%d", restriction.ErrPackageNotFound, pkg, userID)
	}
	return st, nil
}

var (
	_ restriction.StandbySource               = (*Device)(nil)
	_ restriction.HibernationSource           = (*Device)(nil)
	_ restriction.BackgroundRestrictionSource = (*Device)(nil)
	_ restriction.IdentityResolver            = (*Device)(nil)
	_ restriction.UserSource                  = (*Device)(nil)
	_ restriction.ConsentSurface              = (*Device)(nil)
)
