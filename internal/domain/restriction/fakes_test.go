package restriction

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/tracker"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type pkgKey struct {
	pkg    string
	userID int
}

type standbyCall struct {
	Op         string
	Package    string
	UserID     int
	Reason     types.Reason
	PrevReason types.Reason
}

// fakeDevice implements every collaborator in memory
type fakeDevice struct {
	mu          sync.Mutex
	buckets     map[pkgKey]types.StandbyBucket
	uids        map[pkgKey]int
	hibernating map[pkgKey]bool
	restricted  map[pkgKey]bool
	users       []int
	calls       []standbyCall
	bucketErr   error
}

func newFakeDevice(users ...int) *fakeDevice {
	if len(users) == 0 {
		users = []int{0}
	}
	return &fakeDevice{
		buckets:     make(map[pkgKey]types.StandbyBucket),
		uids:        make(map[pkgKey]int),
		hibernating: make(map[pkgKey]bool),
		restricted:  make(map[pkgKey]bool),
		users:       users,
	}
}

func (d *fakeDevice) install(pkg string, uid int, bucket types.StandbyBucket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := pkgKey{pkg, types.UserID(uid)}
	d.uids[k] = uid
	d.buckets[k] = bucket
}

func (d *fakeDevice) setBucket(pkg string, userID int, bucket types.StandbyBucket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buckets[pkgKey{pkg, userID}] = bucket
}

func (d *fakeDevice) setHibernating(pkg string, userID int, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hibernating[pkgKey{pkg, userID}] = on
}

func (d *fakeDevice) setRestricted(uid int, pkg string, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restricted[pkgKey{pkg, uid}] = on
}

func (d *fakeDevice) Bucket(_ context.Context, pkg string, userID int) (types.StandbyBucket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bucketErr != nil {
		return 0, d.bucketErr
	}
	b, ok := d.buckets[pkgKey{pkg, userID}]
	if !ok {
		return types.BucketNever, nil
	}
	return b, nil
}

func (d *fakeDevice) Buckets(_ context.Context, userID int) ([]AppStandbyInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []AppStandbyInfo
	for k, b := range d.buckets {
		if k.userID == userID {
			out = append(out, AppStandbyInfo{PackageName: k.pkg, Bucket: b})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageName < out[j].PackageName })
	return out, nil
}

func (d *fakeDevice) Restrict(_ context.Context, pkg string, userID int, reason types.Reason) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, standbyCall{Op: "restrict", Package: pkg, UserID: userID, Reason: reason})
	return nil
}

func (d *fakeDevice) Unrestrict(_ context.Context, pkg string, userID int, prevReason, reason types.Reason) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, standbyCall{Op: "unrestrict", Package: pkg, UserID: userID, Reason: reason, PrevReason: prevReason})
	return nil
}

func (d *fakeDevice) standbyCalls() []standbyCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]standbyCall(nil), d.calls...)
}

func (d *fakeDevice) IsHibernating(pkg string, userID int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hibernating[pkgKey{pkg, userID}]
}

func (d *fakeDevice) IsBackgroundRestricted(uid int, pkg string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restricted[pkgKey{pkg, uid}]
}

func (d *fakeDevice) UIDForPackage(pkg string, userID int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	uid, ok := d.uids[pkgKey{pkg, userID}]
	if !ok {
		return 0, ErrPackageNotFound
	}
	return uid, nil
}

func (d *fakeDevice) PackagesForUID(uid int) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for k, u := range d.uids {
		if u == uid {
			out = append(out, k.pkg)
		}
	}
	sort.Strings(out)
	return out
}

func (d *fakeDevice) UserIDs() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.users...)
}

// mockConsent records escalation requests
type mockConsent struct {
	mock.Mock
}

func (m *mockConsent) RequestEscalation(pkg string, uid int) {
	m.Called(pkg, uid)
}

// proposalTracker proposes fixed levels per package
type proposalTracker struct {
	tracker.Base
	name string

	mu        sync.Mutex
	levels    map[string]types.RestrictionLevel
	uidsAdded []int
	keys      []string
	ready     int
}

func newProposalTracker(name string) *proposalTracker {
	return &proposalTracker{name: name, levels: make(map[string]types.RestrictionLevel)}
}

func (p *proposalTracker) Name() string { return p.name }

func (p *proposalTracker) set(pkg string, level types.RestrictionLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels[pkg] = level
}

func (p *proposalTracker) ProposedLevel(_ int, pkg string) types.RestrictionLevel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.levels[pkg]
}

func (p *proposalTracker) OnUidAdded(uid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uidsAdded = append(p.uidsAdded, uid)
}

func (p *proposalTracker) OnPropertiesChanged(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
}

func (p *proposalTracker) OnSystemReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready++
}

func (p *proposalTracker) snapshot() (uids []int, keys []string, ready int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.uidsAdded...), append([]string(nil), p.keys...), p.ready
}

// changeRecorder collects listener notifications
type changeRecorder struct {
	mu      sync.Mutex
	changes []LevelChange
}

func (r *changeRecorder) OnRestrictionLevelChanged(change LevelChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *changeRecorder) all() []LevelChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LevelChange(nil), r.changes...)
}

type harness struct {
	ctl     *Controller
	device  *fakeDevice
	consent *mockConsent
	changes *changeRecorder
	logs    *observer.ObservedLogs
}

// startController runs a controller on its own goroutine until the test ends
func startController(t *testing.T, device *fakeDevice, trackers ...tracker.Tracker) *harness {
	t.Helper()

	registry, err := tracker.NewRegistry(trackers...)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	consent := &mockConsent{}
	consent.On("RequestEscalation", mock.Anything, mock.Anything).Return().Maybe()

	ctl, err := NewController(Collaborators{
		Standby:     device,
		Hibernation: device,
		Restriction: device,
		Identity:    device,
		Users:       device,
		Consent:     consent,
	}, registry, logging.Wrap(zap.New(core)))
	require.NoError(t, err)

	changes := &changeRecorder{}
	ctl.AddListener(changes)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{ctl: ctl, device: device, consent: consent, changes: changes, logs: logs}
}

// settle waits until the lane is idle, including events spawned by handlers
func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		require.NoError(t, h.ctl.Sync(ctx))
		if h.ctl.QueueLen() == 0 {
			return
		}
	}
}

func (h *harness) ready(t *testing.T) {
	t.Helper()
	h.ctl.OnSystemReady()
	h.settle(t)
}
