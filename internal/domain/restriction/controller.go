package restriction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/tracker"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"go.uber.org/zap"
)

// PropertyPrefix selects the configuration keys forwarded to trackers
const PropertyPrefix = "bg_"

// Controller owns the restriction state and applies every event on its lane
type Controller struct {
	store     *Store
	gate      *Gate
	listeners *Dispatcher
	trackers  *tracker.Registry
	evaluator *Evaluator
	lane      *Lane
	collab    Collaborators
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	now       func() time.Time

	ready  atomic.Bool
	parked []Event // Lane goroutine only
}

// NewController creates a controller. trackers may be nil for none.
func NewController(collab Collaborators, trackers *tracker.Registry, logger *logging.Logger) (*Controller, error) {
	if collab.Standby == nil {
		return nil, errors.New("restriction: standby source is required")
	}
	if collab.Identity == nil {
		return nil, errors.New("restriction: identity resolver is required")
	}
	if trackers == nil {
		trackers = &tracker.Registry{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("restriction")

	c := &Controller{
		store:    NewStore(),
		gate:     NewGate(),
		trackers: trackers,
		collab:   collab.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
	c.listeners = NewDispatcher(c.onListenerPanic)
	c.evaluator = NewEvaluator(c.collab.Hibernation, c.collab.Restriction, trackers, c.requestEscalation)
	c.lane = NewLane(c.handle, logger)
	return c, nil
}

// WithMetrics adds metrics tracking to the controller
func (c *Controller) WithMetrics(metrics *monitoring.Metrics) *Controller {
	c.metrics = metrics
	c.lane.WithMetrics(metrics)
	return c
}

// WithTracer records a span for every event
func (c *Controller) WithTracer(tracer *tracing.Tracer) *Controller {
	c.lane.WithTracer(tracer)
	return c
}

// WithClock overrides the clock used for timestamps
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	c.store.WithClock(now)
	return c
}

// Run drains events until ctx is cancelled or Close is called
func (c *Controller) Run(ctx context.Context) error {
	return c.lane.Run(ctx)
}

// Close stops accepting events; Run returns once the queue is drained
func (c *Controller) Close() {
	c.lane.Close()
}

// Sync waits until every event submitted before it has been handled.
// Events parked until SystemReady count as handled.
func (c *Controller) Sync(ctx context.Context) error {
	return c.lane.Sync(ctx)
}

// Submit queues an event
func (c *Controller) Submit(ev Event) error {
	return c.lane.Submit(ev)
}

func (c *Controller) submit(ev Event) {
	if err := c.lane.Submit(ev); err != nil {
		c.logger.Warn("Dropping event", append(eventFields(ev), zap.Error(err))...)
	}
}

// post queues follow-up work from a running handler
func (c *Controller) post(ev Event) {
	if err := c.lane.post(ev); err != nil {
		c.logger.Warn("Dropping event", append(eventFields(ev), zap.Error(err))...)
	}
}

func (c *Controller) requestEscalation(pkg string, uid int) {
	c.post(EscalationRequested{Package: pkg, UID: uid})
}

func (c *Controller) onListenerPanic(change LevelChange, err error) {
	c.metrics.IncListenerFailures()
	c.logger.Error("Level listener failed",
		logging.UID(change.UID),
		logging.Package(change.Package),
		logging.Level(change.Level),
		zap.Error(err),
	)
}

// Process lifecycle

// OnUidActive reports uid coming to the foreground
func (c *Controller) OnUidActive(uid int) {
	c.submit(UidActive{UID: uid})
}

// OnUidIdle reports uid going to the background
func (c *Controller) OnUidIdle(uid int, disabled bool) {
	c.submit(UidInactive{UID: uid, Disabled: disabled})
}

// OnUidGone reports uid exiting
func (c *Controller) OnUidGone(uid int, disabled bool) {
	c.submit(UidInactive{UID: uid, Disabled: disabled, Gone: true})
}

// Standby buckets

// OnStandbyBucketChanged reports a package moving to another bucket
func (c *Controller) OnStandbyBucketChanged(pkg string, userID int, bucket types.StandbyBucket) {
	c.submit(StandbyBucketChanged{Package: pkg, UserID: userID, Bucket: bucket})
}

// OnUserInteractionStarted reports the user interacting with a package
func (c *Controller) OnUserInteractionStarted(pkg string, userID int) {
	c.submit(UserInteractionStarted{Package: pkg, UserID: userID})
}

// Background restriction flag

// OnBackgroundRestrictionChanged reports the user flipping the flag
func (c *Controller) OnBackgroundRestrictionChanged(uid int, pkg string, restricted bool) {
	c.submit(BackgroundRestrictionChanged{UID: uid, Package: pkg, Restricted: restricted})
}

// Configuration

// OnPropertiesChanged forwards keys under PropertyPrefix to the trackers
func (c *Controller) OnPropertiesChanged(keys []string) {
	var ours []string
	for _, k := range keys {
		if strings.HasPrefix(k, PropertyPrefix) {
			ours = append(ours, k)
		}
	}
	if len(ours) == 0 {
		return
	}
	c.submit(PropertiesChanged{Keys: ours})
}

// Broadcasts

// OnPackageAdded reports a package install
func (c *Controller) OnPackageAdded(pkg string, uid int, replacing bool) {
	c.submit(PackageAdded{Package: pkg, UID: uid, Replacing: replacing})
}

// OnPackageFullyRemoved reports a package removal
func (c *Controller) OnPackageFullyRemoved(pkg string, uid int) {
	c.submit(PackageFullyRemoved{Package: pkg, UID: uid})
}

// OnUidRemoved reports a uid going away
func (c *Controller) OnUidRemoved(uid int, replacing bool) {
	c.submit(UidRemoved{UID: uid, Replacing: replacing})
}

// OnUserAdded reports a newly created user
func (c *Controller) OnUserAdded(userID int) {
	c.submit(UserAdded{UserID: userID})
}

// OnUserStarted reports a user starting; its levels are refreshed
func (c *Controller) OnUserStarted(userID int) {
	c.submit(UserStarted{UserID: userID})
}

// OnUserStopped reports a user stopping
func (c *Controller) OnUserStopped(userID int) {
	c.submit(UserStopped{UserID: userID})
}

// OnUserRemoved reports a removed user; all of its entries are dropped
func (c *Controller) OnUserRemoved(userID int) {
	c.submit(UserRemoved{UserID: userID})
}

// OnSystemReady marks the collaborators as usable. Levels of every user are
// initialized, trackers are told, then events parked meanwhile run in
// arrival order.
func (c *Controller) OnSystemReady() {
	c.submit(SystemReady{})
}

// RefreshForUID recomputes every package of uid, trackers included
func (c *Controller) RefreshForUID(uid int, reason types.Reason, allowEscalation bool) error {
	return c.lane.Submit(RefreshUID{UID: uid, Reason: reason, AllowEscalation: allowEscalation})
}

// RefreshForUser recomputes every package of a user from its buckets
func (c *Controller) RefreshForUser(userID int, reason types.Reason) error {
	return c.lane.Submit(RefreshUser{UserID: userID, Reason: reason})
}

// ReevaluateAll refreshes every uid of every user, trackers included
func (c *Controller) ReevaluateAll(reason types.Reason) error {
	return c.lane.Submit(ReevaluateAll{Reason: reason})
}

// Queries

// Ready reports whether SystemReady has been handled
func (c *Controller) Ready() bool {
	return c.ready.Load()
}

// Level returns the least restrictive level among uid's packages
func (c *Controller) Level(uid int) types.RestrictionLevel {
	return c.store.UIDLevel(uid)
}

// PackageLevel returns the level of one package in uid
func (c *Controller) PackageLevel(uid int, pkg string) types.RestrictionLevel {
	return c.store.PackageLevel(uid, pkg)
}

// LevelForPackage resolves pkg for userID and returns its level
func (c *Controller) LevelForPackage(pkg string, userID int) (types.RestrictionLevel, error) {
	uid, err := c.collab.Identity.UIDForPackage(pkg, userID)
	if err != nil {
		return types.LevelUnknown, fmt.Errorf("resolve %s/u%d: %w", pkg, userID, err)
	}
	return c.store.PackageLevel(uid, pkg), nil
}

// Reason returns why a package is at its level
func (c *Controller) Reason(uid int, pkg string) types.Reason {
	return c.store.Reason(uid, pkg)
}

// State returns the recorded state of a package
func (c *Controller) State(uid int, pkg string) (PackageState, bool) {
	return c.store.Get(uid, pkg)
}

// Snapshot returns every recorded state
func (c *Controller) Snapshot() []PackageState {
	return c.store.Snapshot()
}

// AddListener registers l for level changes and returns its remover
func (c *Controller) AddListener(l Listener) (remove func()) {
	return c.listeners.Add(l)
}

// Trackers returns the tracker registry
func (c *Controller) Trackers() *tracker.Registry {
	return c.trackers
}

// IsActive reports whether a package is tracked as foreground-active
func (c *Controller) IsActive(uid int, pkg string) bool {
	return c.gate.IsActive(uid, pkg)
}

// QueueLen returns the number of events waiting on the lane
func (c *Controller) QueueLen() int {
	return c.lane.Len()
}
