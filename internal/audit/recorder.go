package audit

import (
	"context"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

const (
	maxBatch      = 64
	flushInterval = 200 * time.Millisecond
)

// Recorder is a level listener that writes changes to a Store off the
// controller's lane. Changes arriving while the buffer is full are dropped.
type Recorder struct {
	store   *Store
	changes chan restriction.LevelChange
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewRecorder creates a recorder buffering up to size changes
func NewRecorder(store *Store, size int, logger *logging.Logger) *Recorder {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{
		store:   store,
		changes: make(chan restriction.LevelChange, size),
		logger:  logger.Named("audit"),
	}
}

// WithMetrics adds metrics tracking to the recorder
func (r *Recorder) WithMetrics(metrics *monitoring.Metrics) *Recorder {
	r.metrics = metrics
	return r
}

// OnRestrictionLevelChanged implements restriction.Listener. It never blocks.
func (r *Recorder) OnRestrictionLevelChanged(change restriction.LevelChange) {
	select {
	case r.changes <- change:
	default:
		r.metrics.IncAuditDropped()
		r.logger.Warn("Audit buffer full, dropping change",
			logging.UID(change.UID),
			logging.Package(change.Package),
			logging.Level(change.Level),
		)
	}
}

// Run writes buffered changes in batches until ctx is cancelled, then
// flushes whatever is left
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]restriction.LevelChange, 0, maxBatch)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.store.Insert(ctx, batch); err != nil {
			r.logger.Error("Failed to write audit batch", zap.Int("changes", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case c := <-r.changes:
					batch = append(batch, c)
				default:
					flush(context.Background())
					return nil
				}
			}
		case c := <-r.changes:
			batch = append(batch, c)
			if len(batch) >= maxBatch {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}
