package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits after the last change
const DefaultDebounce = 500 * time.Millisecond

// Reloader watches the directory holding files that match a glob and calls
// onChange once writes have settled
type Reloader struct {
	watcher  *fsnotify.Watcher
	glob     string
	dir      string
	debounce time.Duration
	onChange func()
	logger   *logging.Logger
}

// NewReloader creates a watcher for glob. Only the glob's static base
// directory is watched, so patterns that descend into subdirectories see
// changes in the base directory alone.
func NewReloader(glob string, onChange func(), logger *logging.Logger) (*Reloader, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	glob = filepath.ToSlash(filepath.Clean(glob))
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid watch pattern %q", glob)
	}
	base, _ := doublestar.SplitPattern(glob)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.FromSlash(base)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	return &Reloader{
		watcher:  watcher,
		glob:     glob,
		dir:      dir,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   logger.Named("watch"),
	}, nil
}

// WithDebounce overrides the quiet period
func (r *Reloader) WithDebounce(d time.Duration) *Reloader {
	r.debounce = d
	return r
}

// Dir returns the watched directory
func (r *Reloader) Dir() string {
	return r.dir
}

// Run watches for changes until ctx is cancelled
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if debounce != nil {
			debounce.Stop()
		}
	}

	r.logger.Info("Watching policy files", zap.String("glob", r.glob), zap.String("dir", r.dir))
	for {
		select {
		case <-ctx.Done():
			stop()
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				stop()
				return nil
			}
			if !r.relevant(event) {
				continue
			}
			r.logger.Debug("Policy file changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))

			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(r.debounce, r.onChange)
			mu.Unlock()

		case err, ok := <-r.watcher.Errors:
			if !ok {
				stop()
				return nil
			}
			r.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	ok, err := doublestar.Match(r.glob, filepath.ToSlash(event.Name))
	return err == nil && ok
}
