package relayconfig

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"

	"github.com/nerrad567/relayctl/internal/infrastructure/logging"
)

// DefaultDebounce is how long the file must stay quiet before a change is acted on.
const DefaultDebounce = 500 * time.Millisecond

// Watcher restarts the relay when its config file is edited outside relayctl.
//
// The parent directory is watched rather than the file, since editors and
// atomic writers replace the file instead of writing in place. Bursts of
// events are collapsed into one check after the debounce window, and the
// change callback only fires when the content digest differs from the
// last known one.
type Watcher struct {
	store    *Store
	debounce time.Duration
	onChange func()
	logger   *logging.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher. onChange is typically Supervisor.Restart.
func NewWatcher(store *Store, debounce time.Duration, onChange func(), logger *logging.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Watcher{
		store:    store,
		debounce: debounce,
		onChange: onChange,
		logger:   logger.Component("config-watcher"),
	}
}

// Run watches until ctx is cancelled. It returns an error only if the
// watch could not be set up.
func (w *Watcher) Run(ctx context.Context) error {
	target, err := filepath.Abs(w.store.Path())
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	// Seed the digest so the first event for unchanged content is ignored.
	if data, err := w.store.Read(); err == nil {
		w.store.Observe(data)
	}

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = fsw.Close()
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})

	sctx.Go(func(sctx *stopper.Context) error {
		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-fsw.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				w.schedule()

			case err, ok := <-fsw.Errors:
				if !ok {
					return nil
				}
				w.logger.Warn("config watch error", "error", err)
			}
		}
		return nil
	})

	w.logger.Info("watching relay config", "path", target, "debounce", w.debounce)

	<-sctx.Stopping()
	if err := sctx.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.check)
}

func (w *Watcher) check() {
	data, err := w.store.Read()
	if err != nil {
		w.logger.Warn("config changed but could not be read", "error", err)
		return
	}
	if !w.store.Observe(data) {
		w.logger.Debug("config event without content change")
		return
	}

	w.logger.Info("relay config changed on disk, restarting relay", "bytes", len(data))
	w.onChange()
}
