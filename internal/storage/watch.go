package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/joeycumines/whatsdemo/internal/chat"
)

// DefaultDebounce coalesces the burst of events an editor produces when it
// saves a file.
const DefaultDebounce = 100 * time.Millisecond

// StateWatcher reloads a StateStore whenever its file changes on disk and
// reports the new script. Invalid intermediate states are skipped.
type StateWatcher struct {
	store    *StateStore
	onChange func(chat.Script)
	debounce time.Duration
	clock    clockwork.Clock

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	mu    sync.Mutex
	timer clockwork.Timer
}

// WatcherOption configures a StateWatcher.
type WatcherOption func(*StateWatcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *StateWatcher) { w.debounce = d }
}

// WithClock sets the clock used for debouncing.
func WithClock(c clockwork.Clock) WatcherOption {
	return func(w *StateWatcher) { w.clock = c }
}

// WatchState starts watching the directory holding store.Path. onChange is
// called from a background goroutine with every successfully loaded script.
// Call Close to stop.
func WatchState(store *StateStore, onChange func(chat.Script), opts ...WatcherOption) (*StateWatcher, error) {
	w := &StateWatcher{
		store:    store,
		onChange: onChange,
		debounce: DefaultDebounce,
		clock:    clockwork.NewRealClock(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Atomic writes replace the file, so the directory is what must be watched.
	if err := watcher.Add(filepath.Dir(store.Path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	w.watcher = watcher

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.loop(ctx)
	return w, nil
}

func (w *StateWatcher) loop(ctx context.Context) {
	defer close(w.done)
	name := filepath.Base(w.store.Path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.store.logger().Warn("state watcher error", "path", w.store.Path, "error", err)
		}
	}
}

func (w *StateWatcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.clock.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		script := w.store.Load()
		if script == nil {
			return
		}
		w.store.logger().Debug("state file reloaded", "path", w.store.Path, "messages", len(script.Messages))
		w.onChange(*script)
	})
}

// Close stops watching and waits for the event loop to exit. A pending
// debounced reload is cancelled.
func (w *StateWatcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}
