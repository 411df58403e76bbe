// Package watch translates file-system events on smali files into
// document index updates.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.lsp.dev/uri"

	"smali-lsp/src/internal/common"
	"smali-lsp/src/server/index"
	"smali-lsp/src/smali"
)

// Watcher monitors a workspace root for smali file changes and keeps the
// document index in sync. Write events are debounced so editors that
// save in bursts trigger one reparse.
type Watcher struct {
	index    *index.DocumentIndex
	notifier *fsnotify.Watcher

	debounceDelay  time.Duration
	pendingUpdates map[string]time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewWatcher creates a watcher feeding the given index.
func NewWatcher(idx *index.DocumentIndex, debounce time.Duration) (*Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		index:          idx,
		notifier:       notifier,
		debounceDelay:  debounce,
		pendingUpdates: make(map[string]time.Time),
	}, nil
}

// Start begins watching every directory under root.
func (w *Watcher) Start(ctx context.Context, root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("watcher already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	if err := w.addWatches(root); err != nil {
		return fmt.Errorf("failed to add watches under %s: %w", root, err)
	}

	w.wg.Add(1)
	go w.processEvents()
	w.wg.Add(1)
	go w.debounceProcessor()

	w.started = true
	common.IndexLogger.Info("file watcher started for workspace: %s", root)
	return nil
}

// Stop shuts the watcher down and waits for its goroutines. The lock is
// released before waiting since the debounce loop takes it too.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	w.cancel()
	if err := w.notifier.Close(); err != nil {
		common.IndexLogger.Error("error closing fsnotify watcher: %v", err)
	}
	w.mu.Unlock()

	w.wg.Wait()
	common.IndexLogger.Info("file watcher stopped")
	return nil
}

// addWatches registers root and every directory below it.
func (w *Watcher) addWatches(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if err := w.notifier.Add(path); err != nil {
				common.IndexLogger.Warn("cannot watch %s: %v", path, err)
			}
		}
		return nil
	})
}

// processEvents consumes raw fsnotify events.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.notifier.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.notifier.Errors:
			if !ok {
				return
			}
			common.IndexLogger.Error("file watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// Walk rather than Add: mkdir -p style bursts create nested
			// directories before their parent's watch is active.
			if err := w.addWatches(event.Name); err != nil {
				common.IndexLogger.Warn("cannot watch new directory %s: %v", event.Name, err)
			}
			return
		}
		if isSmaliFile(event.Name) {
			w.openFile(event.Name)
		}

	case event.Op.Has(fsnotify.Write):
		if isSmaliFile(event.Name) {
			w.queueUpdate(event.Name)
		}

	// A rename delivers the old path only; the new path follows as a
	// separate create event, so the old entry is simply dropped here.
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		if isSmaliFile(event.Name) {
			w.index.OnDeleted(uri.File(event.Name))
		}
	}
}

// queueUpdate records a pending write with its arrival time; the
// debounce processor reparses once the file stops changing.
func (w *Watcher) queueUpdate(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pendingUpdates[path] = time.Now()
}

func (w *Watcher) debounceProcessor() {
	defer w.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) processDebounced() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, stamp := range w.pendingUpdates {
		if now.Sub(stamp) >= w.debounceDelay {
			ready = append(ready, path)
			delete(w.pendingUpdates, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.changeFile(path)
	}
}

func (w *Watcher) openFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		common.IndexLogger.Warn("cannot read created file %s: %v", path, err)
		return
	}
	if _, err := w.index.Open(uri.File(path), string(data)); err != nil {
		common.IndexLogger.Debug("indexing %s: %v", path, err)
	}
}

func (w *Watcher) changeFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Gone between the event and the reparse.
		w.index.OnDeleted(uri.File(path))
		return
	}
	if err := w.index.OnChanged(uri.File(path), string(data)); err != nil {
		common.IndexLogger.Debug("reindexing %s: %v", path, err)
	}
}

func isSmaliFile(path string) bool {
	return strings.HasSuffix(path, smali.FileExtension)
}
