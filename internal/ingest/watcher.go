package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow matches the spec's "debounce ~500ms to ensure upload is
// complete" requirement: an FTPS client can still be writing when the
// create event fires.
const debounceWindow = 500 * time.Millisecond

// Watcher drives Pipeline.ProcessFile off filesystem events in the drop
// directory, debouncing bursts of events against the same path the way an
// in-progress FTPS upload produces them.
type Watcher struct {
	Pipeline Pipeline

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Run watches the drop directory until ctx is cancelled. Pre-existing files
// are processed once at startup so a restart doesn't lose work.
func (w *Watcher) Run(ctx context.Context) error {
	w.pending = make(map[string]*time.Timer)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.Pipeline.DropRoot); err != nil {
		return err
	}

	w.scanExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("ingest watcher: %v", err)
		}
	}
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := listDropFiles(w.Pipeline.DropRoot)
	if err != nil {
		log.Printf("ingest watcher: scan existing: %v", err)
		return
	}
	for _, path := range entries {
		w.schedule(ctx, path)
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, exists := w.pending[path]; exists {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.process(ctx, path)
	})
}

func (w *Watcher) process(ctx context.Context, path string) {
	if !fileExists(path) {
		return
	}
	if err := w.Pipeline.ProcessFile(ctx, path); err != nil {
		log.Printf("ingest: processing %s failed, leaving in place for retry: %v", path, err)
	}
}
