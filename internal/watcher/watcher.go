// Package watcher monitors workspace folders for document changes. In
// headless deployments the host editor cannot push document-changed
// events, so file writes observed here stand in for them: the bridge
// turns each one into a detector commit signal and an editor-state
// refresh.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces the burst of write events most editors
// produce for a single save.
const defaultDebounce = 100 * time.Millisecond

// Callbacks for workspace events.
type Callbacks struct {
	// OnDocumentChanged fires once per settled burst of writes to a
	// file.
	OnDocumentChanged func(path string)
}

// Watcher watches workspace folders and raises debounced
// document-changed events.
type Watcher struct {
	folders   []string
	fsWatcher *fsnotify.Watcher
	callbacks Callbacks
	debounce  time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher over the given folders. A non-positive debounce
// selects the default.
func New(folders []string, debounce time.Duration, callbacks Callbacks) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		folders:   folders,
		fsWatcher: fsWatcher,
		callbacks: callbacks,
		debounce:  debounce,
		timers:    make(map[string]*time.Timer),
		stopChan:  make(chan struct{}),
	}
	w.setupWatches()
	return w, nil
}

// setupWatches adds the workspace folders and their existing
// subdirectories.
func (w *Watcher) setupWatches() {
	for _, folder := range w.folders {
		w.addTree(folder)
	}
}

// addTree watches a directory and its subdirectories, skipping hidden
// ones.
func (w *Watcher) addTree(root string) {
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		if addErr := w.fsWatcher.Add(path); addErr != nil {
			log.Printf("⚠️ Failed to watch %s: %v", path, addErr)
		}
		return nil
	})
}

// Start begins delivering events.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.eventLoop()
	log.Printf("🔍 Workspace watcher started (%d folder(s))", len(w.folders))
}

// Stop stops the watcher and cancels pending debounce timers.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.fsWatcher.Close()

		w.mu.Lock()
		for path, timer := range w.timers {
			timer.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()

		w.wg.Wait()
		log.Println("🛑 Workspace watcher stopped")
	})
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addTree(event.Name)
					continue
				}
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ fsnotify error: %v", err)
		}
	}
}

// scheduleChange arms (or rearms) the per-file debounce timer.
func (w *Watcher) scheduleChange(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, exists := w.timers[path]; exists {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if w.callbacks.OnDocumentChanged != nil {
			w.callbacks.OnDocumentChanged(path)
		}
	})
}
