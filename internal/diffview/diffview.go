// Package diffview materializes agent-proposed file edits into a
// reviewable side-by-side comparison and guarantees eventual cleanup of
// the scratch artifacts it creates.
package diffview

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/getfinn/bridge/internal/scratch"
)

// DefaultRetention is how long artifacts stay on disk after the
// comparison opens, so the user can finish reviewing.
const DefaultRetention = 5 * time.Minute

// titleSuffix marks comparisons as agent-originated when the caller
// supplies no title.
const titleSuffix = " (Agent Edit)"

// ErrMissingContent is returned when a job carries neither original nor
// modified content.
var ErrMissingContent = errors.New("missing content for diff")

// ViewError wraps write or view-invocation failures. Jobs are not
// retried; the cause is surfaced to the user.
type ViewError struct {
	Cause error
}

func (e *ViewError) Error() string {
	return fmt.Sprintf("failed to show diff view: %v", e.Cause)
}

func (e *ViewError) Unwrap() error {
	return e.Cause
}

// Viewer opens the host's comparison view over two content locations.
type Viewer interface {
	ShowDiff(originalPath, modifiedPath, title string) error
}

// Job is one materialization request. It owns its two scratch artifacts
// until the retention timer fires or the teardown sweep runs.
type Job struct {
	OriginalContent string
	ModifiedContent string
	Path            string
	Title           string
	EntireFile      bool
	CreatedAt       time.Time
}

// NotifyFunc delivers a user-visible message.
type NotifyFunc func(text string)

// Manager materializes diff jobs. Safe for concurrent use; jobs never
// touch each other's artifacts.
type Manager struct {
	store     *scratch.Store
	viewer    Viewer
	retention time.Duration
	notify    NotifyFunc

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewManager creates a manager. A non-positive retention falls back to
// the default; notify may be nil.
func NewManager(store *scratch.Store, viewer Viewer, retention time.Duration, notify NotifyFunc) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		store:     store,
		viewer:    viewer,
		retention: retention,
		notify:    notify,
		timers:    make(map[string]*time.Timer),
	}
}

// Materialize writes both contents to scratch artifacts, opens the
// comparison view and schedules cleanup. Failures abort the job with no
// partial view and no leftover artifacts; they never affect other jobs.
func (m *Manager) Materialize(job Job) error {
	if job.OriginalContent == "" && job.ModifiedContent == "" {
		m.tell(ErrMissingContent.Error())
		return ErrMissingContent
	}

	token := scratch.NewToken()

	origPath, err := m.store.Write(job.Path, token, scratch.SideOriginal, job.OriginalContent)
	if err != nil {
		return m.fail(err, origPath, "")
	}
	modPath, err := m.store.Write(job.Path, token, scratch.SideModified, job.ModifiedContent)
	if err != nil {
		return m.fail(err, origPath, modPath)
	}

	title := job.Title
	if title == "" {
		title = filepath.Base(job.Path) + titleSuffix
	}

	if err := m.viewer.ShowDiff(origPath, modPath, title); err != nil {
		return m.fail(err, origPath, modPath)
	}

	m.schedule(token, origPath, modPath)
	return nil
}

// fail removes any artifacts the job created and surfaces the cause.
func (m *Manager) fail(cause error, paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := m.store.Remove(p); err != nil {
			log.Printf("⚠️ Failed to remove artifact after error: %v", err)
		}
	}
	verr := &ViewError{Cause: cause}
	m.tell(verr.Error())
	return verr
}

// schedule arms the cancellable retention timer for one job.
func (m *Manager) schedule(token, origPath, modPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		// Teardown already ran; clean up now instead of leaking a timer.
		m.removeBoth(origPath, modPath)
		return
	}

	m.timers[token] = time.AfterFunc(m.retention, func() {
		m.mu.Lock()
		delete(m.timers, token)
		m.mu.Unlock()
		m.removeBoth(origPath, modPath)
	})
}

// removeBoth deletes a job's artifacts. Cleanup is best-effort: failures
// are logged, never surfaced.
func (m *Manager) removeBoth(origPath, modPath string) {
	if err := m.store.Remove(origPath); err != nil {
		log.Printf("⚠️ Failed to clean up artifact %s: %v", origPath, err)
	}
	if err := m.store.Remove(modPath); err != nil {
		log.Printf("⚠️ Failed to clean up artifact %s: %v", modPath, err)
	}
}

// Shutdown cancels pending retention timers and sweeps the scratch
// directory for any artifact still matching the naming convention. This
// is the backstop for jobs whose timer never fired.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	for token, timer := range m.timers {
		timer.Stop()
		delete(m.timers, token)
	}
	m.mu.Unlock()

	removed, err := m.store.Sweep()
	if err != nil {
		log.Printf("⚠️ Scratch sweep incomplete: %v", err)
	}
	if removed > 0 {
		log.Printf("🗑️ Swept %d scratch artifact(s)", removed)
	}
}

func (m *Manager) tell(text string) {
	if m.notify != nil {
		m.notify(text)
	}
}
