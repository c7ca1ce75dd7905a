// Package selection turns the editor's raw selection-change stream into a
// small number of "the user has settled on this selection" events.
//
// Selection events fire continuously while the user drags or extends a
// selection with the keyboard; forwarding each one would flood the agent.
// The tracker debounces with a stability window and lets strong "user is
// done" signals (focus regained, document edited, pointer command) force an
// immediate check.
package selection

import (
	"sync"
	"time"
)

// DefaultStabilityWindow is how long a selection must sit unchanged
// before it counts as settled.
const DefaultStabilityWindow = 300 * time.Millisecond

// Snapshot identifies a selected range in a document. Two snapshots are
// equal iff all four fields match.
type Snapshot struct {
	AnchorLine int
	AnchorCol  int
	ActiveLine int
	ActiveCol  int
}

// Equal reports value equality.
func (s Snapshot) Equal(o Snapshot) bool {
	return s == o
}

// LiveSelection reports the editor's selection as it is right now, used
// to re-validate an episode at check time.
type LiveSelection interface {
	// Selection returns the current selection. ok is false when there is
	// no active editor; empty is true when the selection is collapsed.
	Selection() (snap Snapshot, empty bool, ok bool)
}

// EmitFunc receives exactly one stable-selection event per settled
// episode.
type EmitFunc func(Snapshot)

// Tracker owns the single selection episode for one editor session.
// Methods are safe to call from the editor event path and from timer
// goroutines.
type Tracker struct {
	window time.Duration
	live   LiveSelection
	emit   EmitFunc

	mu         sync.Mutex
	active     bool
	current    Snapshot
	lastChange time.Time
	lastSent   *Snapshot
	timer      *time.Timer
}

// NewTracker creates a tracker with the given stability window. A
// non-positive window falls back to the default.
func NewTracker(window time.Duration, live LiveSelection, emit EmitFunc) *Tracker {
	if window <= 0 {
		window = DefaultStabilityWindow
	}
	return &Tracker{window: window, live: live, emit: emit}
}

// SelectionChanged records a raw selection-change event. An empty
// selection ends the episode without emission; any other change
// (re)starts the stability countdown.
func (t *Tracker) SelectionChanged(snap Snapshot, empty bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if empty {
		// Every path that sees emptiness must cancel the timer, or a
		// rapid empty/non-empty/empty toggle leaves a stale one armed.
		t.cancelTimerLocked()
		t.active = false
		return
	}

	t.current = snap
	t.lastChange = now
	t.active = true

	// Debounce: only the latest change starts a fresh countdown.
	t.cancelTimerLocked()
	t.timer = time.AfterFunc(t.window, func() {
		t.CommitSignal(time.Now())
	})
}

// CommitSignal forces an immediate stability check. Raised on focus
// regain, pointer commands, document edits, and by the stability timer.
func (t *Tracker) CommitSignal(now time.Time) {
	t.mu.Lock()
	snap, fire := t.checkStabilityLocked(now)
	t.mu.Unlock()

	// Emit outside the lock: the callback feeds the sync client and may
	// re-enter the tracker.
	if fire && t.emit != nil {
		t.emit(snap)
	}
}

// checkStabilityLocked resolves the episode. It returns the snapshot to
// emit and whether emission should happen.
func (t *Tracker) checkStabilityLocked(now time.Time) (Snapshot, bool) {
	if !t.active || t.live == nil {
		return Snapshot{}, false
	}

	_, empty, ok := t.live.Selection()
	if !ok {
		// No current editor: leave the episode alone, a later event
		// will resolve it.
		return Snapshot{}, false
	}
	if empty {
		t.cancelTimerLocked()
		t.active = false
		return Snapshot{}, false
	}

	if now.Sub(t.lastChange) < t.window {
		// Still settling; the rearmed timer will re-trigger.
		return Snapshot{}, false
	}

	t.cancelTimerLocked()
	t.active = false

	if t.lastSent != nil && t.lastSent.Equal(t.current) {
		// Already reported this settled selection.
		return Snapshot{}, false
	}

	sent := t.current
	t.lastSent = &sent
	return sent, true
}

// Stop cancels any pending stability timer and deactivates the episode.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelTimerLocked()
	t.active = false
}

func (t *Tracker) cancelTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
