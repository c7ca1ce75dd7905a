package selection

import (
	"sync"
	"testing"
	"time"
)

// fakeLive is a controllable LiveSelection source.
type fakeLive struct {
	mu    sync.Mutex
	snap  Snapshot
	empty bool
	ok    bool
}

func (f *fakeLive) Selection() (Snapshot, bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.empty, f.ok
}

func (f *fakeLive) set(snap Snapshot, empty, ok bool) {
	f.mu.Lock()
	f.snap, f.empty, f.ok = snap, empty, ok
	f.mu.Unlock()
}

type emitRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *emitRecorder) emit(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *emitRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *emitRecorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

// newTestTracker uses a very long window so real timers never fire during
// a test; stability checks are driven through CommitSignal with synthetic
// clock values.
func newTestTracker(live *fakeLive, rec *emitRecorder) *Tracker {
	t := NewTracker(time.Hour, live, rec.emit)
	return t
}

func TestDebounceEmitsOnceForFinalSnapshot(t *testing.T) {
	live := &fakeLive{ok: true}
	rec := &emitRecorder{}
	tr := newTestTracker(live, rec)
	defer tr.Stop()

	t0 := time.Now()
	first := Snapshot{1, 0, 1, 5}
	final := Snapshot{1, 0, 1, 8}

	live.set(first, false, true)
	tr.SelectionChanged(first, false, t0)
	live.set(final, false, true)
	tr.SelectionChanged(final, false, t0.Add(100*time.Millisecond))

	// Before the window elapses relative to the last change, nothing.
	tr.CommitSignal(t0.Add(200 * time.Millisecond))
	if rec.count() != 0 {
		t.Fatalf("emitted before window elapsed")
	}

	// Past the window: exactly one event carrying the final snapshot.
	tr.CommitSignal(t0.Add(100*time.Millisecond + time.Hour))
	if rec.count() != 1 {
		t.Fatalf("emit count = %d, want 1", rec.count())
	}
	if !rec.last().Equal(final) {
		t.Errorf("emitted %+v, want %+v", rec.last(), final)
	}
}

func TestCollapseBeforeWindowEmitsNothing(t *testing.T) {
	live := &fakeLive{ok: true}
	rec := &emitRecorder{}
	tr := newTestTracker(live, rec)
	defer tr.Stop()

	t0 := time.Now()
	snap := Snapshot{2, 0, 2, 4}

	live.set(snap, false, true)
	tr.SelectionChanged(snap, false, t0)
	live.set(Snapshot{}, true, true)
	tr.SelectionChanged(Snapshot{}, true, t0.Add(50*time.Millisecond))

	tr.CommitSignal(t0.Add(2 * time.Hour))
	if rec.count() != 0 {
		t.Fatalf("emit count = %d, want 0", rec.count())
	}
}

func TestCommitSignalIdempotent(t *testing.T) {
	live := &fakeLive{ok: true}
	rec := &emitRecorder{}
	tr := newTestTracker(live, rec)
	defer tr.Stop()

	t0 := time.Now()
	snap := Snapshot{3, 1, 4, 2}
	live.set(snap, false, true)
	tr.SelectionChanged(snap, false, t0)

	later := t0.Add(2 * time.Hour)
	tr.CommitSignal(later)
	tr.CommitSignal(later.Add(time.Second))
	if rec.count() != 1 {
		t.Fatalf("emit count = %d, want 1", rec.count())
	}
}

func TestDedupAcrossEpisodes(t *testing.T) {
	live := &fakeLive{ok: true}
	rec := &emitRecorder{}
	tr := newTestTracker(live, rec)
	defer tr.Stop()

	t0 := time.Now()
	snap := Snapshot{3, 1, 4, 2}
	live.set(snap, false, true)

	tr.SelectionChanged(snap, false, t0)
	tr.CommitSignal(t0.Add(2 * time.Hour))

	// Same selection reported again in a fresh episode is suppressed.
	tr.SelectionChanged(snap, false, t0.Add(3*time.Hour))
	tr.CommitSignal(t0.Add(6 * time.Hour))
	if rec.count() != 1 {
		t.Fatalf("emit count = %d, want 1", rec.count())
	}

	// A different settled selection is reported.
	other := Snapshot{5, 0, 5, 9}
	live.set(other, false, true)
	tr.SelectionChanged(other, false, t0.Add(7*time.Hour))
	tr.CommitSignal(t0.Add(10 * time.Hour))
	if rec.count() != 2 {
		t.Fatalf("emit count = %d, want 2", rec.count())
	}
	if !rec.last().Equal(other) {
		t.Errorf("emitted %+v, want %+v", rec.last(), other)
	}
}

func TestLiveCollapseAtCheckTimeDeactivates(t *testing.T) {
	live := &fakeLive{ok: true}
	rec := &emitRecorder{}
	tr := newTestTracker(live, rec)
	defer tr.Stop()

	t0 := time.Now()
	snap := Snapshot{1, 0, 1, 4}
	live.set(snap, false, true)
	tr.SelectionChanged(snap, false, t0)

	// The selection collapsed between the change and the check.
	live.set(Snapshot{}, true, true)
	tr.CommitSignal(t0.Add(2 * time.Hour))
	if rec.count() != 0 {
		t.Fatalf("emit count = %d, want 0", rec.count())
	}

	// Even a later commit with a non-empty live selection stays quiet:
	// the episode is gone.
	live.set(snap, false, true)
	tr.CommitSignal(t0.Add(3 * time.Hour))
	if rec.count() != 0 {
		t.Fatalf("emit count = %d after episode ended", rec.count())
	}
}

func TestNoEditorIsNoOp(t *testing.T) {
	live := &fakeLive{ok: false}
	rec := &emitRecorder{}
	tr := newTestTracker(live, rec)
	defer tr.Stop()

	t0 := time.Now()
	snap := Snapshot{1, 0, 2, 0}
	tr.SelectionChanged(snap, false, t0)
	tr.CommitSignal(t0.Add(2 * time.Hour))
	if rec.count() != 0 {
		t.Fatalf("emitted with no active editor")
	}

	// Episode survives: once an editor is back, it resolves.
	live.set(snap, false, true)
	tr.CommitSignal(t0.Add(3 * time.Hour))
	if rec.count() != 1 {
		t.Fatalf("emit count = %d, want 1", rec.count())
	}
}

func TestStabilityTimerFires(t *testing.T) {
	live := &fakeLive{ok: true}
	rec := &emitRecorder{}
	tr := NewTracker(20*time.Millisecond, live, rec.emit)
	defer tr.Stop()

	snap := Snapshot{1, 0, 1, 8}
	live.set(snap, false, true)
	tr.SelectionChanged(snap, false, time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.count() != 1 {
		t.Fatalf("emit count = %d, want 1", rec.count())
	}
	if !rec.last().Equal(snap) {
		t.Errorf("emitted %+v, want %+v", rec.last(), snap)
	}
}
