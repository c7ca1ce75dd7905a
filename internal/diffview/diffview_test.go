package diffview

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getfinn/bridge/internal/scratch"
)

type fakeViewer struct {
	mu    sync.Mutex
	calls int
	orig  string
	mod   string
	title string
	err   error
}

func (v *fakeViewer) ShowDiff(originalPath, modifiedPath, title string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	v.orig, v.mod, v.title = originalPath, modifiedPath, title
	return v.err
}

func artifactCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), scratch.ArtifactPrefix) {
			n++
		}
	}
	return n
}

func TestMaterializeWritesArtifactsAndInvokesViewer(t *testing.T) {
	dir := t.TempDir()
	store, err := scratch.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	viewer := &fakeViewer{}
	m := NewManager(store, viewer, time.Hour, nil)
	defer m.Shutdown()

	err = m.Materialize(Job{
		OriginalContent: "a",
		ModifiedContent: "b",
		Path:            "foo.ts",
		CreatedAt:       time.Now(),
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if viewer.calls != 1 {
		t.Fatalf("viewer invoked %d times, want 1", viewer.calls)
	}
	if !strings.Contains(viewer.title, "foo.ts") {
		t.Errorf("title = %q, want it to contain foo.ts", viewer.title)
	}

	origData, err := os.ReadFile(viewer.orig)
	if err != nil {
		t.Fatalf("read original artifact: %v", err)
	}
	modData, err := os.ReadFile(viewer.mod)
	if err != nil {
		t.Fatalf("read modified artifact: %v", err)
	}
	if string(origData) != "a" || string(modData) != "b" {
		t.Errorf("artifact contents = %q / %q", origData, modData)
	}
	if artifactCount(t, dir) != 2 {
		t.Errorf("artifact count = %d, want 2", artifactCount(t, dir))
	}
}

func TestMaterializeBothAbsentFails(t *testing.T) {
	dir := t.TempDir()
	store, err := scratch.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	viewer := &fakeViewer{}

	var told []string
	m := NewManager(store, viewer, time.Hour, func(s string) { told = append(told, s) })
	defer m.Shutdown()

	err = m.Materialize(Job{Path: "foo.ts"})
	if !errors.Is(err, ErrMissingContent) {
		t.Fatalf("err = %v, want ErrMissingContent", err)
	}
	if viewer.calls != 0 {
		t.Errorf("viewer invoked on invalid job")
	}
	if artifactCount(t, dir) != 0 {
		t.Errorf("artifacts created for invalid job")
	}
	if len(told) != 1 || told[0] != "missing content for diff" {
		t.Errorf("user message = %v", told)
	}
}

func TestViewerFailureRemovesArtifacts(t *testing.T) {
	dir := t.TempDir()
	store, err := scratch.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	viewer := &fakeViewer{err: errors.New("host refused")}

	var told []string
	m := NewManager(store, viewer, time.Hour, func(s string) { told = append(told, s) })
	defer m.Shutdown()

	err = m.Materialize(Job{OriginalContent: "a", ModifiedContent: "b", Path: "x.go"})
	var verr *ViewError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ViewError", err)
	}
	if !strings.Contains(err.Error(), "failed to show diff view") {
		t.Errorf("error text = %q", err.Error())
	}
	if artifactCount(t, dir) != 0 {
		t.Errorf("failed job left artifacts behind")
	}
	if len(told) != 1 || !strings.Contains(told[0], "host refused") {
		t.Errorf("user message = %v", told)
	}
}

func TestRetentionTimerCleansUp(t *testing.T) {
	dir := t.TempDir()
	store, err := scratch.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	viewer := &fakeViewer{}
	m := NewManager(store, viewer, 20*time.Millisecond, nil)
	defer m.Shutdown()

	if err := m.Materialize(Job{OriginalContent: "a", ModifiedContent: "b", Path: "x.go"}); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for artifactCount(t, dir) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := artifactCount(t, dir); n != 0 {
		t.Fatalf("artifact count after retention = %d, want 0", n)
	}
}

func TestShutdownSweepsPendingJobs(t *testing.T) {
	dir := t.TempDir()
	store, err := scratch.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	viewer := &fakeViewer{}
	m := NewManager(store, viewer, time.Hour, nil)

	if err := m.Materialize(Job{OriginalContent: "a", ModifiedContent: "b", Path: "x.go"}); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if artifactCount(t, dir) != 2 {
		t.Fatalf("expected artifacts before shutdown")
	}

	m.Shutdown()
	if n := artifactCount(t, dir); n != 0 {
		t.Fatalf("artifact count after shutdown = %d, want 0", n)
	}
}

func TestUnifiedViewerRendersDiff(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "orig.txt")
	mod := filepath.Join(dir, "mod.txt")
	if err := os.WriteFile(orig, []byte("line1\nline2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(mod, []byte("line1\nline3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var buf bytes.Buffer
	v := &UnifiedViewer{Out: &buf}
	if err := v.ShowDiff(orig, mod, "sample.txt (Agent Edit)"); err != nil {
		t.Fatalf("ShowDiff: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "sample.txt") {
		t.Errorf("missing title: %q", out)
	}
	if !strings.Contains(out, "-line2") || !strings.Contains(out, "+line3") {
		t.Errorf("missing hunks: %q", out)
	}
}
