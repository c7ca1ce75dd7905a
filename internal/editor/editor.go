// Package editor defines the contracts the bridge consumes from the host
// editor. The host side (extension glue, command palette, terminal) lives
// outside this repository; the bridge only sees these interfaces and the
// event stream.
package editor

import (
	"errors"
	"time"

	"github.com/getfinn/bridge/internal/selection"
)

// User-visible failures raised while reading editor context.
var (
	ErrNoActiveFile = errors.New("no active file")
	ErrNoSelection  = errors.New("no code selected")
)

// State is the editor context captured fresh for every send.
type State struct {
	RelativePath   string
	Language       string
	Text           string
	Selection      selection.Snapshot
	SelectionEmpty bool
}

// Host is the editor-side collaborator.
type Host interface {
	// Selection reports the live selection; ok is false when no editor
	// is active. Satisfies selection.LiveSelection.
	Selection() (snap selection.Snapshot, empty bool, ok bool)

	// State captures the active editor's context. Returns
	// ErrNoActiveFile when nothing is open.
	State() (*State, error)

	// ShowDiff opens the host's side-by-side comparison view over two
	// on-disk content locations.
	ShowDiff(originalPath, modifiedPath, title string) error

	// Clipboard reads the host clipboard text.
	Clipboard() (string, error)
}

// EventKind discriminates host editor events.
type EventKind int

const (
	EventSelectionChanged EventKind = iota
	EventActiveEditorChanged
	EventDocumentChanged
	EventFocusGained
)

// Event is one entry of the host's editor-event stream. Events for a
// given editor are delivered in the order the host raised them.
type Event struct {
	Kind     EventKind
	Snapshot selection.Snapshot
	Empty    bool
	Path     string
	Time     time.Time
}
