// Package protocol defines the message envelope exchanged between the
// bridge and the agent process. Messages are JSON-RPC 2.0 shaped, one
// self-contained JSON object per logical frame, in both directions.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version carried in every envelope.
const Version = "2.0"

// Outbound methods (bridge -> agent).
const (
	MethodDisplayMessage    = "display_message"
	MethodUpdateEditorState = "update_editor_state"
)

// Inbound methods (agent -> bridge).
const (
	MethodFileModification = "file_modification"
)

// File modification variants carried in FileModification.Type.
const (
	ModificationCleanDiffView = "clean_diff_view"
	ModificationFile          = "file_modification"
)

// Message is the wire envelope. ID is present only on requests that
// expect a reply; notifications omit it.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *int64          `json:"id,omitempty"`
}

// Position is a zero-based line/column pair in a document.
type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// Cursor state discriminators.
const (
	CursorPosition = "position"
	CursorRange    = "range"
)

// CursorState is a tagged union: Type "position" fills Position, Type
// "range" fills Start and End.
type CursorState struct {
	Type     string    `json:"type"`
	Position *Position `json:"position,omitempty"`
	Start    *Position `json:"start,omitempty"`
	End      *Position `json:"end,omitempty"`
}

// PositionCursor builds a collapsed cursor state.
func PositionCursor(line, col int) CursorState {
	return CursorState{Type: CursorPosition, Position: &Position{Line: line, Col: col}}
}

// RangeCursor builds a selection cursor state.
func RangeCursor(start, end Position) CursorState {
	return CursorState{Type: CursorRange, Start: &start, End: &end}
}

// EditorState is the params payload of update_editor_state. Produced
// fresh on every send, never persisted.
type EditorState struct {
	RelativeFilePath string      `json:"relative_file_path"`
	Language         string      `json:"language"`
	Text             string      `json:"text"`
	CursorState      CursorState `json:"cursor_state"`
	WorkspaceFolders []string    `json:"workspace_folders"`
}

// FileModification is the params payload of the inbound
// file_modification method.
type FileModification struct {
	Type            string `json:"type"`
	OriginalContent string `json:"originalContent"`
	ModifiedContent string `json:"modifiedContent"`
	FilePath        string `json:"filePath"`
	Title           string `json:"title,omitempty"`
	IsEntireFile    bool   `json:"isEntireFile,omitempty"`
}

// NewNotification builds an envelope without an id.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s params: %w", method, err)
	}
	return &Message{JSONRPC: Version, Method: method, Params: raw}, nil
}

// NewRequest builds an envelope carrying an id, for calls that expect a
// reply from the agent.
func NewRequest(id int64, method string, params any) (*Message, error) {
	msg, err := NewNotification(method, params)
	if err != nil {
		return nil, err
	}
	msg.ID = &id
	return msg, nil
}

// Encode serializes the envelope as one self-contained frame.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Parse decodes one frame into an envelope. A frame that is not valid
// JSON, carries the wrong protocol version, or has no method is a
// protocol error; the caller drops the frame and keeps the connection.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if msg.JSONRPC != Version {
		return nil, fmt.Errorf("unsupported protocol version %q", msg.JSONRPC)
	}
	if msg.Method == "" {
		return nil, fmt.Errorf("frame has no method")
	}
	return &msg, nil
}

// DecodeParams unmarshals the params payload into out.
func (m *Message) DecodeParams(out any) error {
	if len(m.Params) == 0 {
		return fmt.Errorf("%s: missing params", m.Method)
	}
	if err := json.Unmarshal(m.Params, out); err != nil {
		return fmt.Errorf("%s: bad params: %w", m.Method, err)
	}
	return nil
}

// DisplayParams builds the params array for display_message: a single
// user-visible string.
func DisplayParams(text string) []string {
	return []string{text}
}
