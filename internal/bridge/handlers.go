package bridge

import (
	"log"
	"time"

	"github.com/getfinn/bridge/internal/diffview"
	"github.com/getfinn/bridge/internal/protocol"
)

// Dispatch is the link client's inbound entry point. Per-frame failures
// are logged; they never tear down the connection.
func (b *Bridge) Dispatch(msg *protocol.Message) {
	if err := b.HandleInbound(msg); err != nil {
		log.Printf("⚠️ Inbound %s failed: %v", msg.Method, err)
	}
}

// HandleInbound routes one inbound envelope by method name. It also
// backs the local HTTP listener, whose replies map returned errors to
// statuses. Unknown methods are passed through, not errors.
func (b *Bridge) HandleInbound(msg *protocol.Message) error {
	switch msg.Method {
	case protocol.MethodFileModification:
		return b.handleFileModification(msg)

	case protocol.MethodDisplayMessage:
		return b.handleDisplayMessage(msg)

	default:
		log.Printf("Unknown inbound method %q, ignoring", msg.Method)
		return nil
	}
}

// handleFileModification materializes an agent-proposed edit as a
// comparison view.
func (b *Bridge) handleFileModification(msg *protocol.Message) error {
	var mod protocol.FileModification
	if err := msg.DecodeParams(&mod); err != nil {
		return err
	}

	log.Printf("📝 Agent proposed changes to %s (%s)", mod.FilePath, mod.Type)

	return b.diffs.Materialize(diffview.Job{
		OriginalContent: mod.OriginalContent,
		ModifiedContent: mod.ModifiedContent,
		Path:            mod.FilePath,
		Title:           mod.Title,
		EntireFile:      mod.IsEntireFile,
		CreatedAt:       time.Now(),
	})
}

// handleDisplayMessage shows agent-originated text to the user.
func (b *Bridge) handleDisplayMessage(msg *protocol.Message) error {
	var params []string
	if err := msg.DecodeParams(&params); err != nil {
		return err
	}
	if len(params) > 0 {
		b.DisplayToUser(params[0])
	}
	return nil
}
