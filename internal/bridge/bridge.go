// Package bridge wires the sync core together: editor events feed the
// selection tracker, settled selections and editor-state changes flow to
// the agent through the link client, and inbound agent requests are
// routed to the diff materializer.
package bridge

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getfinn/bridge/internal/config"
	"github.com/getfinn/bridge/internal/diffview"
	"github.com/getfinn/bridge/internal/editor"
	"github.com/getfinn/bridge/internal/link"
	"github.com/getfinn/bridge/internal/protocol"
	"github.com/getfinn/bridge/internal/scratch"
	"github.com/getfinn/bridge/internal/selection"
	"github.com/getfinn/bridge/internal/server"
	"github.com/getfinn/bridge/internal/watcher"
)

// Bridge is the per-session daemon instance. It owns exactly one link
// client, one selection tracker and one diff manager; there are no
// process-wide singletons.
type Bridge struct {
	cfg     *config.Config
	host    editor.Host
	tracker *selection.Tracker
	client  *link.Client
	diffs   *diffview.Manager
	srv     *server.Server
	watcher *watcher.Watcher
}

// New builds a bridge from configuration. host may be nil for headless
// runs (no live selection source, diffs rendered as unified text);
// viewer overrides the comparison view and defaults to the host, or to
// a unified-diff printer when no host is attached.
func New(cfg *config.Config, host editor.Host, viewer diffview.Viewer) (*Bridge, error) {
	store, err := scratch.NewStore(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init scratch store: %w", err)
	}

	b := &Bridge{cfg: cfg, host: host}

	if viewer == nil {
		if host != nil {
			viewer = hostViewer{host}
		} else {
			viewer = &diffview.UnifiedViewer{Out: os.Stdout}
		}
	}
	b.diffs = diffview.NewManager(store, viewer, cfg.Retention(), b.DisplayToUser)

	var transport link.Transport
	switch cfg.Transport {
	case config.TransportHTTP:
		transport = link.NewHTTPTransport(cfg.AgentHTTPURL(), cfg.AgentHealthURL())
	default:
		transport = &link.WebSocketTransport{URL: cfg.AgentWebSocketURL()}
	}
	b.client = link.NewClient(transport, b, link.Options{
		BackoffBase: cfg.BackoffBase(),
		BackoffMax:  cfg.BackoffMax(),
		QueueLimit:  cfg.QueueLimit,
	})

	var live selection.LiveSelection
	if host != nil {
		live = host
	}
	b.tracker = selection.NewTracker(cfg.StabilityWindow(), live, b.onStableSelection)

	b.srv = server.New(cfg.ListenAddr, b.HandleInbound)

	if len(cfg.WorkspaceFolders) > 0 {
		w, err := watcher.New(cfg.WorkspaceFolders, 0, watcher.Callbacks{
			OnDocumentChanged: func(path string) {
				b.HandleEvent(editor.Event{
					Kind: editor.EventDocumentChanged,
					Path: path,
					Time: time.Now(),
				})
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init workspace watcher: %w", err)
		}
		b.watcher = w
	}

	return b, nil
}

// Start brings the subsystems up. A dead agent is not fatal: the link
// client keeps retrying in the background.
func (b *Bridge) Start() error {
	if err := b.srv.Start(); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	if err := b.client.Start(); err != nil {
		log.Printf("⚠️ Agent not reachable yet: %v", err)
	}

	if b.watcher != nil {
		b.watcher.Start()
	}

	log.Println("🚀 Bridge started")
	return nil
}

// Stop tears everything down and sweeps leftover scratch artifacts.
func (b *Bridge) Stop() {
	if b.watcher != nil {
		b.watcher.Stop()
	}
	b.tracker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Listener shutdown: %v", err)
	}

	b.client.Stop()
	b.diffs.Shutdown()
	log.Println("📴 Bridge stopped")
}

// Run starts the bridge and blocks until SIGINT/SIGTERM.
func (b *Bridge) Run() error {
	if err := b.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down...", sig)

	b.Stop()
	return nil
}

// HandleEvent consumes one entry of the host editor's event stream.
// Events are processed in the order the host raised them.
func (b *Bridge) HandleEvent(ev editor.Event) {
	switch ev.Kind {
	case editor.EventSelectionChanged:
		b.tracker.SelectionChanged(ev.Snapshot, ev.Empty, ev.Time)

	case editor.EventActiveEditorChanged:
		// A new editor is a strong "previous selection is done" signal,
		// and the agent needs the fresh context either way.
		b.tracker.CommitSignal(ev.Time)
		b.sendEditorState()

	case editor.EventDocumentChanged:
		b.tracker.CommitSignal(ev.Time)
		b.sendEditorState()

	case editor.EventFocusGained:
		b.tracker.CommitSignal(ev.Time)
	}
}

// onStableSelection forwards one settled selection to the agent.
func (b *Bridge) onStableSelection(snap selection.Snapshot) {
	state, err := b.captureState()
	if err != nil {
		b.DisplayToUser(err.Error())
		return
	}
	state.CursorState = protocol.RangeCursor(
		protocol.Position{Line: snap.AnchorLine, Col: snap.AnchorCol},
		protocol.Position{Line: snap.ActiveLine, Col: snap.ActiveCol},
	)

	if err := b.client.NotifyStableSelection(*state); err != nil {
		log.Printf("⚠️ Failed to report stable selection: %v", err)
	}
}

// sendEditorState pushes a fresh context snapshot to the agent.
func (b *Bridge) sendEditorState() {
	state, err := b.captureState()
	if err != nil {
		// Routine while no file is open; worth a log line, not a popup.
		log.Printf("Skipping editor state update: %v", err)
		return
	}
	if err := b.client.NotifyEditorState(*state); err != nil {
		log.Printf("⚠️ Failed to send editor state: %v", err)
	}
}

// captureState reads the host editor context and shapes it for the
// wire. Produced fresh on every send.
func (b *Bridge) captureState() (*protocol.EditorState, error) {
	if b.host == nil {
		return nil, editor.ErrNoActiveFile
	}
	st, err := b.host.State()
	if err != nil {
		return nil, err
	}

	var cursor protocol.CursorState
	if st.SelectionEmpty {
		cursor = protocol.PositionCursor(st.Selection.ActiveLine, st.Selection.ActiveCol)
	} else {
		cursor = protocol.RangeCursor(
			protocol.Position{Line: st.Selection.AnchorLine, Col: st.Selection.AnchorCol},
			protocol.Position{Line: st.Selection.ActiveLine, Col: st.Selection.ActiveCol},
		)
	}

	return &protocol.EditorState{
		RelativeFilePath: st.RelativePath,
		Language:         st.Language,
		Text:             st.Text,
		CursorState:      cursor,
		WorkspaceFolders: b.cfg.WorkspaceFolders,
	}, nil
}

// SendClipboard forwards the host clipboard text into the agent's chat.
func (b *Bridge) SendClipboard() error {
	if b.host == nil {
		return editor.ErrNoActiveFile
	}
	text, err := b.host.Clipboard()
	if err != nil {
		return fmt.Errorf("failed to read clipboard: %w", err)
	}
	if text == "" {
		return editor.ErrNoSelection
	}

	msg, err := protocol.NewNotification(protocol.MethodDisplayMessage, protocol.DisplayParams(text))
	if err != nil {
		return err
	}
	return b.client.Send(msg)
}

// DisplayToUser surfaces a message on the user-visible channel.
func (b *Bridge) DisplayToUser(text string) {
	log.Printf("💬 %s", text)
}

// hostViewer adapts the editor host to the diff viewer contract.
type hostViewer struct {
	host editor.Host
}

func (v hostViewer) ShowDiff(originalPath, modifiedPath, title string) error {
	return v.host.ShowDiff(originalPath, modifiedPath, title)
}
