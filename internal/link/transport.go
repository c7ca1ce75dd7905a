package link

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/getfinn/bridge/internal/protocol"
)

const (
	// maxFrameSize is the maximum inbound frame size allowed (512 KB).
	maxFrameSize = 512 * 1024

	// writeTimeout is the max time to push one frame.
	writeTimeout = 10 * time.Second

	// requestTimeout bounds one-shot HTTP exchanges.
	requestTimeout = 3 * time.Second

	// healthTimeout bounds the availability probe.
	healthTimeout = 300 * time.Millisecond
)

// Transport carries self-contained frames between bridge and agent. The
// duplex WebSocket transport is the canonical form; the HTTP transport is
// the degenerate single-shot form where the connection is held only for
// one exchange.
type Transport interface {
	Open(ctx context.Context) error
	Send(ctx context.Context, frame []byte) error
	// Receive blocks until an inbound frame arrives or the transport
	// closes.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// WebSocketTransport is a long-lived bidirectional connection; either
// side may send at any time.
type WebSocketTransport struct {
	URL string

	mu   sync.Mutex
	conn *websocket.Conn
}

// Open dials the agent endpoint.
func (t *WebSocketTransport) Open(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, t.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", t.URL, err)
	}
	conn.SetReadLimit(maxFrameSize)

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

// Send writes one frame as a text message.
func (t *WebSocketTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

// Receive reads one frame.
func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	_, data, err := conn.Read(ctx)
	return data, err
}

// Close shuts the connection down cleanly.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "client closed")
}

// HTTPTransport POSTs each frame to the agent and reads one response per
// exchange. When a response body itself carries an envelope, it is
// surfaced through Receive as an inbound frame.
type HTTPTransport struct {
	URL       string
	HealthURL string

	client    *http.Client
	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewHTTPTransport creates a one-shot transport for the given agent URL.
// healthURL may be empty to skip the availability probe.
func NewHTTPTransport(url, healthURL string) *HTTPTransport {
	return &HTTPTransport{
		URL:       url,
		HealthURL: healthURL,
		client:    &http.Client{Timeout: requestTimeout},
		inbox:     make(chan []byte, 16),
		closed:    make(chan struct{}),
	}
}

// Open probes the agent's health endpoint so a dead agent is detected
// before messages start queueing against it.
func (t *HTTPTransport) Open(ctx context.Context) error {
	if t.HealthURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.HealthURL, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent not reachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent health check returned %s", resp.Status)
	}
	return nil
}

// Send POSTs one frame and drains the single response.
func (t *HTTPTransport) Send(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(frame))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send to agent: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return fmt.Errorf("failed to read agent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("agent returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	// A response that is itself an envelope counts as inbound traffic.
	if msg, perr := protocol.Parse(body); perr == nil && msg.Method != "" {
		select {
		case t.inbox <- body:
		default:
			// Inbox full; the response is dropped, not the connection.
		}
	}
	return nil
}

// Receive delivers enveloped responses collected by Send.
func (t *HTTPTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-t.inbox:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, net.ErrClosed
	}
}

// Close stops Receive. Idempotent.
func (t *HTTPTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}
