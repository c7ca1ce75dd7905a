// Package link owns the logical connection between the bridge and the
// agent process: connection establishment, retry with backoff, message
// framing and inbound dispatch.
package link

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getfinn/bridge/internal/protocol"
)

// State is the connection state, owned exclusively by one Client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Router dispatches inbound messages by method name. file_modification
// frames reach the diff materializer through it; unknown methods are
// passed through and are not errors.
type Router interface {
	Dispatch(msg *protocol.Message)
}

// Options tunes reconnect and queueing behavior. Zero values select the
// defaults.
type Options struct {
	BackoffBase time.Duration // first retry delay, default 1s
	BackoffMax  time.Duration // delay cap, default 30s
	QueueLimit  int           // outbound queue bound, default 32
}

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffMax  = 30 * time.Second
	defaultQueueLimit  = 32
)

// Client maintains the single logical connection to the agent. Sending
// while disconnected queues the message and starts a connection attempt;
// the queue is bounded and drops its oldest entry with a warning rather
// than growing silently.
type Client struct {
	transport Transport
	router    Router

	backoffBase time.Duration
	backoffMax  time.Duration
	queueLimit  int

	// Main context, cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex // guards state and queue
	state State
	queue []*protocol.Message

	connMu       sync.Mutex  // serializes connection transitions
	reconnecting atomic.Bool // at most one reconnect loop in flight
	delay        time.Duration

	pumpCtx    context.Context
	pumpCancel context.CancelFunc
	pumpWg     sync.WaitGroup
}

// NewClient creates a client over the given transport. router may be nil
// when inbound traffic is not expected (pure one-shot deployments).
func NewClient(transport Transport, router Router, opts Options) *Client {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	if opts.QueueLimit <= 0 {
		opts.QueueLimit = defaultQueueLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		transport:   transport,
		router:      router,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		queueLimit:  opts.QueueLimit,
		ctx:         ctx,
		cancel:      cancel,
		delay:       opts.BackoffBase,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start attempts to open the connection. On failure the client falls
// back to Disconnected and a reconnect is scheduled; the error is
// returned so callers can log it.
func (c *Client) Start() error {
	c.connMu.Lock()
	err := c.connectLocked()
	c.connMu.Unlock()

	if err != nil {
		c.triggerReconnect(fmt.Sprintf("initial connect failed: %v", err))
	}
	return err
}

// connectLocked performs one connection attempt (connMu held).
func (c *Client) connectLocked() error {
	select {
	case <-c.ctx.Done():
		return fmt.Errorf("client stopped")
	default:
	}

	// Tear down any previous pump before reusing the transport.
	if c.pumpCancel != nil {
		c.pumpCancel()
		c.pumpWg.Wait()
	}

	c.setState(Connecting)

	if err := c.transport.Open(c.ctx); err != nil {
		c.setState(Disconnected)
		return err
	}

	c.setState(Open)
	c.delay = c.backoffBase

	c.pumpCtx, c.pumpCancel = context.WithCancel(c.ctx)
	c.pumpWg.Add(1)
	go c.readPump(c.pumpCtx)

	c.flushQueue()
	return nil
}

// flushQueue delivers messages queued while disconnected (connMu held,
// state Open). On a send failure the remainder stays queued; the write
// path handles the disconnect.
func (c *Client) flushQueue() {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	for i, msg := range pending {
		if err := c.writeFrame(msg); err != nil {
			log.Printf("⚠️ Flush stopped after %d message(s): %v", i, err)
			c.mu.Lock()
			c.queue = append(pending[i:], c.queue...)
			c.mu.Unlock()
			return
		}
	}
	if len(pending) > 0 {
		log.Printf("📤 Flushed %d queued message(s)", len(pending))
	}
}

// Send delivers one envelope. From Disconnected it queues the message
// and implicitly starts a connection attempt; the message goes out once
// the connection opens.
func (c *Client) Send(msg *protocol.Message) error {
	select {
	case <-c.ctx.Done():
		return fmt.Errorf("client stopped")
	default:
	}

	c.mu.Lock()
	if c.state == Closing {
		c.mu.Unlock()
		return fmt.Errorf("client stopped")
	}
	if c.state != Open {
		c.enqueueLocked(msg)
		needConnect := c.state == Disconnected
		c.mu.Unlock()
		if needConnect {
			c.triggerReconnect("send while disconnected")
		}
		return nil
	}
	c.mu.Unlock()

	if err := c.writeFrame(msg); err != nil {
		c.mu.Lock()
		if c.state == Closing {
			c.mu.Unlock()
			return err
		}
		// Keep the message: it goes out after reconnection.
		c.enqueueLocked(msg)
		c.setStateLocked(Disconnected)
		c.mu.Unlock()
		c.triggerReconnect(fmt.Sprintf("write failed: %v", err))
		return err
	}
	return nil
}

// enqueueLocked appends to the bounded queue (mu held), dropping the
// oldest entry when full.
func (c *Client) enqueueLocked(msg *protocol.Message) {
	if len(c.queue) >= c.queueLimit {
		dropped := c.queue[0]
		c.queue = c.queue[1:]
		log.Printf("⚠️ Outbound queue full (%d), dropping oldest %s message", c.queueLimit, dropped.Method)
	}
	c.queue = append(c.queue, msg)
}

// writeFrame serializes and pushes one envelope.
func (c *Client) writeFrame(msg *protocol.Message) error {
	frame, err := msg.Encode()
	if err != nil {
		return err
	}
	return c.transport.Send(c.ctx, frame)
}

// readPump reads inbound frames until the connection drops. Parse
// failures are logged and the frame discarded; they never tear down the
// connection.
func (c *Client) readPump(ctx context.Context) {
	defer c.pumpWg.Done()

	for {
		frame, err := c.transport.Receive(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return // normal shutdown or reconnect
			default:
			}
			log.Printf("⚠️ Connection read error: %v", err)
			c.mu.Lock()
			c.setStateLocked(Disconnected)
			c.mu.Unlock()
			c.triggerReconnect("read pump exited")
			return
		}

		msg, err := protocol.Parse(frame)
		if err != nil {
			log.Printf("⚠️ Dropping malformed frame: %v", err)
			continue
		}
		if c.router != nil {
			c.router.Dispatch(msg)
		}
	}
}

// triggerReconnect starts the single background reconnect loop unless
// one is already running or the client is stopping.
func (c *Client) triggerReconnect(reason string) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}

	if !c.reconnecting.CompareAndSwap(false, true) {
		return // already in flight
	}

	log.Printf("🔌 Disconnected from agent (%s), reconnecting...", reason)
	go c.reconnectLoop()
}

// reconnectLoop retries the connection with capped exponential backoff.
// Every attempt, the first included, waits the current delay before
// dialing; without that, an agent that accepts and immediately drops
// the connection would drive a tight reconnect spin. Each failure grows
// the delay by 1.5x up to the cap; a successful open resets it.
func (c *Client) reconnectLoop() {
	attempt := 0
	for {
		c.connMu.Lock()
		delay := c.delay
		c.connMu.Unlock()

		select {
		case <-c.ctx.Done():
			c.reconnecting.Store(false)
			return
		case <-time.After(delay):
		}

		attempt++

		c.connMu.Lock()
		err := c.connectLocked()
		c.connMu.Unlock()

		if err == nil {
			log.Printf("✅ Reconnected to agent after %d attempt(s)", attempt)
			c.reconnecting.Store(false)
			// The fresh connection can be gone already if the agent
			// drops right after accepting. The pump's own trigger may
			// have lost the race against our flag, so re-check here.
			if c.State() != Open {
				c.triggerReconnect("connection dropped immediately")
			}
			return
		}

		if attempt <= 3 || attempt%5 == 0 {
			log.Printf("Reconnection attempt %d failed: %v", attempt, err)
		}

		c.connMu.Lock()
		c.delay = time.Duration(math.Min(float64(c.delay)*1.5, float64(c.backoffMax)))
		c.connMu.Unlock()
	}
}

// NotifyEditorState reports fresh editor context to the agent.
func (c *Client) NotifyEditorState(state protocol.EditorState) error {
	msg, err := protocol.NewNotification(protocol.MethodUpdateEditorState, state)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// NotifyStableSelection reports a settled selection. On the wire it is
// an editor-state update whose cursor state carries the range.
func (c *Client) NotifyStableSelection(state protocol.EditorState) error {
	return c.NotifyEditorState(state)
}

// Stop closes the connection, cancels any pending reconnect and drops
// queued messages.
func (c *Client) Stop() {
	c.mu.Lock()
	c.setStateLocked(Closing)
	c.queue = nil
	c.mu.Unlock()

	c.cancel()

	c.connMu.Lock()
	if c.pumpCancel != nil {
		c.pumpCancel()
	}
	c.connMu.Unlock()

	if err := c.transport.Close(); err != nil {
		log.Printf("⚠️ Transport close: %v", err)
	}
	c.pumpWg.Wait()

	c.mu.Lock()
	c.setStateLocked(Disconnected)
	c.mu.Unlock()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.setStateLocked(s)
	c.mu.Unlock()
}

func (c *Client) setStateLocked(s State) {
	c.state = s
}
