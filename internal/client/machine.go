// Package client implements the connection state machine for a single
// chat client: dialing, authenticating, delivering server events to the
// presentation layer, and reconnecting with linear backoff after
// abnormal transport closures.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Shrishabayari/messageHub/internal/chat"
	"nhooyr.io/websocket"
)

// State is the connection state visible to the presentation layer.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateConnected      State = "connected"
	StateReconnecting   State = "reconnecting"
	StateFailed         State = "failed"
)

var (
	// ErrNormalClose marks a transport closure that was requested
	// (logout, page unload) and must not trigger reconnection.
	ErrNormalClose = errors.New("transport closed normally")

	// ErrAuthRejected marks a server-side authentication rejection.
	// Retrying identically would repeat the failure, so the machine
	// returns to Disconnected and waits for fresh user input.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrNotConnected is returned for commands that need a live
	// connection (join, leave, typing, createRoom).
	ErrNotConnected = errors.New("not connected")
)

const (
	defaultRetryInterval = 3 * time.Second
	defaultMaxAttempts   = 5
	dialTimeout          = 10 * time.Second
	writeTimeout         = 5 * time.Second
	eventBufferSize      = 256
)

// Transport is a minimal bidirectional connection. The production
// implementation wraps a WebSocket; tests substitute in-memory fakes.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// DialFunc opens a new Transport.
type DialFunc func(ctx context.Context) (Transport, error)

// Status is a connection status change.
type Status struct {
	State   State
	Attempt int
	Err     error
}

// Event is one item on the stream handed to the presentation layer:
// either a parsed server event or a connection status change.
type Event struct {
	Server *chat.Event
	Status *Status
}

// Options configures a Conn.
type Options struct {
	URL      string
	Username string

	// RetryInterval is the backoff unit: retry n waits n × RetryInterval.
	RetryInterval time.Duration
	// MaxAttempts bounds consecutive reconnection attempts before the
	// machine gives up and enters Failed.
	MaxAttempts int
	// Dial overrides the default WebSocket dialer for URL.
	Dial DialFunc
}

// Conn is a client connection with automatic reconnection. At most one
// retry timer is active at any time, and a successful authentication
// always resets the attempt counter.
type Conn struct {
	opts Options

	mu         sync.Mutex
	state      State
	attempt    int
	transport  Transport
	retryTimer *time.Timer
	closed     bool
	queue      eventQueue

	events chan Event
}

// New creates a Conn in the Disconnected state.
func New(opts Options) *Conn {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Dial == nil {
		opts.Dial = wsDialer(opts.URL)
	}
	return &Conn{
		opts:   opts,
		state:  StateDisconnected,
		events: make(chan Event, eventBufferSize),
	}
}

// Events returns the stream of server events and status changes.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials, authenticates with the configured username, and starts
// the read loop. An authentication rejection is returned to the caller
// and does not trigger reconnection.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect: invalid state %s", c.state)
	}
	c.closed = false
	c.setStateLocked(StateConnecting, 0, nil)
	c.mu.Unlock()

	tr, err := c.opts.Dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected, 0, err)
		c.mu.Unlock()
		return err
	}

	if err := c.authenticate(ctx, tr); err != nil {
		tr.Close()
		c.mu.Lock()
		c.setStateLocked(StateDisconnected, 0, err)
		c.mu.Unlock()
		return err
	}

	c.enterConnected(tr)
	return nil
}

// Close performs a normal closure: the retry timer is cancelled, the
// transport is shut down, and no reconnection is attempted.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	tr := c.transport
	c.transport = nil
	if c.state != StateDisconnected && c.state != StateFailed {
		c.setStateLocked(StateDisconnected, 0, nil)
	}
	c.mu.Unlock()

	if tr != nil {
		return tr.Close()
	}
	return nil
}

// Send transmits a chat message, queueing it FIFO while the connection
// is down; the queue is flushed before new input once reconnected.
func (c *Conn) Send(room, content string) error {
	ev := chat.Event{Type: chat.TypeMessage, Username: c.opts.Username, Room: room, Content: content}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.transport == nil {
		c.queue.push(ev)
		return nil
	}
	return c.writeLocked(ev)
}

// Join requests membership in a room.
func (c *Conn) Join(room string) error {
	return c.command(chat.Event{Type: chat.TypeJoinRoom, Username: c.opts.Username, Room: room})
}

// Leave leaves a room.
func (c *Conn) Leave(room string) error {
	return c.command(chat.Event{Type: chat.TypeLeaveRoom, Username: c.opts.Username, Room: room})
}

// SetTyping signals a typing or stopTyping indicator.
func (c *Conn) SetTyping(room string, typing bool) error {
	typ := chat.TypeTyping
	if !typing {
		typ = chat.TypeStopTyping
	}
	return c.command(chat.Event{Type: typ, Username: c.opts.Username, Room: room})
}

// CreateRoom requests creation of a new room.
func (c *Conn) CreateRoom(roomID, roomName string) error {
	return c.command(chat.Event{Type: chat.TypeCreateRoom, RoomID: roomID, RoomName: roomName, Creator: c.opts.Username})
}

// command writes an event that only makes sense on a live connection.
func (c *Conn) command(ev chat.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.transport == nil {
		return ErrNotConnected
	}
	return c.writeLocked(ev)
}

// QueuedMessages returns the number of messages waiting for reconnection.
func (c *Conn) QueuedMessages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// authenticate sends the auth request and waits for the verdict.
func (c *Conn) authenticate(ctx context.Context, tr Transport) error {
	c.mu.Lock()
	c.setStateLocked(StateAuthenticating, c.attempt, nil)
	c.mu.Unlock()

	auth, err := json.Marshal(chat.Event{Type: chat.TypeAuth, Username: c.opts.Username})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	err = tr.Write(writeCtx, auth)
	cancel()
	if err != nil {
		return err
	}

	data, err := tr.Read(ctx)
	if err != nil {
		return err
	}
	var ev chat.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	switch ev.Type {
	case chat.TypeAuthSuccess:
		return nil
	case chat.TypeError:
		return fmt.Errorf("%w: %s", ErrAuthRejected, ev.Message)
	default:
		return fmt.Errorf("unexpected reply %q during authentication", ev.Type)
	}
}

// enterConnected installs the transport, resets the attempt counter,
// flushes the queue FIFO before accepting new input, and starts the
// read loop. A Close that raced the dial wins: the fresh transport is
// torn down instead of installed.
func (c *Conn) enterConnected(tr Transport) {
	c.mu.Lock()
	if c.closed {
		if c.state != StateDisconnected && c.state != StateFailed {
			c.setStateLocked(StateDisconnected, 0, nil)
		}
		c.mu.Unlock()
		tr.Close()
		return
	}
	c.transport = tr
	c.attempt = 0
	c.setStateLocked(StateConnected, 0, nil)
	for _, ev := range c.queue.drain() {
		if err := c.writeLocked(ev); err != nil {
			log.Printf("client: queue flush failed: %v", err)
			break
		}
	}
	c.mu.Unlock()

	go c.readLoop(tr)
}

// readLoop forwards server events until the transport fails or closes.
func (c *Conn) readLoop(tr Transport) {
	for {
		data, err := tr.Read(context.Background())
		if err != nil {
			c.handleReadError(tr, err)
			return
		}
		var ev chat.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		c.emit(Event{Server: &ev})
	}
}

// handleReadError decides between a clean stop and reconnection.
func (c *Conn) handleReadError(tr Transport, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != tr {
		// A newer connection has taken over.
		return
	}
	c.transport = nil
	if c.closed || errors.Is(err, ErrNormalClose) {
		c.setStateLocked(StateDisconnected, 0, nil)
		return
	}
	c.scheduleRetryLocked(err)
}

// scheduleRetryLocked arms the single retry timer with linear backoff,
// or gives up once the attempt limit is reached. Callers hold c.mu.
func (c *Conn) scheduleRetryLocked(cause error) {
	if c.retryTimer != nil {
		return
	}
	c.attempt++
	if c.attempt > c.opts.MaxAttempts {
		c.setStateLocked(StateFailed, c.opts.MaxAttempts, cause)
		return
	}
	c.setStateLocked(StateReconnecting, c.attempt, cause)
	c.retryTimer = time.AfterFunc(retryDelay(c.opts.RetryInterval, c.attempt), c.retry)
}

// retryDelay is the linear backoff: attempt n waits n × interval.
func retryDelay(interval time.Duration, attempt int) time.Duration {
	return time.Duration(attempt) * interval
}

// retry runs one reconnection attempt.
func (c *Conn) retry() {
	c.mu.Lock()
	c.retryTimer = nil
	if c.closed || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnecting, c.attempt, nil)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	tr, err := c.opts.Dial(ctx)
	cancel()
	if err != nil {
		c.mu.Lock()
		if !c.closed {
			c.scheduleRetryLocked(err)
		}
		c.mu.Unlock()
		return
	}

	if err := c.authenticate(context.Background(), tr); err != nil {
		tr.Close()
		c.mu.Lock()
		if errors.Is(err, ErrAuthRejected) {
			// The name is no longer valid; needs fresh user input.
			c.setStateLocked(StateDisconnected, 0, err)
		} else if !c.closed {
			c.scheduleRetryLocked(err)
		}
		c.mu.Unlock()
		return
	}

	c.enterConnected(tr)
}

// writeLocked writes one event on the current transport. Callers hold c.mu.
func (c *Conn) writeLocked(ev chat.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.transport.Write(ctx, data)
}

// setStateLocked updates the state and emits a status event. Callers hold c.mu.
func (c *Conn) setStateLocked(state State, attempt int, err error) {
	c.state = state
	c.emit(Event{Status: &Status{State: state, Attempt: attempt, Err: err}})
}

// emit delivers to the event stream without ever blocking the machine.
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Printf("client: event buffer full, dropping event")
	}
}

// wsDialer returns the production DialFunc for a WebSocket URL.
func wsDialer(url string) DialFunc {
	return func(ctx context.Context) (Transport, error) {
		conn, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return &wsTransport{conn: conn}, nil
	}
}

// wsTransport adapts a WebSocket connection to the Transport interface,
// mapping requested closures to ErrNormalClose.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, ErrNormalClose
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
