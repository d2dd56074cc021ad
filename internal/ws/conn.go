package ws

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const (
	// sendBufferSize is the number of outbound frames queued per client.
	// A client whose buffer stays full is treated as disconnected.
	sendBufferSize = 32

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second
)

// Client is one WebSocket connection. It implements chat.Sender: Send
// queues a frame without blocking, Close tears the socket down.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	closed atomic.Bool
}

// Send queues a frame for delivery. It returns false when the client is
// closed or its buffer is full (slow consumer).
func (c *Client) Send(data []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close marks the client dead and closes the socket. Safe to call more
// than once.
func (c *Client) Close(reason string) {
	if c.closed.CompareAndSwap(false, true) {
		c.conn.Close(websocket.StatusPolicyViolation, reason)
	}
}

// ConnManager tracks active connections and runs one write pump per
// client. Its Shutdown closes every socket for graceful server exit.
type ConnManager struct {
	mu      sync.Mutex
	clients map[*Client]context.CancelFunc
	closed  bool
}

// NewConnManager creates an empty connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		clients: make(map[*Client]context.CancelFunc),
	}
}

// Add registers a client and starts its write pump. The returned context
// is cancelled when the client is removed or the manager shuts down.
func (cm *ConnManager) Add(c *Client) context.Context {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		c.closed.Store(true)
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	c.send = make(chan []byte, sendBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	cm.clients[c] = cancel

	go cm.writePump(ctx, c)
	return ctx
}

// Remove stops a client's write pump and forgets it.
func (cm *ConnManager) Remove(c *Client) {
	cm.mu.Lock()
	cancel, ok := cm.clients[c]
	if ok {
		delete(cm.clients, c)
	}
	cm.mu.Unlock()

	if ok {
		c.closed.Store(true)
		cancel()
	}
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// Shutdown closes every connection with StatusGoingAway and stops all
// write pumps. New Adds are rejected afterwards.
func (cm *ConnManager) Shutdown() {
	cm.mu.Lock()
	cm.closed = true
	clients := make(map[*Client]context.CancelFunc, len(cm.clients))
	for c, cancel := range cm.clients {
		clients[c] = cancel
	}
	cm.clients = make(map[*Client]context.CancelFunc)
	cm.mu.Unlock()

	for c, cancel := range clients {
		c.closed.Store(true)
		cancel()
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// writePump drains the client's send channel, writing each frame to the
// socket. It exits when ctx is cancelled or a write fails.
func (cm *ConnManager) writePump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Printf("ws: write failed: %v", err)
				c.closed.Store(true)
				return
			}
		}
	}
}
