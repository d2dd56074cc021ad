package ws

import (
	"context"
	"log"
	"net"
	"net/http"

	"github.com/Shrishabayari/messageHub/internal/chat"
	"github.com/Shrishabayari/messageHub/internal/ratelimit"
	"nhooyr.io/websocket"
)

// Handler upgrades HTTP requests to WebSocket connections and pumps
// inbound frames into the broker.
type Handler struct {
	broker  *chat.Broker
	conns   *ConnManager
	limiter *ratelimit.Limiter
}

// NewHandler creates a Handler. limiter may be nil to disable upgrade
// rate limiting.
func NewHandler(broker *chat.Broker, conns *ConnManager, limiter *ratelimit.Limiter) *Handler {
	return &Handler{
		broker:  broker,
		conns:   conns,
		limiter: limiter,
	}
}

// ServeHTTP accepts the WebSocket and runs the connection's read loop
// until the peer goes away. A read error of any kind is treated as a
// disconnect: the broker performs the implicit leave and releases the
// display name.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(remoteIP(r)) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		log.Printf("ws: accept error: %v", err)
		return
	}

	client := &Client{conn: conn}
	connCtx := h.conns.Add(client)
	h.broker.Register(client)
	defer func() {
		h.broker.Disconnect(client)
		h.conns.Remove(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	h.readLoop(r.Context(), connCtx, client)
}

// readLoop reads frames until the connection closes or the manager
// cancels connCtx, handing each frame to the broker.
func (h *Handler) readLoop(ctx context.Context, connCtx context.Context, client *Client) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, data, err := client.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancelled.
			return
		}
		h.broker.Handle(client, data)
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
