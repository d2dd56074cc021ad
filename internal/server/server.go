// Package server wires the room registry, message history, broker, and
// WebSocket transport into one HTTP server.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/Shrishabayari/messageHub/internal/chat"
	"github.com/Shrishabayari/messageHub/internal/config"
	"github.com/Shrishabayari/messageHub/internal/message"
	"github.com/Shrishabayari/messageHub/internal/ratelimit"
	"github.com/Shrishabayari/messageHub/internal/room"
	"github.com/Shrishabayari/messageHub/internal/ws"
	"github.com/redis/go-redis/v9"
)

// Server is the chat relay's HTTP server.
type Server struct {
	addr     string
	mux      *http.ServeMux
	httpSrv  *http.Server
	registry *room.Registry
	broker   *chat.Broker
	conns    *ws.ConnManager
}

// Option configures a Server.
type Option func(*settings)

type settings struct {
	cfg   config.Config
	redis redis.Cmdable
}

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithRedis backs room history with Redis instead of the in-memory store.
func WithRedis(client redis.Cmdable) Option {
	return func(s *settings) { s.redis = client }
}

// New creates a Server listening on addr, seeding the configured
// default rooms.
func New(addr string, opts ...Option) *Server {
	st := settings{cfg: config.Default()}
	for _, opt := range opts {
		opt(&st)
	}

	var history message.History
	if st.redis != nil {
		history = message.NewRedisStore(st.redis, st.cfg.HistorySize)
	} else {
		history = message.NewStore(st.cfg.HistorySize)
	}

	registry := room.NewRegistry()
	for _, rc := range st.cfg.DefaultRooms {
		if _, err := registry.Create(rc.ID, rc.Name); err != nil {
			log.Printf("server: skipping default room %q: %v", rc.ID, err)
		}
	}

	broker := chat.NewBroker(registry, history,
		chat.WithReplay(st.cfg.HistoryReplay),
		chat.WithTypingTTL(time.Duration(st.cfg.TypingTTL)),
	)
	conns := ws.NewConnManager()
	limiter := ratelimit.New(st.cfg.UpgradeLimit, time.Duration(st.cfg.UpgradeWindow))

	s := &Server{
		addr:     addr,
		mux:      http.NewServeMux(),
		registry: registry,
		broker:   broker,
		conns:    conns,
	}
	s.httpSrv = &http.Server{Addr: addr, Handler: s.mux}
	s.routes(ws.NewHandler(broker, conns, limiter))
	return s
}

// Handler returns the server's HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	return s.httpSrv.ListenAndServe()
}

// Shutdown closes all WebSocket connections and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.conns.Shutdown()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes(wsHandler http.Handler) {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.Handle("GET /ws", wsHandler)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.registry.List())
}
