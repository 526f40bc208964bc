package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zk-armor/openclaw/internal/bus"
	"github.com/zk-armor/openclaw/internal/config"
)

// Server streams system events (reactions, edits) to operator WebSocket
// clients. Events arrive already deduplicated by the bus.
type Server struct {
	cfg        config.GatewayConfig
	bus        *bus.MessageBus
	upgrader   websocket.Upgrader
	clients    map[string]*client
	mu         sync.RWMutex
	httpServer *http.Server
}

type client struct {
	conn *websocket.Conn
	send chan bus.SystemEvent
}

// NewServer creates the event-stream server.
func NewServer(cfg config.GatewayConfig, msgBus *bus.MessageBus) *Server {
	s := &Server{
		cfg:     cfg,
		bus:     msgBus,
		clients: make(map[string]*client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Start begins serving and subscribes to bus system events.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.bus.Subscribe("gateway-server", s.broadcast)

	go func() {
		slog.Info("gateway event stream listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("gateway server error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server and drops all clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.bus.Unsubscribe("gateway-server")

	s.mu.Lock()
	for id, c := range s.clients {
		close(c.send)
		c.conn.Close()
		delete(s.clients, id)
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	if r.Header.Get("Authorization") == "Bearer "+s.cfg.Token {
		return true
	}
	return r.URL.Query().Get("token") == s.cfg.Token
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	c := &client{conn: conn, send: make(chan bus.SystemEvent, 64)}

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()
	slog.Debug("event stream client connected", "client_id", id)

	go s.writeLoop(id, c)
	go s.readLoop(id, c)
}

func (s *Server) writeLoop(id string, c *client) {
	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			slog.Debug("event stream write failed, dropping client",
				"client_id", id, "error", err)
			s.dropClient(id)
			return
		}
	}
}

// readLoop drains the connection so pings/closes are processed.
func (s *Server) readLoop(id string, c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.dropClient(id)
			return
		}
	}
}

func (s *Server) dropClient(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		delete(s.clients, id)
		close(c.send)
		c.conn.Close()
	}
}

// broadcast fans one system event out to all connected clients.
// Slow clients lose events rather than blocking the bus.
func (s *Server) broadcast(ev bus.SystemEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.clients {
		select {
		case c.send <- ev:
		default:
			slog.Debug("event stream client backed up, dropping event", "client_id", id)
		}
	}
}
