package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/rickgao/phone-relay/internal/audit"
	"github.com/rickgao/phone-relay/internal/connection"
	"github.com/rickgao/phone-relay/internal/peer"
	"github.com/rickgao/phone-relay/internal/protocol"
	"github.com/rickgao/phone-relay/internal/router"
)

// WelcomeMessage is the greeting text of permissive relays.
const WelcomeMessage = "Connected to relay"

// Config holds server configuration.
type Config struct {
	Strict         bool // Permissive relays greet peers on connect
	AllowedOrigins []string
	Conn           connection.Config
}

// Server accepts peer connections and serves the status endpoints.
type Server struct {
	cfg      Config
	registry *peer.Registry
	router   *router.Router
	recorder audit.Recorder
	upgrader *websocket.Upgrader
	logger   *slog.Logger

	// Active peer goroutines
	wg      sync.WaitGroup
	mu      sync.Mutex
	closing bool

	// Test hook run between upgrade and registration.
	beforeRegister func()
}

// New creates a Server. A nil recorder discards lifecycle events.
func New(cfg Config, registry *peer.Registry, rt *router.Router, recorder audit.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}

	return &Server{
		cfg:      cfg,
		registry: registry,
		router:   rt,
		recorder: recorder,
		upgrader: connection.NewUpgrader(cfg.AllowedOrigins),
		logger:   logger.With("component", "relay"),
	}
}

// Handler returns the HTTP handler. WebSocket upgrades are accepted on any
// path; plain GETs reach the status endpoints.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// Route websocket requests
	r.NewRoute().HeadersRegexp("Connection", "(?i)upgrade", "Upgrade", "(?i)websocket").
		HandlerFunc(s.ServeWS)

	r.HandleFunc("/", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	return r
}

// ServeWS upgrades the request and serves the peer until its connection ends.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		s.logger.Warn("websocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			"origin", r.Header.Get("Origin"),
			"error", err,
		)
		return
	}

	conn := connection.New(ws, s.cfg.Conn, s.logger)
	if s.beforeRegister != nil {
		s.beforeRegister()
	}
	id := s.registry.Register(conn, conn.RemoteAddr())

	// Shutdown may have taken its peer snapshot before this registration.
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		conn.Close()
	}

	s.logger.Info("peer connected", "peer_id", id, "remote_addr", conn.RemoteAddr())
	s.recorder.Record(audit.Event{
		PeerID:     string(id),
		Kind:       audit.EventConnected,
		RemoteAddr: conn.RemoteAddr(),
	})

	if !s.cfg.Strict {
		if err := conn.Send(protocol.EncodeWelcome(string(id), WelcomeMessage)); err != nil {
			s.logger.Warn("failed to send welcome", "peer_id", id, "error", err)
		}
	}

	reason := "closed by relay"
	for ev := range conn.Events() {
		switch ev.Kind {
		case connection.EventMessage:
			s.router.Handle(id, ev.Data)
		case connection.EventClose:
			reason = "closed by peer"
		case connection.EventError:
			reason = "connection error"
			s.logger.Debug("peer connection error", "peer_id", id, "error", ev.Err)
		}
	}

	s.router.Disconnect(id, reason)
}

// Shutdown stops accepting peers, closes every registered peer and waits
// for their goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	peers := s.registry.Select(peer.All)
	for _, p := range peers {
		p.Transport.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("relay stopped", "closed_peers", len(peers))
		return nil
	case <-ctx.Done():
		s.logger.Warn("relay shutdown timed out", "remaining_peers", s.registry.Len())
		return ctx.Err()
	}
}
