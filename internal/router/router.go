// Package router dispatches inbound peer frames by kind.
//
// The Router owns authentication handling and the broadcast groups:
// phoneData from sources goes to controllers, commands from controllers go
// to sources, and changes of the aggregate source flag go to controllers.
package router

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/rickgao/phone-relay/internal/audit"
	"github.com/rickgao/phone-relay/internal/auth"
	"github.com/rickgao/phone-relay/internal/peer"
	"github.com/rickgao/phone-relay/internal/protocol"
)

// Router routes frames between peers in a Registry.
type Router struct {
	registry *peer.Registry
	gate     *auth.Gate
	recorder audit.Recorder
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats

	// Held across flag reconciliation and the phone_status sends it
	// causes, so controllers observe flag changes in order.
	statusMu sync.Mutex
}

// New creates a Router. A nil recorder discards lifecycle events.
func New(registry *peer.Registry, gate *auth.Gate, recorder audit.Recorder, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}

	return &Router{
		registry: registry,
		gate:     gate,
		recorder: recorder,
		logger:   logger.With("component", "router"),
	}
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Handle processes one inbound frame from a peer. Frames of a single peer
// must be handed in arrival order by a single goroutine.
func (r *Router) Handle(id peer.ID, data []byte) {
	r.count(func(s *Stats) { s.MessagesReceived++ })

	p, ok := r.registry.Get(id)
	if !ok {
		// Removed while its frames were still queued.
		r.logger.Debug("frame from unregistered peer", "peer_id", id)
		return
	}

	in, err := protocol.Decode(data)
	if err != nil {
		r.logger.Warn("failed to decode frame", "peer_id", id, "error", err)
		r.count(func(s *Stats) { s.ParseErrors++ })
		return
	}

	if !r.gate.Strict() && in.ClientType != "" {
		p = r.classify(p, in.ClientType)
	}

	if a, ok := in.Msg.(protocol.Auth); ok {
		r.handleAuth(p, a)
		return
	}

	if !r.admitted(p, in.Msg) {
		r.logger.Debug("discarding frame from unauthenticated peer",
			"peer_id", id,
			"type", in.Msg.Kind(),
		)
		r.count(func(s *Stats) { s.Unauthenticated++ })
		return
	}

	switch msg := in.Msg.(type) {
	case protocol.PhoneData:
		r.routePhoneData(p, msg)
	case protocol.Command:
		r.routeCommand(p, msg)
	case protocol.Ping:
		r.reply(p, protocol.EncodePong())
		r.count(func(s *Stats) { s.MessagesRouted++ })
	case protocol.Pong:
		// Answer to a heartbeat; liveness is judged by send success.
	case protocol.Unknown:
		r.logger.Warn("unknown message type", "peer_id", id, "type", msg.Type)
		r.count(func(s *Stats) { s.UnknownMessages++ })
	}
}

// admitted reports whether a non-auth frame from p may be processed.
func (r *Router) admitted(p peer.Peer, msg protocol.Message) bool {
	if r.gate.Strict() {
		return p.Authenticated
	}
	if _, ok := msg.(protocol.Ping); ok {
		return true
	}
	return p.Role != peer.RoleUnknown
}

// classify assigns a role from a self-declared clientType (permissive mode).
func (r *Router) classify(p peer.Peer, clientType string) peer.Peer {
	if p.Role != peer.RoleUnknown {
		return p
	}
	role, ok := peer.RoleFromClientType(clientType)
	if !ok {
		return p
	}

	updated, err := r.registry.Authenticate(p.ID, role)
	if err != nil {
		r.logger.Debug("failed to classify peer", "peer_id", p.ID, "error", err)
		return p
	}

	r.logger.Info("peer classified", "peer_id", p.ID, "role", role)
	r.recordAuthenticated(updated)
	r.onAuthenticated(updated)
	return updated
}

func (r *Router) handleAuth(p peer.Peer, msg protocol.Auth) {
	role, err := r.gate.Verify(msg.ClientType, msg.Password)

	if !r.gate.Strict() {
		if err != nil {
			r.reply(p, protocol.EncodeAuthResult(false, auth.MessageUnknownType))
			return
		}
		// classify has already run for this frame.
		r.reply(p, protocol.EncodeAuthResult(true, auth.MessageNotRequired))
		return
	}

	if p.Authenticated {
		// Role is fixed; a repeated auth only gets an answer.
		ok := err == nil && role == p.Role
		msgText := auth.MessageSuccess
		if !ok {
			msgText = auth.MessageFailure
		}
		r.reply(p, protocol.EncodeAuthResult(ok, msgText))
		return
	}

	if err != nil {
		r.rejectAuth(p, msg.ClientType, err)
		return
	}

	updated, err := r.registry.Authenticate(p.ID, role)
	if err != nil {
		if errors.Is(err, peer.ErrPeerNotFound) {
			return
		}
		r.rejectAuth(p, msg.ClientType, err)
		return
	}

	r.count(func(s *Stats) { s.AuthSuccesses++ })
	r.logger.Info("peer authenticated", "peer_id", p.ID, "role", role)
	r.reply(updated, protocol.EncodeAuthResult(true, auth.MessageSuccess))
	r.recordAuthenticated(updated)
	r.onAuthenticated(updated)
}

// rejectAuth answers a failed auth, then closes and removes the peer.
func (r *Router) rejectAuth(p peer.Peer, clientType string, cause error) {
	r.count(func(s *Stats) { s.AuthFailures++ })
	r.logger.Warn("authentication failed",
		"peer_id", p.ID,
		"client_type", clientType,
		"remote_addr", p.RemoteAddr,
		"error", cause,
	)

	r.reply(p, protocol.EncodeAuthResult(false, auth.MessageFailure))
	if err := p.Transport.Close(); err != nil {
		r.logger.Debug("failed to close rejected peer", "peer_id", p.ID, "error", err)
	}

	if _, ok := r.registry.Unregister(p.ID); ok {
		r.recorder.Record(audit.Event{
			PeerID:     string(p.ID),
			Kind:       audit.EventAuthFailed,
			Role:       clientType,
			RemoteAddr: p.RemoteAddr,
			Reason:     cause.Error(),
		})
	}
}

// onAuthenticated runs the role-specific follow-up of a successful auth.
func (r *Router) onAuthenticated(p peer.Peer) {
	switch p.Role {
	case peer.RoleSource:
		r.ReconcileSourceStatus()
	case peer.RoleController:
		r.statusMu.Lock()
		r.reply(p, protocol.EncodePhoneStatus(r.registry.SourceConnected()))
		r.statusMu.Unlock()
	}
}

func (r *Router) routePhoneData(p peer.Peer, msg protocol.PhoneData) {
	if p.Role != peer.RoleSource {
		r.logger.Debug("phoneData from non-source peer", "peer_id", p.ID, "role", p.Role)
		r.count(func(s *Stats) { s.Unauthenticated++ })
		return
	}

	n := r.deliver(peer.RoleController, msg.Payload)
	r.count(func(s *Stats) { s.MessagesRouted++ })
	r.logger.Debug("phoneData relayed", "peer_id", p.ID, "recipients", n)
}

func (r *Router) routeCommand(p peer.Peer, msg protocol.Command) {
	if p.Role != peer.RoleController {
		r.logger.Debug("command from non-controller peer", "peer_id", p.ID, "role", p.Role)
		r.count(func(s *Stats) { s.Unauthenticated++ })
		return
	}

	frame, err := protocol.EncodeCommand(msg.Command, msg.Data)
	if err != nil {
		r.logger.Warn("failed to encode command", "peer_id", p.ID, "error", err)
		r.count(func(s *Stats) { s.ParseErrors++ })
		return
	}

	n := r.deliver(peer.RoleSource, frame)
	r.count(func(s *Stats) { s.MessagesRouted++ })
	r.logger.Debug("command relayed", "peer_id", p.ID, "command", msg.Command, "recipients", n)
}

// ReconcileSourceStatus recomputes the aggregate source flag and, when it
// changed, announces the new value to every authenticated controller.
func (r *Router) ReconcileSourceStatus() (connected, changed bool) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()

	connected, changed = r.registry.ReconcileSource()
	if changed {
		r.broadcastSourceStatus(connected)
	}
	return connected, changed
}

// broadcastSourceStatus sends the flag to every authenticated controller
// (caller must hold statusMu).
func (r *Router) broadcastSourceStatus(connected bool) int {
	n := r.deliver(peer.RoleController, protocol.EncodePhoneStatus(connected))
	r.logger.Info("source status changed", "connected", connected, "recipients", n)
	return n
}

// Disconnect removes a peer whose transport ended. It closes the transport,
// reconciles the aggregate source flag and reports whether the peer was
// still registered. Calling it again for the same peer is a no-op.
func (r *Router) Disconnect(id peer.ID, reason string) bool {
	p, ok := r.registry.Unregister(id)
	if !ok {
		return false
	}
	p.Transport.Close()

	r.logger.Info("peer disconnected", "peer_id", id, "role", p.Role, "reason", reason)
	r.recorder.Record(audit.Event{
		PeerID:     string(p.ID),
		Kind:       audit.EventDisconnected,
		Role:       p.Role.ClientType(),
		RemoteAddr: p.RemoteAddr,
		Reason:     reason,
	})

	if p.IsAuthenticatedSource() {
		r.ReconcileSourceStatus()
	}
	return true
}

// deliver sends frame to every authenticated peer of role whose transport
// is open. A failed send is logged and skipped.
func (r *Router) deliver(role peer.Role, frame []byte) int {
	var delivered, failed int64

	r.registry.ForEach(peer.Authenticated(role), func(p peer.Peer) {
		if !p.Transport.IsOpen() {
			return
		}
		if err := p.Transport.Send(frame); err != nil {
			r.logger.Warn("failed to deliver frame", "peer_id", p.ID, "role", role, "error", err)
			failed++
			return
		}
		delivered++
	})

	r.count(func(s *Stats) {
		s.Deliveries += delivered
		s.DeliveryFailures += failed
	})
	return int(delivered)
}

// reply sends a frame to a single peer.
func (r *Router) reply(p peer.Peer, frame []byte) {
	if err := p.Transport.Send(frame); err != nil {
		r.logger.Warn("failed to reply", "peer_id", p.ID, "error", err)
	}
}

func (r *Router) recordAuthenticated(p peer.Peer) {
	r.recorder.Record(audit.Event{
		PeerID:     string(p.ID),
		Kind:       audit.EventAuthenticated,
		Role:       p.Role.ClientType(),
		RemoteAddr: p.RemoteAddr,
	})
}

func (r *Router) count(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}
