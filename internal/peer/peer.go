package peer

import (
	"errors"
	"time"

	"github.com/rickgao/phone-relay/internal/protocol"
)

// Errors
var (
	ErrPeerNotFound   = errors.New("peer not found")
	ErrRoleAlreadySet = errors.New("peer role already set")
	ErrInvalidRole    = errors.New("invalid peer role")
)

// ID identifies a peer for the lifetime of its connection.
type ID string

// Role classifies a peer.
type Role string

const (
	RoleUnknown    Role = "unknown"
	RoleController Role = "controller" // web client ("website" on the wire)
	RoleSource     Role = "source"     // device agent ("termux" on the wire)
)

// RoleFromClientType maps a wire clientType to a Role.
func RoleFromClientType(clientType string) (Role, bool) {
	switch clientType {
	case protocol.ClientTypeWebsite:
		return RoleController, true
	case protocol.ClientTypeTermux:
		return RoleSource, true
	default:
		return RoleUnknown, false
	}
}

// ClientType returns the wire name of the role, empty for RoleUnknown.
func (r Role) ClientType() string {
	switch r {
	case RoleController:
		return protocol.ClientTypeWebsite
	case RoleSource:
		return protocol.ClientTypeTermux
	default:
		return ""
	}
}

// Transport is the connection a peer is reached through.
type Transport interface {
	// Send writes one text frame. It must not block indefinitely and must
	// fail fast once the transport is closed.
	Send(data []byte) error

	// IsOpen reports whether the transport can still carry frames.
	IsOpen() bool

	// Close terminates the transport. Closing twice is not an error.
	Close() error
}

// Peer is one connected party.
type Peer struct {
	ID            ID
	Role          Role
	Authenticated bool
	RemoteAddr    string
	ConnectedAt   time.Time
	Transport     Transport
}

// IsAuthenticatedSource reports whether the peer counts toward the aggregate source flag.
func (p Peer) IsAuthenticatedSource() bool {
	return p.Authenticated && p.Role == RoleSource
}

// Filter selects peers during iteration.
type Filter func(Peer) bool

// All matches every peer.
func All(Peer) bool { return true }

// Authenticated matches authenticated peers with the given role.
func Authenticated(role Role) Filter {
	return func(p Peer) bool {
		return p.Authenticated && p.Role == role
	}
}
