package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("connection already closed")
)

// EventKind identifies a connection lifecycle event.
type EventKind int

const (
	EventMessage EventKind = iota // A frame arrived
	EventClose                    // The peer or the relay closed the connection cleanly
	EventError                    // The connection failed
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item of a connection's inbound stream.
type Event struct {
	Kind       EventKind
	Data       []byte    // Frame bytes (EventMessage only)
	Err        error     // Cause (EventClose and EventError)
	ReceivedAt time.Time // Local timestamp when the read returned
}

// Config configures a Conn.
type Config struct {
	WriteTimeout    time.Duration // Write deadline for each frame
	ReadTimeout     time.Duration // Max idle time between inbound frames, 0 disables
	MaxMessageBytes int64         // Read limit per inbound frame
	EventBuffer     int           // Capacity of the Events channel
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    5 * time.Second,
		MaxMessageBytes: 1 << 20,
		EventBuffer:     64,
	}
}
