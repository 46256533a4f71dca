package audit

import "time"

// EventKind is the lifecycle transition being recorded.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventAuthenticated EventKind = "authenticated"
	EventAuthFailed    EventKind = "auth_failed"
	EventDisconnected  EventKind = "disconnected"
	EventReaped        EventKind = "reaped"
)

// Event is one peer lifecycle transition.
type Event struct {
	PeerID     string
	Kind       EventKind
	Role       string
	RemoteAddr string
	Reason     string // Free-form detail, e.g. "read error" or "ping failed"
	At         time.Time
}

// Recorder accepts lifecycle events. Record must not block.
type Recorder interface {
	Record(Event)
}

// RecorderFunc is a function adapter for Recorder.
type RecorderFunc func(Event)

func (f RecorderFunc) Record(e Event) {
	f(e)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(Event) {}

// Config holds writer configuration.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time an event waits before insert
	BufferSize    int           // Pending events before Record starts dropping
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1024,
	}
}

// Metrics contains writer statistics.
type Metrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64
}
