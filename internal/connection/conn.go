package connection

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeGrace bounds how long a close frame may take to write.
const closeGrace = time.Second

// Conn is one WebSocket connection, either accepted or dialed.
type Conn struct {
	cfg    Config
	logger *slog.Logger

	ws         *websocket.Conn
	remoteAddr string

	events chan Event
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu     sync.RWMutex
	open   bool
	closed bool
}

// New wraps an established WebSocket connection and starts reading from it.
func New(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBuffer < 0 {
		cfg.EventBuffer = 0
	}

	c := &Conn{
		cfg:        cfg,
		logger:     logger,
		ws:         ws,
		remoteAddr: ws.RemoteAddr().String(),
		events:     make(chan Event, cfg.EventBuffer),
		done:       make(chan struct{}),
		open:       true,
	}

	if cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(cfg.MaxMessageBytes)
	}

	// Any pong from the peer counts as activity.
	ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	go c.readLoop()

	return c
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Events returns the ordered inbound stream. The channel is closed after
// the final event, or without one when the connection was closed locally.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Send writes one text frame. It returns ErrAlreadyClosed after Close and
// ErrNotConnected once the connection has failed or the peer went away.
func (c *Conn) Send(data []byte) error {
	c.mu.RLock()
	switch {
	case c.closed:
		c.mu.RUnlock()
		return ErrAlreadyClosed
	case !c.open:
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		// A failed write leaves the connection unusable.
		c.markBroken()
		return err
	}
	return nil
}

// IsOpen reports whether the connection can still carry frames.
func (c *Conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Close sends a normal close frame and tears the connection down.
// Calling Close more than once is a no-op.
func (c *Conn) Close() error {
	return c.CloseWithReason(websocket.CloseNormalClosure, "")
}

// CloseWithReason is Close with an explicit close code and reason.
func (c *Conn) CloseWithReason(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	c.mu.Unlock()

	close(c.done)

	// WriteControl may run concurrently with WriteMessage.
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeGrace),
	)
	return c.ws.Close()
}

func (c *Conn) markBroken() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

func (c *Conn) extendReadDeadline() {
	if c.cfg.ReadTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
}

// readLoop reads frames until the connection ends and emits them in order.
func (c *Conn) readLoop() {
	defer close(c.events)
	defer c.markBroken()

	for {
		c.extendReadDeadline()

		_, data, err := c.ws.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
				// Closed locally, nobody needs the read error.
				return
			default:
			}

			c.markBroken()
			c.emit(terminalEvent(err, receivedAt))
			return
		}

		if !c.emit(Event{Kind: EventMessage, Data: data, ReceivedAt: receivedAt}) {
			return
		}
	}
}

// emit blocks until the consumer takes the event or the connection is
// closed locally. Blocking keeps frames ordered and pushes back on the
// peer instead of dropping.
func (c *Conn) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func terminalEvent(err error, at time.Time) Event {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return Event{Kind: EventClose, Err: err, ReceivedAt: at}
		}
	}
	return Event{Kind: EventError, Err: err, ReceivedAt: at}
}
