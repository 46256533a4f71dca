package connection

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// HandshakeTimeout bounds the opening handshake when dialing.
const HandshakeTimeout = 10 * time.Second

// Dial connects to a WebSocket endpoint and returns a running Conn.
func Dial(ctx context.Context, url string, header http.Header, cfg Config, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	logger.Debug("websocket connected", "url", url)

	return New(ws, cfg, logger), nil
}
