package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS peer_events (
		id          BIGSERIAL   PRIMARY KEY,
		peer_id     TEXT        NOT NULL,
		kind        TEXT        NOT NULL,
		role        TEXT        NOT NULL,
		remote_addr TEXT        NOT NULL,
		reason      TEXT        NOT NULL,
		at          TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS peer_events_peer_id_idx ON peer_events (peer_id);
	CREATE INDEX IF NOT EXISTS peer_events_at_idx ON peer_events (at);
`

const insertSQL = `
	INSERT INTO peer_events (peer_id, kind, role, remote_addr, reason, at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// BatchSender is the part of *pgxpool.Pool the Writer uses.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Execer is the part of *pgxpool.Pool EnsureSchema uses.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the peer_events table if it does not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create peer_events: %w", err)
	}
	return nil
}

// Writer batches events into PostgreSQL.
type Writer struct {
	cfg    Config
	logger *slog.Logger
	db     BatchSender

	// Input from Record; batch is owned by the run goroutine.
	input chan Event
	batch []Event

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	mu      sync.Mutex
	metrics Metrics
	dropped atomic.Int64
}

// NewWriter creates a new Writer.
func NewWriter(cfg Config, db BatchSender, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		logger: logger.With("component", "audit"),
		db:     db,
		input:  make(chan Event, cfg.BufferSize),
		batch:  make([]Event, 0, cfg.BatchSize),
	}
}

// Record queues an event. It never blocks; events are dropped when the buffer is full.
func (w *Writer) Record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case w.input <- e:
	default:
		w.dropped.Add(1)
	}
}

// Start begins consuming events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("audit writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains pending events, writes them, and shuts down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping audit writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("audit writer stop timed out")
		return ctx.Err()
	}

	// Final drain and flush with the caller's deadline.
drain:
	for {
		select {
		case e := <-w.input:
			w.batch = append(w.batch, e)
		default:
			break drain
		}
	}
	w.flush(ctx)

	w.logger.Info("audit writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()

	m := w.metrics
	m.Dropped = w.dropped.Load()
	return m
}

// run accumulates events and flushes on size or interval.
func (w *Writer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case e := <-w.input:
			w.batch = append(w.batch, e)
			if len(w.batch) >= w.cfg.BatchSize {
				w.flush(w.ctx)
			}
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	if len(w.batch) == 0 {
		return
	}

	// Take ownership of current batch
	rows := w.batch
	w.batch = make([]Event, 0, w.cfg.BatchSize)

	start := time.Now()

	if err := w.insert(ctx, rows); err != nil {
		w.logger.Error("audit batch insert failed", "error", err, "count", len(rows))
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.metrics.Inserts += int64(len(rows))
	w.metrics.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed audit events",
		"count", len(rows),
		"duration", time.Since(start),
	)
}

// insert writes rows in a single pgx.Batch.
func (w *Writer) insert(ctx context.Context, rows []Event) error {
	batch := &pgx.Batch{}
	for _, e := range rows {
		batch.Queue(insertSQL, e.PeerID, string(e.Kind), e.Role, e.RemoteAddr, e.Reason, e.At)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
