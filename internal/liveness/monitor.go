package liveness

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/phone-relay/internal/audit"
	"github.com/rickgao/phone-relay/internal/peer"
	"github.com/rickgao/phone-relay/internal/protocol"
)

// StatusReconciler recomputes the aggregate source flag and announces
// changes to controllers.
type StatusReconciler interface {
	ReconcileSourceStatus() (connected, changed bool)
}

// Config holds monitor configuration.
type Config struct {
	Interval    time.Duration // Sweep interval (default: 30s)
	Concurrency int           // Max concurrent pings (default: 64)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Concurrency: 64,
	}
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Pinged    int
	Reaped    int
	Connected bool // Aggregate source flag after the sweep
	Changed   bool // Whether reconciliation changed the flag
}

// Monitor periodically pings peers and reconciles the registry.
type Monitor struct {
	cfg        Config
	registry   *peer.Registry
	reconciler StatusReconciler
	recorder   audit.Recorder
	logger     *slog.Logger

	sweeps atomic.Int64
	reaped atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Monitor.
func New(cfg Config, registry *peer.Registry, reconciler StatusReconciler, recorder audit.Recorder, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Monitor{
		cfg:        cfg,
		registry:   registry,
		reconciler: reconciler,
		recorder:   recorder,
		logger:     logger.With("component", "liveness"),
	}
}

// Start begins the sweep loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("liveness monitor started", "interval", m.cfg.Interval)

	return nil
}

// Stop gracefully shuts down the monitor.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("liveness monitor stopped",
			"sweeps", m.sweeps.Load(),
			"reaped", m.reaped.Load(),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main sweep loop.
func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep pings every peer once, reaps dead ones and reconciles the
// aggregate source flag.
func (m *Monitor) Sweep() SweepResult {
	start := time.Now()
	peers := m.registry.Select(peer.All)

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, m.cfg.Concurrency)
	var wg sync.WaitGroup
	var pinged, reaped atomic.Int64

	for _, p := range peers {
		if !p.Transport.IsOpen() {
			if m.reap(p, "transport closed") {
				reaped.Add(1)
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(p peer.Peer) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := p.Transport.Send(protocol.EncodePing()); err != nil {
				m.logger.Warn("heartbeat failed", "peer_id", p.ID, "role", p.Role, "error", err)
				if m.reap(p, "ping failed") {
					reaped.Add(1)
				}
				return
			}
			pinged.Add(1)
		}(p)
	}

	wg.Wait()

	var connected, changed bool
	if m.reconciler != nil {
		connected, changed = m.reconciler.ReconcileSourceStatus()
	} else {
		connected, changed = m.registry.ReconcileSource()
	}

	m.sweeps.Add(1)
	m.reaped.Add(reaped.Load())

	result := SweepResult{
		Pinged:    int(pinged.Load()),
		Reaped:    int(reaped.Load()),
		Connected: connected,
		Changed:   changed,
	}

	m.logger.Debug("heartbeat sweep complete",
		"peers", len(peers),
		"pinged", result.Pinged,
		"reaped", result.Reaped,
		"source_connected", connected,
		"duration", time.Since(start),
	)

	return result
}

// reap removes a dead peer. It returns false when the peer was already gone.
func (m *Monitor) reap(p peer.Peer, reason string) bool {
	if _, ok := m.registry.Unregister(p.ID); !ok {
		return false
	}
	p.Transport.Close()

	m.logger.Info("peer reaped", "peer_id", p.ID, "role", p.Role, "reason", reason)
	m.recorder.Record(audit.Event{
		PeerID:     string(p.ID),
		Kind:       audit.EventReaped,
		Role:       p.Role.ClientType(),
		RemoteAddr: p.RemoteAddr,
		Reason:     reason,
	})
	return true
}
