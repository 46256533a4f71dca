package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/phone-relay/internal/audit"
	"github.com/rickgao/phone-relay/internal/auth"
	"github.com/rickgao/phone-relay/internal/config"
	"github.com/rickgao/phone-relay/internal/connection"
	"github.com/rickgao/phone-relay/internal/database"
	"github.com/rickgao/phone-relay/internal/liveness"
	"github.com/rickgao/phone-relay/internal/logging"
	"github.com/rickgao/phone-relay/internal/peer"
	"github.com/rickgao/phone-relay/internal/relay"
	"github.com/rickgao/phone-relay/internal/router"
	"github.com/rickgao/phone-relay/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		port        int
		permissive  bool
		hashSecret  string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file (default: environment only)")
	flagSet.IntVar(&port, "port", 0, "listen port, overrides config and $PORT")
	flagSet.BoolVar(&permissive, "permissive", false, "accept peers without credentials")
	flagSet.StringVar(&hashSecret, "hash-secret", "", "print a bcrypt hash of the given secret and exit")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print(os.Stdout, "relay")
		return nil
	}

	if hashSecret != "" {
		hash, err := auth.HashSecret(hashSecret)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	}

	// Load configuration
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.ListenPort = port
	}
	if permissive {
		strict := false
		cfg.Auth.Strict = &strict
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Set up structured logging
	logger, logCloser, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting relay", append(version.Attrs(), "config", configPath)...)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Optional audit trail
	var recorder audit.Recorder = audit.Nop{}
	var auditWriter *audit.Writer
	if cfg.Audit.Enabled {
		logger.Info("connecting to audit database",
			"host", cfg.Audit.Database.Host,
			"port", cfg.Audit.Database.Port,
			"database", cfg.Audit.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Audit.Database)
		if err != nil {
			return fmt.Errorf("connect audit database: %w", err)
		}
		defer pool.Close()

		if err := audit.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure audit schema: %w", err)
		}

		auditWriter = audit.NewWriter(audit.Config{
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
			BufferSize:    cfg.Audit.BufferSize,
		}, pool, logger)
		if err := auditWriter.Start(ctx); err != nil {
			return fmt.Errorf("start audit writer: %w", err)
		}
		recorder = auditWriter
	}

	// Core components
	strict := cfg.Auth.StrictMode()
	registry := peer.NewRegistry()
	gate := auth.NewGate(strict, cfg.Auth.WebsiteSecret, cfg.Auth.TermuxSecret)
	rt := router.New(registry, gate, recorder, logger)

	monitorCfg := liveness.DefaultConfig()
	monitorCfg.Interval = cfg.Heartbeat.Interval()
	monitor := liveness.New(monitorCfg, registry, rt, recorder, logger)

	server := relay.New(relay.Config{
		Strict:         strict,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Conn: connection.Config{
			WriteTimeout:    cfg.Server.WriteTimeout,
			ReadTimeout:     cfg.Server.ReadTimeout,
			MaxMessageBytes: cfg.Server.MaxMessageBytes,
			EventBuffer:     cfg.Server.EventBuffer,
		},
	}, registry, rt, recorder, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.ListenPort),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("start liveness monitor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("relay listening",
			"port", cfg.Server.ListenPort,
			"strict_auth", strict,
			"heartbeat", monitorCfg.Interval,
			"audit", cfg.Audit.Enabled,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down relay")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("relay shutdown", "error", err)
		}
		if err := monitor.Stop(shutdownCtx); err != nil {
			logger.Warn("liveness monitor shutdown", "error", err)
		}
		if auditWriter != nil {
			if err := auditWriter.Stop(shutdownCtx); err != nil {
				logger.Warn("audit writer shutdown", "error", err)
			}
			m := auditWriter.Stats()
			logger.Info("audit writer stopped", "inserts", m.Inserts, "errors", m.Errors, "dropped", m.Dropped)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("relay stopped", "router", rt.Stats())
	return nil
}
