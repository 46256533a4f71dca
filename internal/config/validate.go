package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.ListenPort < 1 || c.Server.ListenPort > 65535 {
		return fmt.Errorf("server.listen_port must be between 1 and 65535, got %d", c.Server.ListenPort)
	}
	if c.Server.MaxMessageBytes < 1 {
		return errors.New("server.max_message_bytes must be >= 1")
	}
	if c.Server.EventBuffer < 1 {
		return errors.New("server.event_buffer must be >= 1")
	}
	if c.Server.WriteTimeout <= 0 {
		return errors.New("server.write_timeout must be > 0")
	}
	if c.Server.ReadTimeout < 0 {
		return errors.New("server.read_timeout must be >= 0")
	}

	if c.Heartbeat.IntervalMs < 1 {
		return errors.New("heartbeat.interval_ms must be >= 1")
	}

	if c.Auth.StrictMode() {
		if c.Auth.WebsiteSecret == "" {
			return errors.New("auth.website_secret is required in strict mode")
		}
		if c.Auth.TermuxSecret == "" {
			return errors.New("auth.termux_secret is required in strict mode")
		}
		if c.Auth.WebsiteSecret == c.Auth.TermuxSecret {
			return errors.New("auth.website_secret and auth.termux_secret must differ")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Audit.Enabled {
		if err := c.Audit.Database.validate("audit.database"); err != nil {
			return err
		}
		if c.Audit.BatchSize < 1 {
			return errors.New("audit.batch_size must be >= 1")
		}
		if c.Audit.BufferSize < 1 {
			return errors.New("audit.buffer_size must be >= 1")
		}
		if c.Audit.FlushInterval <= 0 {
			return errors.New("audit.flush_interval must be > 0")
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
