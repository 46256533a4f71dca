package config

import "time"

// Config is the root configuration for a relay instance.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig holds listener and per-connection settings.
type ServerConfig struct {
	ListenPort      int           `yaml:"listen_port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`   // Empty or ["*"] allows any origin
	MaxMessageBytes int64         `yaml:"max_message_bytes"` // Read limit per inbound frame
	WriteTimeout    time.Duration `yaml:"write_timeout"`     // Deadline for a single frame write
	ReadTimeout     time.Duration `yaml:"read_timeout"`      // Idle read timeout, 0 disables
	EventBuffer     int           `yaml:"event_buffer"`      // Per-connection inbound event queue
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds the per-role shared secrets.
type AuthConfig struct {
	Strict        *bool  `yaml:"strict"`         // nil means strict
	WebsiteSecret string `yaml:"website_secret"` // Controller secret, plain or bcrypt hash
	TermuxSecret  string `yaml:"termux_secret"`  // Source secret, plain or bcrypt hash
}

// StrictMode reports whether peers must present credentials.
func (a AuthConfig) StrictMode() bool {
	return a.Strict == nil || *a.Strict
}

// HeartbeatConfig holds Liveness Monitor settings.
type HeartbeatConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// Interval returns the heartbeat period.
func (h HeartbeatConfig) Interval() time.Duration {
	return time.Duration(h.IntervalMs) * time.Millisecond
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // Optional rotating log file, in addition to stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AuditConfig holds the optional peer audit trail settings.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
