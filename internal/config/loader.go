package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvPort          = "PORT"
	EnvStrictAuth    = "RELAY_STRICT_AUTH"
	EnvWebsiteSecret = "RELAY_WEBSITE_SECRET"
	EnvTermuxSecret  = "RELAY_TERMUX_SECRET"
)

// Load reads a YAML config file and expands environment variables.
// An empty path yields an empty Config.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := expandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// envRef matches ${NAME} references. Bare $ sequences, such as those in
// bcrypt hashes, are left alone.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
}

// LoadWithDefaults loads config, applies environment overrides and default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies overrides and defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvPort, err)
		}
		c.Server.ListenPort = port
	}
	if v := os.Getenv(EnvStrictAuth); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvStrictAuth, err)
		}
		c.Auth.Strict = &strict
	}
	if v := os.Getenv(EnvWebsiteSecret); v != "" {
		c.Auth.WebsiteSecret = v
	}
	if v := os.Getenv(EnvTermuxSecret); v != "" {
		c.Auth.TermuxSecret = v
	}
	return nil
}
