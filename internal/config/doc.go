// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A relay can also run without a file: defaults plus the PORT and RELAY_*
// environment overrides are enough for a permissive or env-configured deployment.
package config
