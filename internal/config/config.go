// Package config loads the analyzer's configuration file, passed via
// "--config-path <path>", using a TOML dialect
// (github.com/BurntSushi/toml).
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk configuration for the standalone analyzer (the
// frontend CLI). The CLI's only flag, --config-path, selects the file; no
// flag overrides individual fields; see cmd/profiler-analyzer.
type Config struct {
	// Listen is the IPC transport's TCP listen address (host:port),
	// passed to ipctransport.Listen.
	Listen string `toml:"listen"`

	// MetadataCachePath is the bbolt file backing the persistent metadata
	// cache (component M). Empty disables persistence (degrades to an
	// in-memory-only cache, per spec.md §7 "Persistence errors ...
	// degrade to non-cached operation").
	MetadataCachePath string `toml:"metadata_cache_path"`

	// TraceLimitBytes is the per-thread ring buffer capacity (component F).
	TraceLimitBytes int `toml:"trace_limit_bytes"`

	// ResponseDeadline bounds how long a correlated protocol request (e.g.
	// request_module_metadata) waits before its token is dropped (spec.md
	// §5 "Protocol requests ... carry a correlation token").
	ResponseDeadline time.Duration `toml:"response_deadline"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Listen:           "127.0.0.1:4711",
		TraceLimitBytes:  1 << 20,
		ResponseDeadline: 5 * time.Second,
		LogLevel:         "info",
	}
}

// Load reads and parses the TOML file at path, starting from Default() so
// unspecified fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
