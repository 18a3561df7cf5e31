package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced with defaults; explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applySessionDefaults(&cfg.Session)
	applyBufferPoolDefaults(&cfg.BufferPool)
	applyStorageDefaults(&cfg.Storage)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applySessionDefaults sets per-session defaults.
func applySessionDefaults(cfg *SessionConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 256
	}
}

// applyBufferPoolDefaults sets buffer pool defaults.
func applyBufferPoolDefaults(cfg *BufferPoolConfig) {
	if cfg.Capacity == 0 {
		cfg.Capacity = 128
	}
}

// applyStorageDefaults sets storage defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.TablePath == "" {
		cfg.TablePath = "/var/lib/tupledb/tables"
	}
}

// GetDefaultConfig returns a Config with all default values applied. Useful
// for generating a sample configuration file or for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
