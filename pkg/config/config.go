// Package config loads tupledb's static configuration: logging behavior,
// session defaults, buffer pool sizing, and the on-disk table path. Dynamic
// state (users, tables) lives in the running Registry, not in config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents tupledb's static configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (TUPLEDB_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// See Load for when environment variables apply.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Session controls per-client session defaults (C6/C7).
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// BufferPool controls the buffer pool's fixed capacity (C4).
	BufferPool BufferPoolConfig `mapstructure:"buffer_pool" yaml:"buffer_pool"`

	// Storage configures where evicted buffers are written back to.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// SessionConfig controls per-session defaults applied by the Registry when
// starting a new session (see pkg/registry.Config, pkg/session.Config).
type SessionConfig struct {
	// TTL is the absolute session lifetime, computed once at Start and
	// never extended by new task arrivals (§4.6).
	// Default: 5m
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// QueueDepth is the bounded per-session task queue capacity.
	// Default: 256
	QueueDepth int `mapstructure:"queue_depth" yaml:"queue_depth"`
}

// BufferPoolConfig controls the fixed-capacity buffer pool (C4).
type BufferPoolConfig struct {
	// Capacity is the fixed number of slots in the pool.
	// Default: 128
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// StorageConfig configures the default filesystem-backed write-back store.
type StorageConfig struct {
	// TablePath is the base directory evicted buffers are written under.
	// Default: /var/lib/tupledb/tables
	TablePath string `mapstructure:"table_path" yaml:"table_path"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TUPLEDB_*)
//  2. Configuration file
//  3. Default values
//
// An environment variable overrides only a key that appears in the
// configuration file. When no file is found, Load returns the defaults and
// does not consult the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// MustLoad loads configuration with a helpful error message if no config
// file exists at the default location.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please create one, or specify a custom config file:\n"+
				"  tupledbd serve --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML
// format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// WatchAndReload registers a viper config-file watch (backed by fsnotify)
// and invokes onChange with the freshly reloaded configuration whenever the
// file changes on disk.
func WatchAndReload(configPath string, onChange func(*Config)) error {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
			return
		}
		ApplyDefaults(&cfg)
		onChange(&cfg)
	})
	v.WatchConfig()
	return nil
}

// setupViper configures viper with environment variable and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TUPLEDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts strings like "30s", "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path, preferring
// XDG_CONFIG_HOME, then ~/.config, then the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tupledb")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "tupledb")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
