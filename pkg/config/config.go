package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/internal/ratelimiter"
	"github.com/marmos91/dittostorage/pkg/credentials"
	"github.com/marmos91/dittostorage/pkg/provider/local"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const appName = "dittostorage"

// Config represents the complete DittoStorage configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOSTORAGE_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Type-specific sections (tombstones.badger) are plain maps decoded by the
// factory for the selected type.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains service-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Bus selects the message bus and the name the service owns on it
	Bus BusConfig `mapstructure:"bus" yaml:"bus"`

	// Storage lists the directory trees exposed as accounts
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Tombstones selects where deleted-item markers are kept
	Tombstones TombstoneConfig `mapstructure:"tombstones" yaml:"tombstones"`

	// Credentials selects the credential broker
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains service-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for in-flight requests
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// InactivityTimeout makes the service exit after this long without
	// requests or pending transfers. Zero disables it.
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout" yaml:"inactivity_timeout" validate:"gte=0"`

	// Workers is the number of goroutines running filesystem work
	Workers int `mapstructure:"workers" yaml:"workers" validate:"gte=1"`

	// QueueSize is how many filesystem tasks may wait for a worker
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" validate:"gte=1"`

	// RateLimit bounds inbound requests. Zero rates disable limiting.
	RateLimit ratelimiter.Config `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// BusConfig selects the D-Bus connection.
type BusConfig struct {
	// Type is "session", "system" or "address"
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=session system address"`

	// Address is the bus address used when Type is "address"
	Address string `mapstructure:"address" yaml:"address" validate:"required_if=Type address"`

	// Name is the well-known name to own
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// ObjectPath is where the provider object is exported
	ObjectPath string `mapstructure:"object_path" yaml:"object_path" validate:"required,startswith=/"`

	// MetadataKeys are requested for every item returned to clients
	MetadataKeys []string `mapstructure:"metadata_keys" yaml:"metadata_keys"`
}

// StorageConfig lists the roots served by the local provider.
type StorageConfig struct {
	Roots []local.RootConfig `mapstructure:"roots" yaml:"roots" validate:"required,min=1,dive"`
}

// TombstoneConfig specifies the tombstone store.
type TombstoneConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// CredentialsConfig selects the credential broker.
type CredentialsConfig struct {
	// Type is "static" (bundle in this file) or "file" (bundle re-read
	// from Path whenever the service authenticates)
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=static file"`

	// Static is the bundle used when Type = "static"
	Static credentials.Bundle `mapstructure:"static" yaml:"static"`

	// Path is the bundle file used when Type = "file"
	Path string `mapstructure:"path" yaml:"path" validate:"required_if=Type file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOSTORAGE_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location. A missing file is not an
// error; the defaults are used instead.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := setViperDefaults(v); err != nil {
		return nil, err
	}
	if err := readConfigFile(v); err != nil {
		return nil, err
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOSTORAGE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// setViperDefaults registers every default key so environment variables
// can override settings the config file does not mention.
func setViperDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to render defaults: %w", err)
	}
	var defaults map[string]any
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return fmt.Errorf("failed to render defaults: %w", err)
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	return nil
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

// Watch re-reads the configuration file whenever it changes and hands the
// new configuration to onChange. Invalid edits are logged and ignored.
// Only settings that can change at runtime (the log level) should be
// applied by onChange.
func Watch(configPath string, onChange func(*Config)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	used := v.ConfigFileUsed()
	if used == "" {
		return fmt.Errorf("no configuration file to watch")
	}
	if _, err := os.Stat(used); err != nil {
		return fmt.Errorf("cannot watch configuration file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring configuration change in %s: %v", e.Name, err)
			return
		}
		logger.Info("Configuration reloaded from %s", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", appName)
}

// getDataDir returns the directory for served files and databases.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
