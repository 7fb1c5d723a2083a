package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/marmos91/dittostorage/pkg/adapter/dbus"
	"github.com/marmos91/dittostorage/pkg/provider"
	"github.com/marmos91/dittostorage/pkg/provider/local"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults and explicit values are preserved.
// Store-specific defaults are handled by the store factories.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyBusDefaults(&cfg.Bus)
	applyStorageDefaults(&cfg.Storage)
	applyTombstoneDefaults(&cfg.Tombstones)
	applyCredentialsDefaults(&cfg.Credentials)
	applyMetricsDefaults(&cfg.Metrics)
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

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU() * 3
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1024
	}
	// InactivityTimeout stays zero (never exit) unless configured.
}

func applyBusDefaults(cfg *BusConfig) {
	if cfg.Type == "" {
		cfg.Type = dbus.BusSession
	}
	if cfg.Name == "" {
		cfg.Name = dbus.DefaultName
	}
	if cfg.ObjectPath == "" {
		cfg.ObjectPath = dbus.DefaultObjectPath
	}
}

// applyStorageDefaults serves a directory under the XDG data dir when no
// root is configured. The factory creates it on first start.
func applyStorageDefaults(cfg *StorageConfig) {
	if len(cfg.Roots) == 0 {
		cfg.Roots = []local.RootConfig{{
			Path: filepath.Join(getDataDir(), "files"),
			Name: "Files",
		}}
	}
}

func applyTombstoneDefaults(cfg *TombstoneConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = filepath.Join(getDataDir(), "tombstones")
	}
}

func applyCredentialsDefaults(cfg *CredentialsConfig) {
	if cfg.Type == "" {
		cfg.Type = "static"
	}
	if cfg.Type == "static" && cfg.Static.Method == "" {
		cfg.Static.Method = "none"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// This is what `dittostorage init` writes and what Load falls back to when
// no config file exists.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Bus: BusConfig{
			MetadataKeys: []string{
				provider.MetadataSize,
				provider.MetadataLastModifiedTime,
				provider.MetadataContentType,
				provider.MetadataFreeSpaceBytes,
				provider.MetadataUsedSpaceBytes,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
