package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittostorage/internal/ratelimiter"
	"github.com/marmos91/dittostorage/pkg/provider/local"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Workers < 1 {
		t.Errorf("Expected a positive default worker count, got %d", cfg.Server.Workers)
	}
	if cfg.Server.QueueSize != 1024 {
		t.Errorf("Expected default queue size 1024, got %d", cfg.Server.QueueSize)
	}
}

func TestApplyDefaults_Bus(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Bus.Type != "session" {
		t.Errorf("Expected default bus type 'session', got %q", cfg.Bus.Type)
	}
	if cfg.Bus.ObjectPath != "/provider" {
		t.Errorf("Expected default object path '/provider', got %q", cfg.Bus.ObjectPath)
	}
}

func TestApplyDefaults_StorageUsesDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	cfg := &Config{}
	ApplyDefaults(cfg)

	want := filepath.Join("/tmp/xdg-data", "dittostorage", "files")
	if len(cfg.Storage.Roots) != 1 || cfg.Storage.Roots[0].Path != want {
		t.Errorf("Expected default root %q, got %+v", want, cfg.Storage.Roots)
	}

	want = filepath.Join("/tmp/xdg-data", "dittostorage", "tombstones")
	if cfg.Tombstones.Badger["path"] != want {
		t.Errorf("Expected default tombstone path %q, got %v", want, cfg.Tombstones.Badger["path"])
	}
}

func TestApplyDefaults_Credentials(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Credentials.Type != "static" {
		t.Errorf("Expected default credentials type 'static', got %q", cfg.Credentials.Type)
	}
	if cfg.Credentials.Static.Method != "none" {
		t.Errorf("Expected default credential method 'none', got %q", cfg.Credentials.Static.Method)
	}

	cfg = &Config{Credentials: CredentialsConfig{Type: "file", Path: "/run/creds.yaml"}}
	ApplyDefaults(cfg)
	if cfg.Credentials.Static.Method != "" {
		t.Errorf("Expected no static method for file credentials, got %q", cfg.Credentials.Static.Method)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "debug", Format: "json", Output: "stderr"},
		Server: ServerConfig{
			ShutdownTimeout:   5 * time.Second,
			InactivityTimeout: time.Minute,
			Workers:           2,
			QueueSize:         8,
			RateLimit:         ratelimiter.Config{RequestsPerSecond: 10},
		},
		Bus:        BusConfig{Type: "system", Name: "org.example.Files", ObjectPath: "/files"},
		Storage:    StorageConfig{Roots: []local.RootConfig{{Path: "/srv/a"}}},
		Tombstones: TombstoneConfig{Type: "memory"},
		Metrics:    MetricsConfig{Enabled: true, Port: 9100},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Expected explicit logging values preserved, got %+v", cfg.Logging)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second || cfg.Server.Workers != 2 || cfg.Server.QueueSize != 8 {
		t.Errorf("Expected explicit server values preserved, got %+v", cfg.Server)
	}
	if cfg.Server.InactivityTimeout != time.Minute {
		t.Errorf("Expected inactivity timeout preserved, got %v", cfg.Server.InactivityTimeout)
	}
	if cfg.Bus.Type != "system" || cfg.Bus.Name != "org.example.Files" || cfg.Bus.ObjectPath != "/files" {
		t.Errorf("Expected explicit bus values preserved, got %+v", cfg.Bus)
	}
	if len(cfg.Storage.Roots) != 1 || cfg.Storage.Roots[0].Path != "/srv/a" {
		t.Errorf("Expected explicit root preserved, got %+v", cfg.Storage.Roots)
	}
	if cfg.Tombstones.Type != "memory" {
		t.Errorf("Expected tombstone type preserved, got %q", cfg.Tombstones.Type)
	}
	if cfg.Metrics.Port != 9100 {
		t.Errorf("Expected metrics port preserved, got %d", cfg.Metrics.Port)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}
