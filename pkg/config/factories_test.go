package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittostorage/pkg/credentials"
	"github.com/marmos91/dittostorage/pkg/provider/local"
	"github.com/marmos91/dittostorage/pkg/tombstone"
)

func TestCreateTombstoneStore_Memory(t *testing.T) {
	store, err := CreateTombstoneStore(context.Background(), &TombstoneConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("Failed to create memory tombstone store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, ok := store.(*tombstone.MemoryStore); !ok {
		t.Errorf("Expected *tombstone.MemoryStore, got %T", store)
	}
}

func TestCreateTombstoneStore_Badger(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "tombstones")
	cfg := &TombstoneConfig{
		Type:   "badger",
		Badger: map[string]any{"path": dbPath},
	}

	store, err := CreateTombstoneStore(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create badger tombstone store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Mark(ctx, "/srv/a"); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	deleted, err := store.IsDeleted(ctx, "/srv/a/b")
	if err != nil {
		t.Fatalf("IsDeleted failed: %v", err)
	}
	if !deleted {
		t.Error("Expected /srv/a/b to be deleted beneath a marked folder")
	}
}

func TestCreateTombstoneStore_BadgerMissingPath(t *testing.T) {
	_, err := CreateTombstoneStore(context.Background(), &TombstoneConfig{Type: "badger", Badger: map[string]any{}})
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateTombstoneStore_UnknownType(t *testing.T) {
	_, err := CreateTombstoneStore(context.Background(), &TombstoneConfig{Type: "redis"})
	if err == nil {
		t.Fatal("Expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "unknown tombstone store type") {
		t.Errorf("Expected 'unknown tombstone store type' error, got: %v", err)
	}
}

func TestCreateTombstoneStore_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &TombstoneConfig{Type: "badger", Badger: map[string]any{"path": t.TempDir()}}
	if _, err := CreateTombstoneStore(ctx, cfg); err == nil {
		t.Fatal("Expected error with cancelled context")
	}
}

func TestCreateProvider_CreatesRoots(t *testing.T) {
	rootPath := filepath.Join(t.TempDir(), "files")
	cfg := &StorageConfig{Roots: []local.RootConfig{{Path: rootPath, Name: "Files"}}}

	pool := CreateWorkerPool(&ServerConfig{Workers: 2, QueueSize: 4})
	defer pool.Close()

	prov, err := CreateProvider(cfg, pool, tombstone.NewMemoryStore())
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	info, err := os.Stat(rootPath)
	if err != nil || !info.IsDir() {
		t.Fatalf("Expected root directory to be created: %v", err)
	}

	roots, err := prov.Roots(nil, nil).Get()
	if err != nil {
		t.Fatalf("Roots failed: %v", err)
	}
	if len(roots) != 1 || roots[0].Name != "Files" {
		t.Errorf("Expected one root named 'Files', got %+v", roots)
	}
}

func TestCreateBroker_Static(t *testing.T) {
	broker, err := CreateBroker(&CredentialsConfig{
		Type:   "static",
		Static: credentials.Bundle{Method: "password", Username: "alice", Password: "secret"},
	})
	if err != nil {
		t.Fatalf("Failed to create static broker: %v", err)
	}
	if !broker.HasCredentials() {
		t.Error("Expected static broker to have credentials")
	}
	if got := broker.Credentials().Username; got != "alice" {
		t.Errorf("Expected username 'alice', got %q", got)
	}
}

func TestCreateBroker_StaticIncomplete(t *testing.T) {
	_, err := CreateBroker(&CredentialsConfig{Type: "static", Static: credentials.Bundle{Method: "oauth2"}})
	if err == nil {
		t.Fatal("Expected error for oauth2 without a token")
	}
}

func TestCreateBroker_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.yaml")
	if err := credentials.WriteFile(path, credentials.Bundle{Method: "oauth2", AccessToken: "tok"}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	broker, err := CreateBroker(&CredentialsConfig{Type: "file", Path: path})
	if err != nil {
		t.Fatalf("Failed to create file broker: %v", err)
	}
	if _, err := broker.Authenticate(false, false).Get(); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got := broker.Credentials().AccessToken; got != "tok" {
		t.Errorf("Expected access token 'tok', got %q", got)
	}
}

func TestCreateBroker_UnknownType(t *testing.T) {
	if _, err := CreateBroker(&CredentialsConfig{Type: "keyring"}); err == nil {
		t.Fatal("Expected error for unknown credentials type")
	}
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.InactivityTimeout = 0
	cfg.Bus.Type = "system"

	busCfg := BusAdapterConfig(cfg)
	if busCfg.Bus != "system" || busCfg.ObjectPath != "/provider" {
		t.Errorf("Unexpected bus adapter config: %+v", busCfg)
	}
	if busCfg.ShutdownTimeout != cfg.Server.ShutdownTimeout {
		t.Errorf("Expected shutdown timeout %v, got %v", cfg.Server.ShutdownTimeout, busCfg.ShutdownTimeout)
	}

	broker, err := CreateBroker(&cfg.Credentials)
	if err != nil {
		t.Fatalf("CreateBroker failed: %v", err)
	}
	adapters := CreateAdapters(cfg, nil, broker, nil)
	if len(adapters) != 1 || adapters[0].Protocol() != "D-Bus" {
		t.Errorf("Expected a single D-Bus adapter, got %v", adapters)
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(&Config{})

	if result.Server != nil {
		t.Error("Expected no metrics server when disabled")
	}
	if result.Requests == nil {
		t.Error("Expected no-op request metrics when disabled")
	}
}
