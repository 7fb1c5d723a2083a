// Package credentials provides CredentialBroker implementations.
//
// StaticBroker serves a bundle fixed at startup. FileBroker reads the bundle
// from a YAML file on demand, so an external tool can refresh tokens without
// restarting the service.
package credentials

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/provider"
	"gopkg.in/yaml.v3"
)

// Bundle is the on-disk and config form of a credential bundle.
type Bundle struct {
	Method      string `mapstructure:"method" yaml:"method" validate:"omitempty,oneof=none oauth2 password"`
	AccessToken string `mapstructure:"access_token" yaml:"access_token,omitempty"`
	Username    string `mapstructure:"username" yaml:"username,omitempty"`
	Password    string `mapstructure:"password" yaml:"password,omitempty"`
	Host        string `mapstructure:"host" yaml:"host,omitempty"`
}

// Credentials converts b. It fails when the fields required by the method
// are missing.
func (b Bundle) Credentials() (provider.Credentials, error) {
	switch strings.ToLower(b.Method) {
	case "", "none":
		return provider.Credentials{Method: provider.CredentialsNone}, nil
	case "oauth2":
		if b.AccessToken == "" {
			return provider.Credentials{}, fmt.Errorf("oauth2 credentials need an access_token")
		}
		return provider.Credentials{Method: provider.CredentialsOAuth2, AccessToken: b.AccessToken}, nil
	case "password":
		if b.Username == "" {
			return provider.Credentials{}, fmt.Errorf("password credentials need a username")
		}
		return provider.Credentials{
			Method:   provider.CredentialsPassword,
			Username: b.Username,
			Password: b.Password,
			Host:     b.Host,
		}, nil
	default:
		return provider.Credentials{}, fmt.Errorf("unknown credential method %q", b.Method)
	}
}

// StaticBroker always has the same bundle. Authenticate is a no-op.
type StaticBroker struct {
	creds provider.Credentials
}

// NewStatic creates a broker for b.
func NewStatic(b Bundle) (*StaticBroker, error) {
	creds, err := b.Credentials()
	if err != nil {
		return nil, err
	}
	return &StaticBroker{creds: creds}, nil
}

func (s *StaticBroker) HasCredentials() bool { return true }

func (s *StaticBroker) Credentials() provider.Credentials { return s.creds }

func (s *StaticBroker) Authenticate(bool, bool) *future.Future[struct{}] {
	return future.Ready(struct{}{})
}

// FileBroker loads its bundle from a YAML file. Concurrent Authenticate
// calls share one read of the file.
type FileBroker struct {
	path string

	mu       sync.Mutex
	creds    *provider.Credentials
	inflight *future.Future[struct{}]
}

// NewFile creates a broker reading path. The file is not read until the
// first Authenticate.
func NewFile(path string) *FileBroker {
	return &FileBroker{path: path}
}

func (f *FileBroker) HasCredentials() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds != nil
}

func (f *FileBroker) Credentials() provider.Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creds == nil {
		return provider.Credentials{}
	}
	return *f.creds
}

// Authenticate reads the bundle file. forceRefresh discards the cached
// bundle first, so a failed refresh leaves the broker without credentials.
// interactive is ignored: there is nobody to prompt.
func (f *FileBroker) Authenticate(interactive, forceRefresh bool) *future.Future[struct{}] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if forceRefresh {
		f.creds = nil
	}
	if f.inflight != nil {
		return f.inflight
	}
	if f.creds != nil {
		return future.Ready(struct{}{})
	}

	out, p := future.New[struct{}]()
	f.inflight = out
	go func() {
		creds, err := f.load()

		f.mu.Lock()
		f.inflight = nil
		if err == nil {
			f.creds = &creds
		}
		f.mu.Unlock()

		if err != nil {
			logger.Warn("Failed to load credentials from %s: %v", f.path, err)
			p.Reject(err)
			return
		}
		logger.Debug("Loaded credentials from %s", f.path)
		p.Resolve(struct{}{})
	}()
	return out
}

func (f *FileBroker) load() (provider.Credentials, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return provider.Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return provider.Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	return b.Credentials()
}

// WriteFile stores b at path with owner-only permissions.
func WriteFile(path string, b Bundle) error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
