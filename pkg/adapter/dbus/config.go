package dbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dittostorage/internal/ratelimiter"
)

// Bus types accepted in Config.Bus.
const (
	BusSession = "session"
	BusSystem  = "system"
	BusAddress = "address"
)

const (
	DefaultName       = "org.dittostorage.LocalProvider"
	DefaultObjectPath = "/provider"
	Interface         = "org.dittostorage.Provider"
)

// Config holds the D-Bus adapter settings.
//
// Default values (applied by New if zero):
//   - Bus: "session"
//   - Name: org.dittostorage.LocalProvider
//   - ObjectPath: /provider
//   - ShutdownTimeout: 30s
//
// InactivityTimeout of zero keeps the service running forever.
type Config struct {
	// Bus selects the message bus: "session", "system" or "address".
	Bus string `mapstructure:"type" validate:"omitempty,oneof=session system address"`

	// Address is the bus address used when Bus is "address".
	Address string `mapstructure:"address" validate:"required_if=Bus address"`

	// Name is the well-known bus name to own.
	Name string `mapstructure:"name"`

	// ObjectPath is where the provider object is exported.
	ObjectPath string `mapstructure:"object_path" validate:"omitempty,startswith=/"`

	// MetadataKeys are passed to the provider for every item returned.
	// Empty means the default set.
	MetadataKeys []string `mapstructure:"metadata_keys"`

	// InactivityTimeout is how long the service may sit without requests
	// or pending transfers before it exits.
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout" validate:"min=0"`

	// ShutdownTimeout bounds the wait for in-flight requests on shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	RateLimit ratelimiter.Config `mapstructure:"rate_limit"`
}

func (c *Config) applyDefaults() {
	if c.Bus == "" {
		c.Bus = BusSession
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.ObjectPath == "" {
		c.ObjectPath = DefaultObjectPath
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Bus {
	case BusSession, BusSystem:
	case BusAddress:
		if c.Address == "" {
			return fmt.Errorf("bus type %q needs an address", c.Bus)
		}
	default:
		return fmt.Errorf("unknown bus type %q", c.Bus)
	}
	if !strings.HasPrefix(c.ObjectPath, "/") {
		return fmt.Errorf("invalid object path %q", c.ObjectPath)
	}
	if c.InactivityTimeout < 0 {
		return fmt.Errorf("invalid InactivityTimeout %v: must be >= 0", c.InactivityTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}
