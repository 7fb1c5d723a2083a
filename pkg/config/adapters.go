package config

import (
	"github.com/marmos91/dittostorage/pkg/adapter"
	"github.com/marmos91/dittostorage/pkg/adapter/dbus"
	"github.com/marmos91/dittostorage/pkg/dispatch"
	"github.com/marmos91/dittostorage/pkg/metrics"
	"github.com/marmos91/dittostorage/pkg/provider"
)

// BusAdapterConfig maps the bus and server sections onto the D-Bus adapter
// settings.
func BusAdapterConfig(cfg *Config) dbus.Config {
	return dbus.Config{
		Bus:               cfg.Bus.Type,
		Address:           cfg.Bus.Address,
		Name:              cfg.Bus.Name,
		ObjectPath:        cfg.Bus.ObjectPath,
		MetadataKeys:      cfg.Bus.MetadataKeys,
		InactivityTimeout: cfg.Server.InactivityTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		RateLimit:         cfg.Server.RateLimit,
	}
}

// CreateAdapters creates the protocol adapters serving prov.
func CreateAdapters(
	cfg *Config,
	prov provider.Provider,
	broker dispatch.CredentialBroker,
	requestMetrics metrics.RequestMetrics,
) []adapter.Adapter {
	return []adapter.Adapter{
		dbus.New(BusAdapterConfig(cfg), prov, broker, requestMetrics),
	}
}
