package config

import (
	"fmt"

	"github.com/marmos91/dittostorage/pkg/credentials"
	"github.com/marmos91/dittostorage/pkg/dispatch"
)

// CreateBroker creates the credential broker selected by cfg.Type.
//
// Supported types:
//   - "static": the bundle in the static section, fixed for the process lifetime
//   - "file": a YAML bundle read from path on every authentication
func CreateBroker(cfg *CredentialsConfig) (dispatch.CredentialBroker, error) {
	switch cfg.Type {
	case "static":
		broker, err := credentials.NewStatic(cfg.Static)
		if err != nil {
			return nil, fmt.Errorf("static credentials: %w", err)
		}
		return broker, nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file credentials: path is required")
		}
		return credentials.NewFile(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown credentials type: %q", cfg.Type)
	}
}
