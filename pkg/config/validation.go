package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittostorage/pkg/tombstone"
	badgerstore "github.com/marmos91/dittostorage/pkg/tombstone/badger"
	"github.com/mitchellh/mapstructure"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Roots become item identities, so two roots may not share a path or
	// sit inside one another.
	paths := make([]string, 0, len(cfg.Storage.Roots))
	for i, root := range cfg.Storage.Roots {
		abs, err := filepath.Abs(root.Path)
		if err != nil {
			return fmt.Errorf("storage.roots[%d]: invalid path %q: %w", i, root.Path, err)
		}
		abs = filepath.ToSlash(abs)
		for j, other := range paths {
			if overlaps(abs, other) {
				return fmt.Errorf("storage.roots[%d]: path %q overlaps storage.roots[%d]", i, root.Path, j)
			}
		}
		paths = append(paths, abs)
	}

	accounts := make(map[string]bool)
	for i, root := range cfg.Storage.Roots {
		if root.AccountID == "" {
			continue
		}
		if accounts[root.AccountID] {
			return fmt.Errorf("storage.roots[%d]: duplicate account_id %q", i, root.AccountID)
		}
		accounts[root.AccountID] = true
	}

	if cfg.Tombstones.Type == "badger" {
		var badgerCfg badgerstore.Config
		if err := mapstructure.Decode(cfg.Tombstones.Badger, &badgerCfg); err != nil {
			return fmt.Errorf("tombstones.badger: %w", err)
		}
		if badgerCfg.DBPath == "" {
			return fmt.Errorf("tombstones.badger: path is required")
		}
	}

	if cfg.Credentials.Type == "static" {
		if _, err := cfg.Credentials.Static.Credentials(); err != nil {
			return fmt.Errorf("credentials.static: %w", err)
		}
	}

	r := cfg.Server.RateLimit
	if r.PerSenderRequestsPerSecond > 0 && r.RequestsPerSecond > 0 && r.PerSenderRequestsPerSecond > r.RequestsPerSecond {
		return fmt.Errorf("server.rate_limit: per_sender_requests_per_second (%d) exceeds requests_per_second (%d)",
			r.PerSenderRequestsPerSecond, r.RequestsPerSecond)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics: port is required when metrics are enabled")
	}

	return nil
}

func overlaps(a, b string) bool {
	return a == b || tombstone.IsBeneath(a, b) || tombstone.IsBeneath(b, a)
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
