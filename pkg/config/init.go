package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoStorage Configuration File
#
# Every setting can be overridden with an environment variable named after
# its key, e.g. DITTOSTORAGE_LOGGING_LEVEL=DEBUG or
# DITTOSTORAGE_SERVER_INACTIVITY_TIMEOUT=5m.
`

// sectionComments are written above each top-level section.
var sectionComments = map[string]string{
	"logging":     "Log level (DEBUG, INFO, WARN, ERROR), format (text, json) and output (stdout, stderr or a file path)",
	"server":      "Service lifecycle and request handling.\ninactivity_timeout: exit after this long without requests or transfers (0 = never)\nrate_limit: zero rates disable limiting",
	"bus":         "D-Bus connection. type: session, system or address (address required)",
	"storage":     "Directories exposed to clients. Each root is a separate account;\nmissing directories are created on start",
	"tombstones":  "Where deleted-item markers are kept (memory or badger)",
	"credentials": "Credential broker. type: static (bundle below) or file (bundle read from path)\nmethod: none, oauth2 (access_token) or password (username, password, host)",
	"metrics":     "Prometheus endpoint served at :port/metrics",
}

// InitConfig writes the default configuration to the default location.
// It fails if a file already exists there unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and a comment
// above each top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// doc is a mapping node: keys and values alternate.
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return buf.String(), nil
}
