// Package config provides TOML configuration file loading and parsing.
// The configuration file lives at ~/.companion-remote/config.toml by default,
// but can be overridden with the --config flag. CLI flags always take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML
// files via struct tags.
type Config struct {
	// DeviceName is the human-readable name announced to connected peers.
	// If empty, defaults to the machine hostname.
	DeviceName string `toml:"device_name"`

	// Platform identifies this device's platform to peers: linux, macos,
	// windows. If empty, detected from the runtime.
	Platform string `toml:"platform"`

	// Port is the preferred listen port for the session server.
	// Default: 48632. If the port is busy the server falls back to an
	// ephemeral one.
	Port int `toml:"port"`

	// TLSCert is the path to the TLS certificate file.
	// Default: ~/.companion-remote/certs/host.crt (auto-generated if missing)
	TLSCert string `toml:"tls_cert"`

	// TLSKey is the path to the TLS key file.
	// Default: ~/.companion-remote/certs/host.key (auto-generated if missing)
	TLSKey string `toml:"tls_key"`

	// DeviceStore is the path to the SQLite database for known devices.
	// Default: ~/.companion-remote/companion.db
	DeviceStore string `toml:"device_store"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement.
	// When true, the host advertises itself on the local network, allowing
	// remotes to discover it without manual IP entry. Discovery only reveals
	// presence; the session PIN is still required to connect.
	// Default: false (disabled for security - must be explicitly enabled)
	MdnsEnabled bool `toml:"mdns_enabled"`

	// QR displays the session credentials as a QR code on startup.
	// Default: false
	QR bool `toml:"qr"`
}

// Validate checks field values that have meaningful bounds. Zero values
// mean "use default" and are always valid.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid config: port = %d, must be between 0 and 65535", c.Port)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config: log_level = %q, must be one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

// DefaultConfigPath returns the default config file location:
// ~/.companion-remote/config.toml. Returns an error only if the user's
// home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".companion-remote", "config.toml"), nil
}

// WriteDefault creates a config file with sensible defaults at the given path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string, deviceName string) error {
	// Check if file already exists - never overwrite
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, nothing to do
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Build minimal TOML config.
	// Using raw string to control formatting exactly
	content := fmt.Sprintf(`# Companion configuration
# Created on first 'companion host' run

# Name announced to connected remotes
device_name = %q

# Preferred listen port (falls back to an ephemeral port if busy)
port = %d
`, deviceName, DefaultPort)

	// Write with restrictive permissions (owner read/write only)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location
//     (~/.companion-remote/config.toml). Returns an empty Config without
//     error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		// This allows hosting without any config file.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			// Can't determine home dir, return empty config
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			// Default config doesn't exist, that's fine
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		// This matches user expectation: if they specify a config file, it should exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	// Parse the TOML file. Any parse error is fatal since the user expects
	// the config to be applied.
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
