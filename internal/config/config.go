// Package config provides TOML configuration file loading and parsing for the
// uplink server. The configuration file lives at ~/.agentdeck/uplink.toml by
// default, but can be overridden with the --config flag. CLI flags always take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the uplink configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Addr is the host:port for the uplink server.
	// Default: 127.0.0.1:7465
	Addr string `toml:"addr"`

	// RequireAPIKey enables shared-secret authentication for WebSocket
	// connections. When false, any client is admitted.
	// Default: false
	RequireAPIKey bool `toml:"require_api_key"`

	// APIKey is the shared secret clients must present as the apiKey
	// query parameter. Ignored when RequireAPIKey is false.
	APIKey string `toml:"api_key"`

	// APIKeyHash is a bcrypt hash of the shared secret, as produced by
	// 'uplink hash-key'. When set, it takes precedence over APIKey so the
	// plaintext secret never has to live in the config file.
	APIKeyHash string `toml:"api_key_hash"`

	// TLSCert is the path to the TLS certificate file.
	// When both TLSCert and TLSKey are set, the server only accepts
	// HTTPS/WSS connections.
	TLSCert string `toml:"tls_cert"`

	// TLSKey is the path to the TLS private key file.
	TLSKey string `toml:"tls_key"`

	// DBPath is the path to the SQLite database for the action invocation
	// log. Default: ~/.agentdeck/uplink.db. Use ":memory:" for an
	// in-memory database, or "none" to disable the log entirely.
	DBPath string `toml:"db_path"`

	// RequestTimeoutMs bounds action handler execution in milliseconds.
	// 0 disables the timeout, which matches the reference behavior.
	// Default: 0
	RequestTimeoutMs int `toml:"request_timeout_ms"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement.
	// When true, the uplink advertises itself on the local network,
	// allowing orchestrators to discover it without manual IP entry.
	// Discovery only reveals presence; the API key is still required.
	// Default: false (disabled for security - must be explicitly enabled)
	MdnsEnabled bool `toml:"mdns_enabled"`

	// LogFile is a path for log output. Empty means stderr.
	LogFile string `toml:"log_file"`

	// QR displays the connect URL as a QR code during startup.
	// Default: false
	QR bool `toml:"qr"`
}

// DefaultAddr is the address the server binds when none is configured.
const DefaultAddr = "127.0.0.1:7465"

// ApplyDefaults fills zero-valued fields with their documented defaults.
// CLI flag handling calls this after layering flags over file values.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.DBPath == "" {
		if path, err := DefaultDBPath(); err == nil {
			c.DBPath = path
		} else {
			c.DBPath = ":memory:"
		}
	}
}

// DefaultConfigPath returns the default config file location: ~/.agentdeck/uplink.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".agentdeck", "uplink.toml"), nil
}

// DefaultDBPath returns the default invocation log location: ~/.agentdeck/uplink.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".agentdeck", "uplink.db"), nil
}

// WriteDefault creates a config file with safe defaults at the given path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	// Check if file already exists - never overwrite
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, nothing to do
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Build minimal TOML config with safe defaults.
	// Using raw string to control formatting exactly.
	content := `# agentdeck uplink configuration
# Created by 'uplink serve'

# Loopback only by default; use 0.0.0.0:7465 for LAN access
addr = "127.0.0.1:7465"

# Require an API key for security when exposed beyond loopback
require_api_key = false
`

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
//     (~/.agentdeck/uplink.toml). Returns an empty Config without error if
//     the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		// This allows the server to start without any config file.
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

	return cfg, nil
}
