// Package config loads the application's YAML configuration file and
// provides structured access to API, OAuth, credential-store, and
// logging settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store backend identifiers.
const (
	StoreBackendKeyring  = "keyring"
	StoreBackendFile     = "file"
	StoreBackendPostgres = "postgres"
)

// Config represents the application's configuration, loaded from a YAML
// file.
type Config struct {
	// APIBaseURL is the MapGrid platform API endpoint.
	APIBaseURL string `yaml:"api-base-url"`

	// ProxyURL is the URL of an optional proxy server for outbound
	// requests. http, https and socks5 schemes are supported.
	ProxyURL string `yaml:"proxy-url"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug"`

	// OAuth configures the interactive sign-in workflow.
	OAuth OAuthConfig `yaml:"oauth"`

	// Store configures credential persistence.
	Store StoreConfig `yaml:"store"`

	// Log configures optional rotating file output.
	Log LogConfig `yaml:"log"`
}

// OAuthConfig holds the sign-in workflow settings.
type OAuthConfig struct {
	// AuthURL overrides the platform authorization endpoint.
	AuthURL string `yaml:"auth-url,omitempty"`
	// TokenURL overrides the platform token endpoint.
	TokenURL string `yaml:"token-url,omitempty"`
	// ClientID overrides the registered OAuth client id.
	ClientID string `yaml:"client-id,omitempty"`
	// Scopes requested during sign-in.
	Scopes []string `yaml:"scopes,omitempty"`
	// CallbackPort is the local port the OAuth redirect lands on.
	CallbackPort int `yaml:"callback-port,omitempty"`
}

// StoreConfig selects and parameterizes the credential backend.
type StoreConfig struct {
	// Backend is one of keyring, file, or postgres. Empty means keyring
	// with a file fallback.
	Backend string `yaml:"backend,omitempty"`
	// KeyringService is the service name used for keyring items.
	KeyringService string `yaml:"keyring-service,omitempty"`
	// CredentialFile is the path of the plain-text credential file.
	CredentialFile string `yaml:"credential-file,omitempty"`
	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres-dsn,omitempty"`
	// PostgresTable overrides the credential table name.
	PostgresTable string `yaml:"postgres-table,omitempty"`
}

// LogConfig holds rotating-file logging settings.
type LogConfig struct {
	// File is the log file path; empty disables file output.
	File string `yaml:"file,omitempty"`
	// MaxSizeMB rotates the file once it exceeds this size.
	MaxSizeMB int `yaml:"max-size-mb,omitempty"`
	// MaxBackups bounds how many rotated files are kept.
	MaxBackups int `yaml:"max-backups,omitempty"`
}

// Load reads and parses the configuration file at path. A missing file
// is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.CredentialFile == "" {
		c.Store.CredentialFile = DefaultCredentialFile()
	}
	if c.Store.KeyringService == "" {
		c.Store.KeyringService = "mapgrid"
	}
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultCredentialFile returns the per-user credential file location
// used by the file backend.
func DefaultCredentialFile() string {
	return filepath.Join(configDir(), "credential.json")
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mapgrid")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mapgrid"
	}
	return filepath.Join(home, ".mapgrid")
}
