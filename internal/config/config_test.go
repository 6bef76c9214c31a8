package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()

	raw := `
api-base-url: https://api.staging.mapgrid.io/v2
proxy-url: socks5://127.0.0.1:1080
debug: true
oauth:
  client-id: mapgrid-dev
  callback-port: 50000
  scopes:
    - profile
    - maps:read
store:
  backend: file
  credential-file: /tmp/mapgrid/credential.json
log:
  file: /tmp/mapgrid/cli.log
  max-size-mb: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIBaseURL != "https://api.staging.mapgrid.io/v2" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.OAuth.ClientID != "mapgrid-dev" || cfg.OAuth.CallbackPort != 50000 {
		t.Errorf("OAuth = %+v", cfg.OAuth)
	}
	if len(cfg.OAuth.Scopes) != 2 || cfg.OAuth.Scopes[1] != "maps:read" {
		t.Errorf("Scopes = %v", cfg.OAuth.Scopes)
	}
	if cfg.Store.Backend != StoreBackendFile {
		t.Errorf("Store.Backend = %q", cfg.Store.Backend)
	}
	if cfg.Store.CredentialFile != "/tmp/mapgrid/credential.json" {
		t.Errorf("Store.CredentialFile = %q", cfg.Store.CredentialFile)
	}
	if cfg.Log.File != "/tmp/mapgrid/cli.log" || cfg.Log.MaxSizeMB != 5 {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.CredentialFile == "" {
		t.Error("default credential file not applied")
	}
	if cfg.Store.KeyringService != "mapgrid" {
		t.Errorf("KeyringService = %q, want mapgrid", cfg.Store.KeyringService)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("debug: [not-a-bool"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() on malformed YAML succeeded, want error")
	}
}
