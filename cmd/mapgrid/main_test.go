package main

import (
	"testing"

	"github.com/mapgrid-io/mapgrid-cli/internal/config"
)

func TestWatchableCredentialPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{"file backend", config.StoreBackendFile, false},
		{"keyring backend", config.StoreBackendKeyring, true},
		{"postgres backend", config.StoreBackendPostgres, true},
		{"default backend", "", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			cfg.Store.Backend = tt.backend
			cfg.Store.CredentialFile = "/tmp/credential.json"

			path, err := watchableCredentialPath(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("watchableCredentialPath() = %q, want error", path)
				}
				return
			}
			if err != nil {
				t.Fatalf("watchableCredentialPath() error = %v", err)
			}
			if path != cfg.Store.CredentialFile {
				t.Errorf("path = %q, want %q", path, cfg.Store.CredentialFile)
			}
		})
	}
}
