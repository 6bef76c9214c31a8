package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const keyringCredentialKey = "credential"

// KeyringBackend stores the credential in the OS credential manager
// (macOS Keychain, Windows Credential Manager, or the freedesktop Secret
// Service) via the keyring library.
type KeyringBackend struct {
	ring keyring.Keyring
}

// OpenKeyring opens the platform keyring under the given service name.
// Callers should fall back to the file backend when this fails; headless
// hosts frequently have no secret service running.
func OpenKeyring(service string) (*KeyringBackend, error) {
	if service == "" {
		service = "mapgrid"
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              service,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return &KeyringBackend{ring: ring}, nil
}

// Name identifies the backend in logs.
func (k *KeyringBackend) Name() string { return "keyring" }

// Load fetches and decodes the credential item.
func (k *KeyringBackend) Load() (*Credential, error) {
	item, err := k.ring.Get(keyringCredentialKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read keyring item: %w", err)
	}
	var cred Credential
	if err = json.Unmarshal(item.Data, &cred); err != nil {
		return nil, fmt.Errorf("parse keyring item: %w", err)
	}
	return &cred, nil
}

// Save writes the credential item, replacing any existing one.
func (k *KeyringBackend) Save(cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	item := keyring.Item{
		Key:   keyringCredentialKey,
		Label: "MapGrid API credential",
		Data:  data,
	}
	if err = k.ring.Set(item); err != nil {
		return fmt.Errorf("write keyring item: %w", err)
	}
	return nil
}

// Remove deletes the credential item if present.
func (k *KeyringBackend) Remove() error {
	if err := k.ring.Remove(keyringCredentialKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove keyring item: %w", err)
	}
	return nil
}
