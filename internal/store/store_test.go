package store

import (
	"errors"
	"testing"
	"time"
)

type memoryBackend struct {
	cred    *Credential
	loadErr error
	saveErr error
}

func (m *memoryBackend) Name() string { return "memory" }

func (m *memoryBackend) Load() (*Credential, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.cred == nil {
		return nil, ErrNotFound
	}
	return m.cred, nil
}

func (m *memoryBackend) Save(cred *Credential) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cred = cred
	return nil
}

func (m *memoryBackend) Remove() error {
	m.cred = nil
	return nil
}

func newTestStore(backend Backend, now time.Time) *TokenStore {
	s := NewTokenStore(backend)
	s.now = func() time.Time { return now }
	return s
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{}
	s := newTestStore(backend, time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC))

	if err := s.Save("abc", 3600); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	token, ok := s.Retrieve()
	if !ok || token != "abc" {
		t.Fatalf("Retrieve() = %q, %v, want %q, true", token, ok, "abc")
	}
}

func TestRetrieveExpired(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{}
	s := newTestStore(backend, time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC))
	if err := s.Save("abc", 3600); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Advance past the expiry day; the record must be invisible without
	// an explicit Remove.
	s.now = func() time.Time { return time.Date(2026, 3, 12, 0, 0, 1, 0, time.UTC) }
	if token, ok := s.Retrieve(); ok {
		t.Fatalf("Retrieve() after expiry = %q, true, want absent", token)
	}
	if backend.cred == nil {
		t.Fatal("expired credential was evicted on read; expected it untouched")
	}
}

func TestTokenExpiringTodayIsInvalid(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	backend := &memoryBackend{cred: &Credential{
		Token:      "abc",
		ExpiryDate: "2026-03-10",
	}}
	s := newTestStore(backend, now)

	if token, ok := s.Retrieve(); ok {
		t.Fatalf("Retrieve() = %q, true; token expiring today must be invalid", token)
	}
}

func TestSaveRoundsLifetimeUpToFullDays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		expirySeconds int
		wantExpiry    string
	}{
		{"one hour rounds to one day", 3600, "2026-03-11"},
		{"exactly one day", 86400, "2026-03-11"},
		{"one day plus a second", 86401, "2026-03-12"},
		{"thirty days", 30 * 86400, "2026-04-09"},
		{"zero lifetime still stores a day", 0, "2026-03-11"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			backend := &memoryBackend{}
			s := newTestStore(backend, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
			if err := s.Save("tok", tt.expirySeconds); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if backend.cred.ExpiryDate != tt.wantExpiry {
				t.Errorf("expiry date = %s, want %s", backend.cred.ExpiryDate, tt.wantExpiry)
			}
		})
	}
}

func TestRemoveThenRetrieve(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{}
	s := newTestStore(backend, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	if err := s.Save("abc", 7*86400); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	s.Remove()
	if token, ok := s.Retrieve(); ok {
		t.Fatalf("Retrieve() after Remove() = %q, true, want absent", token)
	}

	// Removing again must stay silent.
	s.Remove()
}

func TestRetrieveMalformedRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cred *Credential
	}{
		{"empty token", &Credential{Token: "", ExpiryDate: "2099-01-01"}},
		{"empty expiry", &Credential{Token: "abc", ExpiryDate: ""}},
		{"garbage expiry", &Credential{Token: "abc", ExpiryDate: "not-a-date"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestStore(&memoryBackend{cred: tt.cred}, time.Now())
			if token, ok := s.Retrieve(); ok {
				t.Fatalf("Retrieve() = %q, true, want absent", token)
			}
		})
	}
}

func TestRetrieveBackendFailure(t *testing.T) {
	t.Parallel()

	s := newTestStore(&memoryBackend{loadErr: errors.New("backend down")}, time.Now())
	if token, ok := s.Retrieve(); ok {
		t.Fatalf("Retrieve() = %q, true, want absent on backend failure", token)
	}
}
