// Package store persists the MapGrid bearer credential across sessions.
// It exposes a single TokenStore facade over pluggable backends: the OS
// keyring where one is available, a plain-text file fallback, and a
// PostgreSQL backend for shared deployments.
package store

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// expiryDayFormat is the on-disk representation of the credential expiry day.
const expiryDayFormat = "2006-01-02"

// ErrNotFound indicates that the backend holds no credential record.
var ErrNotFound = errors.New("store: credential not found")

// Credential is the persisted bearer token record. Expiry is tracked at
// day granularity: a token expiring today is already treated as invalid,
// which keeps borderline clock skew from producing a token that dies
// mid-operation.
type Credential struct {
	Token      string `json:"token"`
	ExpiryDate string `json:"expiry_date"`
}

// Backend is a pluggable persistence target for the credential record.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Load returns the stored credential, or ErrNotFound if none exists.
	Load() (*Credential, error)
	// Save persists the credential, replacing any existing record.
	Save(cred *Credential) error
	// Remove deletes the credential record. Removing an absent record is not an error.
	Remove() error
}

// TokenStore wraps a Backend with the expiry policy: tokens are saved with
// an absolute expiry day and handed back only while that day is strictly
// in the future.
type TokenStore struct {
	backend Backend
	now     func() time.Time
}

// NewTokenStore creates a token store over the given backend.
func NewTokenStore(backend Backend) *TokenStore {
	return &TokenStore{
		backend: backend,
		now:     time.Now,
	}
}

// Save computes the absolute expiry day from the lifetime reported by the
// authorization server and persists the credential. Lifetimes shorter than
// a full day round up, so a freshly issued token is always retrievable.
func (s *TokenStore) Save(token string, expirySeconds int) error {
	days := (expirySeconds + 86399) / 86400
	if days < 1 {
		days = 1
	}
	cred := &Credential{
		Token:      token,
		ExpiryDate: s.now().AddDate(0, 0, days).Format(expiryDayFormat),
	}
	if err := s.backend.Save(cred); err != nil {
		return err
	}
	log.Debugf("stored credential in %s backend, valid until %s", s.backend.Name(), cred.ExpiryDate)
	return nil
}

// Retrieve returns the stored token if a credential exists and its expiry
// day is strictly after today. An expired record is reported as absent
// without being evicted; the date comparison alone makes it invisible.
func (s *TokenStore) Retrieve() (string, bool) {
	cred, err := s.backend.Load()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warnf("failed to load credential from %s backend: %v", s.backend.Name(), err)
		}
		return "", false
	}
	if cred.Token == "" || cred.ExpiryDate == "" {
		return "", false
	}
	expiry, err := time.Parse(expiryDayFormat, cred.ExpiryDate)
	if err != nil {
		log.Warnf("stored credential has malformed expiry date %q", cred.ExpiryDate)
		return "", false
	}
	today := s.today()
	if !expiry.After(today) {
		return "", false
	}
	return cred.Token, true
}

// Remove deletes any persisted credential. Backend failures are logged but
// never surfaced; from the caller's point of view removal always succeeds.
func (s *TokenStore) Remove() {
	if err := s.backend.Remove(); err != nil {
		log.Warnf("failed to remove credential from %s backend: %v", s.backend.Name(), err)
	}
}

// today truncates the current time to day granularity in local time.
func (s *TokenStore) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
