package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsCredentialFileChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "credential.json")

	changed := make(chan struct{}, 8)
	w, err := WatchFile(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("WatchFile() error = %v", err)
	}
	defer func() { _ = w.Close() }()

	if err = os.WriteFile(path, []byte(`{"token":"t","expiry_date":"2026-04-01"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for create notification")
	}

	if err = os.Remove(path); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for remove notification")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	changed := make(chan struct{}, 1)
	w, err := WatchFile(filepath.Join(dir, "credential.json"), func() {
		changed <- struct{}{}
	})
	if err != nil {
		t.Fatalf("WatchFile() error = %v", err)
	}
	defer func() { _ = w.Close() }()

	if err = os.WriteFile(filepath.Join(dir, "other.json"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
		t.Fatal("received notification for unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}
