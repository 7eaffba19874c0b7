package config

import (
	"path/filepath"
	"testing"
)

func TestGetReturnsDefaultsWhenFileAbsent(t *testing.T) {
	store := NewConfigStoreAt(filepath.Join(t.TempDir(), "config.toml"))

	cfg, err := store.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.DefaultProtocol != "sftp" {
		t.Errorf("expected default protocol sftp, got %q", cfg.DefaultProtocol)
	}
	if !cfg.PromptOnOverwrite {
		t.Errorf("expected PromptOnOverwrite to default true")
	}
}

func TestSaveThenGetRoundTrips(t *testing.T) {
	store := NewConfigStoreAt(filepath.Join(t.TempDir(), "config.toml"))

	cfg := Default()
	cfg.ShowHiddenFiles = true
	cfg.DefaultProtocol = "ftp"
	if err := store.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Force a reload from disk through a second store instance.
	reloaded := NewConfigStoreAt(store.path)
	got, err := reloaded.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.ShowHiddenFiles {
		t.Errorf("expected ShowHiddenFiles to round-trip true")
	}
	if got.DefaultProtocol != "ftp" {
		t.Errorf("expected default protocol ftp, got %q", got.DefaultProtocol)
	}
}

func TestGetCachesAfterFirstLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	store := NewConfigStoreAt(path)

	first, err := store.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	first.TextEditor = "mutated-but-local"

	second, err := store.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if second.TextEditor == "mutated-but-local" {
		t.Errorf("Get should return the cached value, not be aliased by the caller's copy")
	}
}
