package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestThemeGetReturnsDefaultsWhenFileAbsent(t *testing.T) {
	store := NewThemeStoreAt(filepath.Join(t.TempDir(), "theme.toml"))

	theme, err := store.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if theme.Colors[string(SlotMiscError)] != "Red" {
		t.Errorf("expected default misc-error color Red, got %q", theme.Colors[string(SlotMiscError)])
	}
}

func TestThemeSaveThenGetRoundTrips(t *testing.T) {
	store := NewThemeStoreAt(filepath.Join(t.TempDir(), "theme.toml"))

	theme := DefaultTheme()
	theme.Colors[string(SlotMiscError)] = "#ff0000"
	if err := store.Save(theme); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := NewThemeStoreAt(store.path)
	got, err := reloaded.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Colors[string(SlotMiscError)] != "#ff0000" {
		t.Errorf("expected misc-error to round-trip as #ff0000, got %q", got.Colors[string(SlotMiscError)])
	}
}

func TestThemeImportDropsUnknownSlotsWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imported.toml")
	contents := "[colors]\nmisc-error = \"Blue\"\nnot-a-real-slot = \"Purple\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := NewThemeStoreAt(filepath.Join(t.TempDir(), "theme.toml"))
	if err := store.Import(path); err != nil {
		t.Fatalf("Import: %v", err)
	}

	theme, err := store.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if theme.Colors[string(SlotMiscError)] != "Blue" {
		t.Errorf("expected misc-error Blue, got %q", theme.Colors[string(SlotMiscError)])
	}
	if _, ok := theme.Colors["not-a-real-slot"]; ok {
		t.Errorf("expected unknown slot to be dropped, still present")
	}
	if len(store.Warnings) == 0 {
		t.Errorf("expected a warning for the dropped unknown slot")
	}
}
