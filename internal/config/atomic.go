package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// SaveAtomic TOML-encodes v to a sibling temp file then renames it over
// path, so a concurrent reader always observes either the pre- or
// post-state, never a truncated document (spec §5, §7 property 7).
// Exported so internal/bookmarks can reuse the same persistence
// primitive as Config/Theme.
//
// Grounded on the teacher's internal/config/apiconfig.go SaveAPIConfig
// (temp-file-then-rename), adapted from ini to TOML encoding.
func SaveAtomic(path string, v any) error {
	return saveAtomic(path, v)
}

func saveAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	enc := toml.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// loadTOML decodes the TOML document at path into v. Returns
// os.ErrNotExist (unwrapped-compatible) if the file is absent so callers
// can fall back to defaults.
func loadTOML(path string, v any) error {
	_, err := toml.DecodeFile(path, v)
	return err
}

// LoadTOML is the exported form of loadTOML, reused by
// internal/bookmarks so the bookmarks document shares the same decode
// path (and the same os.IsNotExist-detectable error shape) as
// Config/Theme.
func LoadTOML(path string, v any) error {
	return loadTOML(path, v)
}

// QuarantineCorrupt renames the document at path aside to
// "<path>.corrupt.<unix-timestamp>" so a reinitialized default document
// can be written in its place without losing the unreadable original
// (spec §7: a corrupt config/bookmarks/theme file must not block
// startup, and must not be silently destroyed).
func QuarantineCorrupt(path string) (string, error) {
	quarantined := fmt.Sprintf("%s.corrupt.%d", path, time.Now().Unix())
	if err := os.Rename(path, quarantined); err != nil {
		return "", err
	}
	return quarantined, nil
}
