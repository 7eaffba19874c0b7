package bookmarks

import (
	"path/filepath"
	"testing"

	"github.com/rescale-labs/termscp/internal/ferrors"
	"github.com/rescale-labs/termscp/internal/filetransfer"
)

func sftpParams(secret string) filetransfer.FileTransferParams {
	return filetransfer.FileTransferParams{
		ProtocolParams: filetransfer.ProtocolParams{
			Protocol: filetransfer.ProtocolSFTP,
			Generic: &filetransfer.GenericParams{
				Address:  "example.com",
				Port:     22,
				Username: "user",
				Secret:   secret,
			},
		},
		EntryDirectory: "/home/user",
	}
}

func TestSaveLoadRoundTripWithSecret(t *testing.T) {
	store := NewStoreAt(filepath.Join(t.TempDir(), "bookmarks.toml"))

	if err := store.Save("prod", sftpParams("s3cr3t"), true); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("prod")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Generic.Secret != "s3cr3t" {
		t.Errorf("expected secret to round-trip, got %q", got.Generic.Secret)
	}
	if got.Generic.Address != "example.com" {
		t.Errorf("expected address to round-trip, got %q", got.Generic.Address)
	}
}

func TestSaveWithoutRememberSecretOmitsSecret(t *testing.T) {
	store := NewStoreAt(filepath.Join(t.TempDir(), "bookmarks.toml"))

	if err := store.Save("prod", sftpParams("s3cr3t"), false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("prod")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Generic.Secret != "" {
		t.Errorf("expected no secret to be stored, got %q", got.Generic.Secret)
	}
}

func TestLoadUnknownBookmarkIsNotFound(t *testing.T) {
	store := NewStoreAt(filepath.Join(t.TempDir(), "bookmarks.toml"))

	_, err := store.Load("nope")
	if !ferrors.Is(err, ferrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeleteAndList(t *testing.T) {
	store := NewStoreAt(filepath.Join(t.TempDir(), "bookmarks.toml"))

	for _, name := range []string{"b", "a", "c"} {
		if err := store.Save(name, sftpParams(""), false); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
	}

	names, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d (%v)", len(want), len(names), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected sorted names %v, got %v", want, names)
			break
		}
	}

	if err := store.Delete("b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	names, _ = store.List()
	for _, n := range names {
		if n == "b" {
			t.Errorf("expected b to be deleted, still present in %v", names)
		}
	}
}

func TestRecentsBoundedFIFO(t *testing.T) {
	store := NewStoreAt(filepath.Join(t.TempDir(), "bookmarks.toml"))

	for i := 0; i < MaxRecents+5; i++ {
		p := sftpParams("")
		p.Generic.Address = filepath.Join("host", string(rune('a'+i)))
		if err := store.PushRecent(p); err != nil {
			t.Fatalf("PushRecent: %v", err)
		}
	}

	recents, err := store.Recents()
	if err != nil {
		t.Fatalf("Recents: %v", err)
	}
	if len(recents) != MaxRecents {
		t.Fatalf("expected %d recents, got %d", MaxRecents, len(recents))
	}
	if recents[0].Generic.Secret != "" {
		t.Errorf("recents must never carry a secret")
	}
}

func TestS3BookmarkRoundTrip(t *testing.T) {
	store := NewStoreAt(filepath.Join(t.TempDir(), "bookmarks.toml"))

	params := filetransfer.FileTransferParams{
		ProtocolParams: filetransfer.ProtocolParams{
			Protocol: filetransfer.ProtocolS3,
			S3: &filetransfer.S3Params{
				Bucket:    "my-bucket",
				Region:    "us-east-1",
				AccessKey: "AKIA...",
				SecretKey: "shh",
			},
		},
	}

	if err := store.Save("s3-bucket", params, true); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("s3-bucket")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.S3 == nil || got.S3.SecretKey != "shh" {
		t.Errorf("expected S3 secret key to round-trip, got %+v", got.S3)
	}
	if got.S3.Bucket != "my-bucket" {
		t.Errorf("expected bucket to round-trip, got %q", got.S3.Bucket)
	}
}
