package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rescale-labs/termscp/internal/host"
)

func mustHost(t *testing.T, dir string) *host.Host {
	t.Helper()
	h, err := host.New(dir)
	if err != nil {
		t.Fatalf("host.New: %v", err)
	}
	return h
}

func TestEngineCopiesSingleFile(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	eng := &Engine{Src: mustHost(t, srcDir), Dst: mustHost(t, dstDir)}
	res, err := eng.Run(context.Background(), filepath.Join(srcDir, "a.txt"), filepath.Join(dstDir, "b.txt"), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FilesCopied != 1 {
		t.Errorf("expected 1 file copied, got %d", res.FilesCopied)
	}
	got, err := os.ReadFile(filepath.Join(dstDir, "b.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("expected content to round-trip, got %q", got)
	}
}

func TestEngineRecursiveDirectoryCopy(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(srcDir, "tree", "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "tree", "top.txt"), []byte("top"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "tree", "sub", "nested.txt"), []byte("nested"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	eng := &Engine{Src: mustHost(t, srcDir), Dst: mustHost(t, dstDir)}
	res, err := eng.Run(context.Background(), filepath.Join(srcDir, "tree"), dstDir, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FilesCopied != 2 {
		t.Errorf("expected 2 files copied, got %d", res.FilesCopied)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "tree", "top.txt")); err != nil {
		t.Errorf("expected tree/top.txt to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "tree", "sub", "nested.txt")); err != nil {
		t.Errorf("expected tree/sub/nested.txt to exist: %v", err)
	}
}

func TestEngineNameConflictSkip(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dstDir, "a.txt"), []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	eng := &Engine{Src: mustHost(t, srcDir), Dst: mustHost(t, dstDir)}
	opts := Options{
		PromptOnOverwrite: true,
		Resolve: func(ctx context.Context, path string) (ConflictDecision, string) {
			return Skip, ""
		},
	}
	_, err := eng.Run(context.Background(), filepath.Join(srcDir, "a.txt"), filepath.Join(dstDir, "a.txt"), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dstDir, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "old" {
		t.Errorf("expected skip to preserve existing content, got %q", got)
	}
}

func TestEngineCancellation(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("content"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	eng := &Engine{Src: mustHost(t, srcDir), Dst: mustHost(t, dstDir)}
	opts := Options{Cancelled: func() bool { return true }}
	_, err := eng.Run(context.Background(), filepath.Join(srcDir, "a.txt"), filepath.Join(dstDir, "a.txt"), opts)
	if _, ok := err.(*Cancelled); !ok {
		t.Fatalf("expected *Cancelled, got %T: %v", err, err)
	}
}

func TestEngineProgressTicksFire(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	payload := make([]byte, 200*1024)
	if err := os.WriteFile(filepath.Join(srcDir, "big.bin"), payload, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var ticks int
	eng := &Engine{Src: mustHost(t, srcDir), Dst: mustHost(t, dstDir)}
	opts := Options{OnProgress: func(path string, done, total int64) { ticks++ }}
	_, err := eng.Run(context.Background(), filepath.Join(srcDir, "big.bin"), filepath.Join(dstDir, "big.bin"), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ticks < 2 {
		t.Errorf("expected at least 2 progress ticks for a %d-byte file, got %d", len(payload), ticks)
	}
}
