package transfer

import (
	"context"
	"testing"
)

func TestNewManager(t *testing.T) {
	if NewManager() == nil {
		t.Fatal("NewManager returned nil")
	}
}

func TestBeginAndComplete(t *testing.T) {
	mgr := NewManager()

	tr, err := mgr.Begin(1024*1024*1024, 1)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if tr.GetID() == "" {
		t.Error("Transfer ID should not be empty")
	}
	if !mgr.GetStats().Running {
		t.Error("expected Running after Begin")
	}

	tr.Complete()
	if mgr.GetStats().Running {
		t.Error("expected not Running after Complete")
	}

	// Multiple Complete() calls should be safe.
	tr.Complete()
}

func TestBeginRejectsConcurrentTransfer(t *testing.T) {
	mgr := NewManager()

	tr, err := mgr.Begin(1024, 1)
	if err != nil {
		t.Fatalf("first Begin failed: %v", err)
	}
	defer tr.Complete()

	if _, err := mgr.Begin(1024, 1); err != ErrBusy {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestBeginAllowsSequentialTransfers(t *testing.T) {
	mgr := NewManager()

	for i := 0; i < 3; i++ {
		tr, err := mgr.Begin(1024, 1)
		if err != nil {
			t.Fatalf("Begin %d failed: %v", i, err)
		}
		tr.Complete()
	}
}

func TestRecordThroughput(t *testing.T) {
	mgr := NewManager()
	tr, err := mgr.Begin(1024*1024*1024, 1)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tr.Complete()

	tr.RecordThroughput(10 * 1024 * 1024)
	if tr.Throughput() != 10*1024*1024 {
		t.Errorf("Throughput() = %v, want %v", tr.Throughput(), 10*1024*1024)
	}
}

func TestTransferString(t *testing.T) {
	mgr := NewManager()
	tr, err := mgr.Begin(1024, 1)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tr.Complete()

	if tr.String() == "" {
		t.Error("Transfer.String() should not be empty")
	}
}

func TestRunWithManagerReleasesSlotOnError(t *testing.T) {
	mgr := NewManager()
	boom := errBoom{}

	err := RunWithManager(context.Background(), mgr, 1024, 1, func(ctx context.Context, tr *Transfer) error {
		return boom
	})
	if err != boom {
		t.Errorf("expected boom error, got %v", err)
	}
	if mgr.GetStats().Running {
		t.Error("expected slot released after fn returns an error")
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestGenerateTransferID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateTransferID()
		if ids[id] {
			t.Errorf("Duplicate transfer ID generated: %s", id)
		}
		ids[id] = true
	}
	if len(ids) != 100 {
		t.Errorf("Expected 100 unique IDs, got %d", len(ids))
	}
}
