package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBusy is returned by Manager.Begin when a transfer is already
// running; spec §5 permits exactly one Transferring{job} at a time.
var ErrBusy = errors.New("transfer: another transfer is already running")

// Manager serializes transfer execution: termscp runs one copy/move
// job at a time (spec §5), so Manager is a single-slot gate rather
// than the teacher's thread-pool allocator. It exists mainly to give
// activities and the CLI a single place to ask "is a transfer
// running?" and to hand each job a transfer ID (the Queue assigns its
// own task IDs separately).
type Manager struct {
	mu      sync.Mutex
	current *Transfer
}

// NewManager creates an idle transfer manager.
func NewManager() *Manager {
	return &Manager{}
}

// Begin reserves the single transfer slot for a new job. It returns
// ErrBusy if a transfer is already in flight.
func (m *Manager) Begin(fileSize int64, totalFiles int) (*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, ErrBusy
	}

	t := &Transfer{
		id:         generateTransferID(),
		fileSize:   fileSize,
		totalFiles: totalFiles,
		mgr:        m,
	}
	m.current = t
	return t, nil
}

// GetStats returns current transfer manager statistics.
func (m *Manager) GetStats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{Running: m.current != nil}
}

// ManagerStats holds statistics about the transfer manager.
type ManagerStats struct {
	Running bool
}

// Transfer represents the currently-running copy/move job.
type Transfer struct {
	id         string
	fileSize   int64
	totalFiles int
	throughput float64

	mgr       *Manager
	mu        sync.Mutex
	completed bool
}

// RecordThroughput records the latest observed throughput for this
// transfer, for display in the TUI's Transferring{job} sub-state.
func (t *Transfer) RecordThroughput(bytesPerSecond float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.throughput = bytesPerSecond
}

// Throughput returns the last recorded throughput.
func (t *Transfer) Throughput() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.throughput
}

// Complete releases the transfer slot. Safe to call more than once.
func (t *Transfer) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed {
		return
	}
	t.completed = true

	t.mgr.mu.Lock()
	if t.mgr.current == t {
		t.mgr.current = nil
	}
	t.mgr.mu.Unlock()
}

// GetID returns the transfer ID.
func (t *Transfer) GetID() string {
	return t.id
}

// String returns a string representation of the transfer.
func (t *Transfer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("Transfer[id=%s files=%d size=%d completed=%v]",
		t.id, t.totalFiles, t.fileSize, t.completed)
}

// RunWithManager reserves the single transfer slot, runs fn with a
// *Transfer handle, and releases the slot once fn returns regardless
// of outcome.
func RunWithManager(ctx context.Context, m *Manager, fileSize int64, totalFiles int, fn func(ctx context.Context, t *Transfer) error) error {
	t, err := m.Begin(fileSize, totalFiles)
	if err != nil {
		return err
	}
	defer t.Complete()
	return fn(ctx, t)
}

var (
	transferCounter uint64
	transferMu      sync.Mutex
)

// generateTransferID generates a unique transfer ID.
func generateTransferID() string {
	transferMu.Lock()
	defer transferMu.Unlock()
	transferCounter++
	return fmt.Sprintf("transfer-%d", transferCounter)
}
