// Package transfer tracks and runs the copy/move jobs activities queue
// against a filetransfer.FileTransfer pair (spec §4.3, "Transferring{job}"
// sub-state; spec §5, single-threaded cooperative execution model).
package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TaskType indicates whether a task is an upload or download.
type TaskType string

const (
	TaskTypeUpload   TaskType = "upload"
	TaskTypeDownload TaskType = "download"
)

// TaskState represents the current state of a transfer task.
type TaskState string

const (
	TaskQueued       TaskState = "queued"       // Waiting for the single transfer slot
	TaskInitializing TaskState = "initializing" // Acquired the slot, opening streams
	TaskActive       TaskState = "active"       // Actually transferring bytes
	TaskCompleted    TaskState = "completed"    // Successfully completed
	TaskFailed       TaskState = "failed"       // Failed with error
	TaskCancelled    TaskState = "cancelled"    // Cancelled by user
)

// TransferTask represents a single upload or download job in the queue.
// Thread-safe: use the provided methods to update state.
type TransferTask struct {
	ID   string   // Unique task ID
	Type TaskType // Upload or download

	Name string // Display name (filename or directory name)
	Source string // Source path
	Dest   string // Destination path
	Size   int64  // Total byte size; -1 if unknown

	State    TaskState // Current state
	Progress float64   // 0.0 to 1.0
	Speed    float64   // bytes/sec, EMA-smoothed
	Error    error     // Error if failed

	lastBytes      int64
	lastUpdateTime time.Time

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTransferTask creates a new transfer task with the given parameters.
// The task starts in TaskQueued state.
func NewTransferTask(taskType TaskType, name, source, dest string, size int64) *TransferTask {
	ctx, cancel := context.WithCancel(context.Background())
	return &TransferTask{
		ID:        generateTaskID(),
		Type:      taskType,
		Name:      name,
		Source:    source,
		Dest:      dest,
		Size:      size,
		State:     TaskQueued,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// GetState returns the current state (thread-safe).
func (t *TransferTask) GetState() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.State
}

// SetState updates the task state (thread-safe).
func (t *TransferTask) SetState(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.State = state
	if state == TaskActive && t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	if state == TaskCompleted || state == TaskFailed || state == TaskCancelled {
		t.CompletedAt = time.Now()
	}
}

// GetProgress returns current progress (thread-safe).
func (t *TransferTask) GetProgress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Progress
}

// UpdateProgressWithBytes updates progress and speed using EMA smoothing
// (alpha=0.25), keyed off bytesTransferred/totalBytes deltas.
func (t *TransferTask) UpdateProgressWithBytes(bytesTransferred, totalBytes int64) {
	if totalBytes <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.Progress = float64(bytesTransferred) / float64(totalBytes)

	if t.lastBytes == 0 && bytesTransferred > 0 {
		t.StartedAt = now
		t.lastUpdateTime = now
		t.lastBytes = bytesTransferred
		t.Speed = 0
		return
	}

	if t.lastBytes > 0 && bytesTransferred > t.lastBytes {
		elapsed := now.Sub(t.lastUpdateTime).Seconds()
		if elapsed > 0.1 {
			bytesDelta := bytesTransferred - t.lastBytes
			instantRate := float64(bytesDelta) / elapsed

			const speedSmoothingAlpha = 0.25
			if t.Speed > 0 {
				t.Speed = speedSmoothingAlpha*instantRate + (1-speedSmoothingAlpha)*t.Speed
			} else {
				t.Speed = instantRate
			}

			t.lastBytes = bytesTransferred
			t.lastUpdateTime = now
		}
	}
}

// GetSpeed returns current transfer speed in bytes/sec (thread-safe).
func (t *TransferTask) GetSpeed() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Speed
}

// SetError sets the error and changes state to TaskFailed (thread-safe).
func (t *TransferTask) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Error = err
	t.State = TaskFailed
	t.CompletedAt = time.Now()
}

// GetError returns the error if any (thread-safe).
func (t *TransferTask) GetError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// Cancel cancels this task's context.
func (t *TransferTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	if t.State == TaskQueued || t.State == TaskActive {
		t.State = TaskCancelled
		t.CompletedAt = time.Now()
	}
}

// Context returns the task's context for cancellation checking.
func (t *TransferTask) Context() context.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctx
}

// Clone returns a shallow copy of the task, safe for external display use.
func (t *TransferTask) Clone() TransferTask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TransferTask{
		ID:          t.ID,
		Type:        t.Type,
		Name:        t.Name,
		Source:      t.Source,
		Dest:        t.Dest,
		Size:        t.Size,
		State:       t.State,
		Progress:    t.Progress,
		Speed:       t.Speed,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// IsTerminal returns true if the task is in a terminal state.
func (t *TransferTask) IsTerminal() bool {
	state := t.GetState()
	return state == TaskCompleted || state == TaskFailed || state == TaskCancelled
}

// CanRetry returns true if the task can be retried (failed or cancelled).
func (t *TransferTask) CanRetry() bool {
	state := t.GetState()
	return state == TaskFailed || state == TaskCancelled
}

var (
	taskCounter uint64
	taskMu      sync.Mutex
)

func generateTaskID() string {
	taskMu.Lock()
	defer taskMu.Unlock()
	taskCounter++
	return fmt.Sprintf("task-%d-%d", time.Now().UnixNano(), taskCounter)
}
