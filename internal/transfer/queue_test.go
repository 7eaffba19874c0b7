package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rescale-labs/termscp/internal/events"
)

// Task tests

func TestNewTransferTask(t *testing.T) {
	task := NewTransferTask(TaskTypeUpload, "test.dat", "/local/path", "folder123", 1024)

	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.Type != TaskTypeUpload {
		t.Errorf("Expected TaskTypeUpload, got %v", task.Type)
	}
	if task.Name != "test.dat" {
		t.Errorf("Expected name 'test.dat', got %s", task.Name)
	}
	if task.State != TaskQueued {
		t.Errorf("Expected TaskQueued, got %v", task.State)
	}
	if task.Progress != 0.0 {
		t.Errorf("Expected progress 0.0, got %f", task.Progress)
	}
}

func TestTransferTaskState(t *testing.T) {
	task := NewTransferTask(TaskTypeDownload, "result.zip", "file123", "/local/path", 2048)

	task.SetState(TaskActive)
	if task.GetState() != TaskActive {
		t.Errorf("Expected TaskActive, got %v", task.GetState())
	}
	if task.StartedAt.IsZero() {
		t.Error("StartedAt should be set when state changes to Active")
	}

	task.SetState(TaskCompleted)
	if task.GetState() != TaskCompleted {
		t.Errorf("Expected TaskCompleted, got %v", task.GetState())
	}
	if task.CompletedAt.IsZero() {
		t.Error("CompletedAt should be set when state changes to Completed")
	}
}

func TestTransferTaskProgress(t *testing.T) {
	task := NewTransferTask(TaskTypeUpload, "data.csv", "/path", "folder", 1000)

	task.UpdateProgressWithBytes(500, 1000)
	if task.GetProgress() != 0.5 {
		t.Errorf("Expected progress 0.5, got %f", task.GetProgress())
	}
}

func TestTransferTaskCancel(t *testing.T) {
	task := NewTransferTask(TaskTypeUpload, "test.dat", "/path", "folder", 100)

	select {
	case <-task.Context().Done():
		t.Error("Context should not be cancelled initially")
	default:
	}

	task.Cancel()
	if task.GetState() != TaskCancelled {
		t.Errorf("Expected TaskCancelled, got %v", task.GetState())
	}

	select {
	case <-task.Context().Done():
	default:
		t.Error("Context should be cancelled after Cancel()")
	}
}

func TestTransferTaskError(t *testing.T) {
	task := NewTransferTask(TaskTypeDownload, "fail.dat", "file123", "/path", 500)

	testErr := errors.New("transfer failed")
	task.SetError(testErr)

	if task.GetState() != TaskFailed {
		t.Errorf("Expected TaskFailed, got %v", task.GetState())
	}
	if task.GetError() != testErr {
		t.Errorf("Expected error 'transfer failed', got %v", task.GetError())
	}
}

func TestTransferTaskClone(t *testing.T) {
	task := NewTransferTask(TaskTypeUpload, "clone.dat", "/path", "folder", 1024)
	task.SetState(TaskActive)
	task.UpdateProgressWithBytes(750, 1000)

	clone := task.Clone()
	if clone.ID != task.ID {
		t.Error("Clone should have same ID")
	}
	if clone.Progress != 0.75 {
		t.Errorf("Clone should have same progress, got %f", clone.Progress)
	}
	if clone.State != TaskActive {
		t.Errorf("Clone should have same state, got %v", clone.State)
	}
}

func TestTransferTaskIsTerminal(t *testing.T) {
	tests := []struct {
		state    TaskState
		terminal bool
	}{
		{TaskQueued, false},
		{TaskActive, false},
		{TaskCompleted, true},
		{TaskFailed, true},
		{TaskCancelled, true},
	}

	for _, tt := range tests {
		task := NewTransferTask(TaskTypeUpload, "test", "a", "b", 100)
		task.SetState(tt.state)
		if task.IsTerminal() != tt.terminal {
			t.Errorf("State %v: expected terminal=%v, got %v", tt.state, tt.terminal, task.IsTerminal())
		}
	}
}

func TestTransferTaskCanRetry(t *testing.T) {
	tests := []struct {
		state    TaskState
		canRetry bool
	}{
		{TaskQueued, false},
		{TaskActive, false},
		{TaskCompleted, false},
		{TaskFailed, true},
		{TaskCancelled, true},
	}

	for _, tt := range tests {
		task := NewTransferTask(TaskTypeUpload, "test", "a", "b", 100)
		task.SetState(tt.state)
		if task.CanRetry() != tt.canRetry {
			t.Errorf("State %v: expected canRetry=%v, got %v", tt.state, tt.canRetry, task.CanRetry())
		}
	}
}

// Queue tests

func TestNewQueue(t *testing.T) {
	eventBus := events.NewEventBus(100)
	defer eventBus.Close()

	if NewQueue(eventBus) == nil {
		t.Fatal("NewQueue returned nil")
	}
	if NewQueue(nil) == nil {
		t.Fatal("NewQueue with nil eventBus should work")
	}
}

func TestQueueTrackTransfer(t *testing.T) {
	eventBus := events.NewEventBus(100)
	defer eventBus.Close()

	queue := NewQueue(eventBus)

	task := queue.TrackTransfer("upload.dat", 1024, TaskTypeUpload, "/local/path", "folder123")

	if task == nil {
		t.Fatal("TrackTransfer returned nil")
	}
	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.Name != "upload.dat" {
		t.Errorf("Expected name 'upload.dat', got %s", task.Name)
	}
	if task.State != TaskQueued {
		t.Errorf("Expected TaskQueued, got %v", task.State)
	}

	stats := queue.GetStats()
	if stats.Queued != 1 {
		t.Errorf("Expected 1 queued, got %d", stats.Queued)
	}
}

func TestQueueStartTransfer(t *testing.T) {
	queue := NewQueue(nil)

	task := queue.TrackTransfer("upload.dat", 1024, TaskTypeUpload, "/local/path", "folder123")
	if task.State != TaskQueued {
		t.Errorf("Expected TaskQueued, got %v", task.State)
	}

	queue.StartTransfer(task.ID)

	retrieved, found := queue.GetTask(task.ID)
	if !found {
		t.Fatal("Task not found")
	}
	if retrieved.State != TaskActive {
		t.Errorf("Expected TaskActive after StartTransfer(), got %v", retrieved.State)
	}
	if retrieved.StartedAt.IsZero() {
		t.Error("StartedAt should be set after StartTransfer()")
	}

	stats := queue.GetStats()
	if stats.Active != 1 {
		t.Errorf("Expected 1 active, got %d", stats.Active)
	}
}

func TestQueueUpdateProgress(t *testing.T) {
	queue := NewQueue(nil)

	task := queue.TrackTransfer("test.dat", 1000, TaskTypeUpload, "/path", "folder")
	queue.StartTransfer(task.ID)

	queue.UpdateProgress(task.ID, 0.5)

	retrieved, found := queue.GetTask(task.ID)
	if !found {
		t.Fatal("Task not found")
	}
	if retrieved.Progress != 0.5 {
		t.Errorf("Expected progress 0.5, got %f", retrieved.Progress)
	}
}

func TestQueueComplete(t *testing.T) {
	queue := NewQueue(nil)

	task := queue.TrackTransfer("test.dat", 1000, TaskTypeUpload, "/path", "folder")
	queue.StartTransfer(task.ID)
	queue.Complete(task.ID)

	retrieved, found := queue.GetTask(task.ID)
	if !found {
		t.Fatal("Task not found")
	}
	if retrieved.State != TaskCompleted {
		t.Errorf("Expected TaskCompleted, got %v", retrieved.State)
	}
	if retrieved.Progress != 1.0 {
		t.Errorf("Expected progress 1.0, got %f", retrieved.Progress)
	}

	stats := queue.GetStats()
	if stats.Completed != 1 {
		t.Errorf("Expected 1 completed, got %d", stats.Completed)
	}
}

func TestQueueFail(t *testing.T) {
	queue := NewQueue(nil)

	task := queue.TrackTransfer("test.dat", 1000, TaskTypeDownload, "file123", "/path")
	queue.StartTransfer(task.ID)
	testErr := errors.New("network error")
	queue.Fail(task.ID, testErr)

	retrieved, found := queue.GetTask(task.ID)
	if !found {
		t.Fatal("Task not found")
	}
	if retrieved.State != TaskFailed {
		t.Errorf("Expected TaskFailed, got %v", retrieved.State)
	}
	if retrieved.Error == nil || retrieved.Error.Error() != "network error" {
		t.Errorf("Expected error 'network error', got %v", retrieved.Error)
	}

	stats := queue.GetStats()
	if stats.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", stats.Failed)
	}
}

func TestQueueSetCancel(t *testing.T) {
	queue := NewQueue(nil)

	task := queue.TrackTransfer("test.dat", 1000, TaskTypeUpload, "/path", "folder")
	queue.StartTransfer(task.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := false
	queue.SetCancel(task.ID, func() {
		cancelled = true
		cancel()
	})

	if err := queue.Cancel(task.ID); err != nil {
		t.Errorf("Cancel returned error: %v", err)
	}
	if !cancelled {
		t.Error("Cancel function was not called")
	}

	select {
	case <-ctx.Done():
	default:
		t.Error("Context should be cancelled")
	}

	retrieved, _ := queue.GetTask(task.ID)
	if retrieved.State != TaskCancelled {
		t.Errorf("Expected TaskCancelled, got %v", retrieved.State)
	}
}

func TestQueueCancelNonActive(t *testing.T) {
	queue := NewQueue(nil)

	task := queue.TrackTransfer("test.dat", 1000, TaskTypeUpload, "/path", "folder")
	queue.StartTransfer(task.ID)
	queue.Complete(task.ID)

	if err := queue.Cancel(task.ID); err == nil {
		t.Error("Cancel should fail for a completed task")
	}
}

func TestQueueCancelAll(t *testing.T) {
	queue := NewQueue(nil)

	task1 := queue.TrackTransfer("file1.dat", 100, TaskTypeUpload, "/p1", "f")
	task2 := queue.TrackTransfer("file2.dat", 200, TaskTypeUpload, "/p2", "f")
	task3 := queue.TrackTransfer("file3.dat", 300, TaskTypeDownload, "id", "/p3")

	queue.StartTransfer(task1.ID)
	queue.StartTransfer(task2.ID)
	queue.StartTransfer(task3.ID)

	cancelCount := 0
	queue.SetCancel(task1.ID, func() { cancelCount++ })
	queue.SetCancel(task2.ID, func() { cancelCount++ })
	queue.SetCancel(task3.ID, func() { cancelCount++ })

	queue.CancelAll()

	if cancelCount != 3 {
		t.Errorf("Expected 3 cancel calls, got %d", cancelCount)
	}

	stats := queue.GetStats()
	if stats.Cancelled != 3 {
		t.Errorf("Expected 3 cancelled, got %d", stats.Cancelled)
	}
	if stats.Active != 0 {
		t.Errorf("Expected 0 active, got %d", stats.Active)
	}
}

func TestQueueGetTasks(t *testing.T) {
	queue := NewQueue(nil)

	queue.TrackTransfer("file1.dat", 100, TaskTypeUpload, "/p1", "f")
	queue.TrackTransfer("file2.dat", 200, TaskTypeUpload, "/p2", "f")
	queue.TrackTransfer("file3.dat", 300, TaskTypeDownload, "id", "/p3")

	tasks := queue.GetTasks()
	if len(tasks) != 3 {
		t.Errorf("Expected 3 tasks, got %d", len(tasks))
	}

	tasks[0].Name = "modified"
	original := queue.GetTasks()
	if original[0].Name == "modified" {
		t.Error("GetTasks should return copies, not references")
	}
}

func TestQueueGetTask(t *testing.T) {
	queue := NewQueue(nil)

	task := queue.TrackTransfer("findme.dat", 100, TaskTypeUpload, "/path", "folder")

	retrieved, found := queue.GetTask(task.ID)
	if !found {
		t.Error("GetTask should find existing task")
	}
	if retrieved.Name != "findme.dat" {
		t.Errorf("Expected name 'findme.dat', got %s", retrieved.Name)
	}

	if _, found := queue.GetTask("nonexistent"); found {
		t.Error("GetTask should not find nonexistent task")
	}
}

func TestQueueClearCompleted(t *testing.T) {
	queue := NewQueue(nil)

	task1 := queue.TrackTransfer("file1.dat", 100, TaskTypeUpload, "/p1", "f")
	task2 := queue.TrackTransfer("file2.dat", 200, TaskTypeUpload, "/p2", "f")

	queue.StartTransfer(task1.ID)
	queue.StartTransfer(task2.ID)
	queue.Complete(task1.ID)

	queue.ClearCompleted()

	tasks := queue.GetTasks()
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task after clear, got %d", len(tasks))
	}
	if tasks[0].ID != task2.ID {
		t.Error("Wrong task remaining after clear")
	}
}

// mockRetryExecutor implements RetryExecutor for testing. ExecuteRetry
// runs in a goroutine spawned by Queue.Retry, so executed is protected
// by a mutex and doneCh signals completion to the test goroutine.
type mockRetryExecutor struct {
	mu       sync.Mutex
	executed []*TransferTask
	doneCh   chan struct{}
}

func newMockRetryExecutor() *mockRetryExecutor {
	return &mockRetryExecutor{doneCh: make(chan struct{}, 10)}
}

func (m *mockRetryExecutor) ExecuteRetry(task *TransferTask) {
	m.mu.Lock()
	m.executed = append(m.executed, task)
	m.mu.Unlock()
	m.doneCh <- struct{}{}
}

func (m *mockRetryExecutor) waitForExecutions(n int, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for i := 0; i < n; i++ {
		select {
		case <-m.doneCh:
		case <-timer.C:
			return false
		}
	}
	return true
}

func (m *mockRetryExecutor) getExecuted() []*TransferTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*TransferTask, len(m.executed))
	copy(cp, m.executed)
	return cp
}

func TestQueueRetry(t *testing.T) {
	queue := NewQueue(nil)
	executor := newMockRetryExecutor()
	queue.SetRetryExecutor(executor)

	task := queue.TrackTransfer("retry.dat", 100, TaskTypeUpload, "/path", "folder")
	queue.StartTransfer(task.ID)
	queue.Fail(task.ID, errors.New("failed"))

	newID, err := queue.Retry(task.ID)
	if err != nil {
		t.Errorf("Retry returned error: %v", err)
	}
	if newID == "" {
		t.Error("Retry should return the task's ID")
	}

	if !executor.waitForExecutions(1, 5*time.Second) {
		t.Fatal("Timed out waiting for retry execution")
	}

	executed := executor.getExecuted()
	if len(executed) != 1 {
		t.Errorf("Expected 1 retry execution, got %d", len(executed))
	}
}

func TestQueueRetryNoExecutor(t *testing.T) {
	queue := NewQueue(nil)

	task := queue.TrackTransfer("retry.dat", 100, TaskTypeUpload, "/path", "folder")
	queue.StartTransfer(task.ID)
	queue.Fail(task.ID, errors.New("failed"))

	if _, err := queue.Retry(task.ID); err == nil {
		t.Error("Retry without executor should fail")
	}
}

func TestQueueRetryNonFailed(t *testing.T) {
	queue := NewQueue(nil)
	executor := newMockRetryExecutor()
	queue.SetRetryExecutor(executor)

	task := queue.TrackTransfer("active.dat", 100, TaskTypeUpload, "/path", "folder")
	queue.StartTransfer(task.ID)

	if _, err := queue.Retry(task.ID); err == nil {
		t.Error("Retry on active task should fail")
	}
}

func TestQueueEvents(t *testing.T) {
	eventBus := events.NewEventBus(100)
	defer eventBus.Close()

	queue := NewQueue(eventBus)

	queuedCh := eventBus.Subscribe(events.EventTransferQueued)
	startedCh := eventBus.Subscribe(events.EventTransferStarted)
	progressCh := eventBus.Subscribe(events.EventTransferProgress)
	completedCh := eventBus.Subscribe(events.EventTransferCompleted)

	task := queue.TrackTransfer("event.dat", 100, TaskTypeUpload, "/path", "folder")

	select {
	case event := <-queuedCh:
		te, ok := event.(*events.TransferEvent)
		if !ok {
			t.Error("Expected TransferEvent")
		}
		if te.Name != "event.dat" {
			t.Errorf("Expected name 'event.dat', got %s", te.Name)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for queued event")
	}

	queue.StartTransfer(task.ID)

	select {
	case event := <-startedCh:
		te := event.(*events.TransferEvent)
		if te.Name != "event.dat" {
			t.Errorf("Expected name 'event.dat', got %s", te.Name)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for started event")
	}

	queue.UpdateProgress(task.ID, 0.5)

	select {
	case event := <-progressCh:
		te := event.(*events.TransferEvent)
		if te.Progress != 0.5 {
			t.Errorf("Expected progress 0.5, got %f", te.Progress)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for progress event")
	}

	queue.Complete(task.ID)

	select {
	case event := <-completedCh:
		te := event.(*events.TransferEvent)
		if te.Progress != 1.0 {
			t.Errorf("Expected progress 1.0, got %f", te.Progress)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for completed event")
	}
}

func TestQueueStats(t *testing.T) {
	queue := NewQueue(nil)

	task1 := queue.TrackTransfer("q1", 100, TaskTypeUpload, "/p", "f")
	task2 := queue.TrackTransfer("q2", 100, TaskTypeUpload, "/p", "f")
	queue.StartTransfer(task1.ID)
	queue.StartTransfer(task2.ID)

	task3 := queue.TrackTransfer("cancel", 100, TaskTypeUpload, "/p", "f")
	queue.StartTransfer(task3.ID)
	queue.SetCancel(task3.ID, func() {})
	queue.Cancel(task3.ID)

	task4 := queue.TrackTransfer("complete", 100, TaskTypeUpload, "/p", "f")
	queue.StartTransfer(task4.ID)
	queue.Complete(task4.ID)

	task5 := queue.TrackTransfer("fail", 100, TaskTypeUpload, "/p", "f")
	queue.StartTransfer(task5.ID)
	queue.Fail(task5.ID, errors.New("err"))

	stats := queue.GetStats()

	if stats.Active != 2 {
		t.Errorf("Expected 2 active, got %d", stats.Active)
	}
	if stats.Cancelled != 1 {
		t.Errorf("Expected 1 cancelled, got %d", stats.Cancelled)
	}
	if stats.Completed != 1 {
		t.Errorf("Expected 1 completed, got %d", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", stats.Failed)
	}
	if stats.Total() != 5 {
		t.Errorf("Expected total 5, got %d", stats.Total())
	}
}

func TestQueueSpeedCalculation(t *testing.T) {
	queue := NewQueue(nil)

	task := queue.TrackTransfer("speed.dat", 100000, TaskTypeUpload, "/path", "folder")
	queue.StartTransfer(task.ID)

	queue.UpdateProgress(task.ID, 0.1)
	time.Sleep(400 * time.Millisecond)
	queue.UpdateProgress(task.ID, 0.2)

	retrieved, _ := queue.GetTask(task.ID)
	if retrieved.Speed == 0 {
		t.Error("Speed should be calculated after progress updates")
	}
}
