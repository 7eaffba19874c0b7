package transfer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rescale-labs/termscp/internal/events"
)

// RetryExecutor is implemented by the activity that can re-run a failed
// transfer task. The queue calls ExecuteRetry when the user requests a
// retry on a failed task; the task is already reset to TaskQueued.
type RetryExecutor interface {
	ExecuteRetry(task *TransferTask)
}

// QueueStats holds counts of tasks in each state.
type QueueStats struct {
	Queued       int
	Initializing int
	Active       int
	Completed    int
	Failed       int
	Cancelled    int
}

// Total returns total number of tasks in queue.
func (s QueueStats) Total() int {
	return s.Queued + s.Initializing + s.Active + s.Completed + s.Failed + s.Cancelled
}

// Queue is a passive transfer tracker that publishes events for the
// TUI's Transferring{job} sub-state to render. It does not execute
// transfers itself — the activity or engine that drives the copy
// registers a task via TrackTransfer, reports progress via
// UpdateProgress, and marks the outcome via Complete/Fail.
type Queue struct {
	tasks     []*TransferTask
	tasksByID map[string]*TransferTask
	mu        sync.RWMutex

	cancelFuncs map[string]context.CancelFunc

	retryExecutor RetryExecutor

	eventBus *events.EventBus
}

// NewQueue creates a new transfer queue publishing onto eventBus (nil
// disables publishing).
func NewQueue(eventBus *events.EventBus) *Queue {
	return &Queue{
		tasks:       make([]*TransferTask, 0),
		tasksByID:   make(map[string]*TransferTask),
		cancelFuncs: make(map[string]context.CancelFunc),
		eventBus:    eventBus,
	}
}

// SetRetryExecutor sets the executor that handles retry requests.
func (q *Queue) SetRetryExecutor(executor RetryExecutor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retryExecutor = executor
}

// TrackTransfer registers a new transfer task in TaskQueued state.
func (q *Queue) TrackTransfer(name string, size int64, taskType TaskType, source, dest string) *TransferTask {
	task := NewTransferTask(taskType, name, source, dest, size)

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.tasksByID[task.ID] = task
	q.mu.Unlock()

	q.publishTransferEvent(events.EventTransferQueued, task)
	return task
}

// SetCancel stores the cancel function for an active task.
func (q *Queue) SetCancel(taskID string, cancelFn context.CancelFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelFuncs[taskID] = cancelFn
}

// UpdateSize updates a task's total size, for cases where it is not
// known at track time.
func (q *Queue) UpdateSize(taskID string, size int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if task, ok := q.tasksByID[taskID]; ok && task != nil {
		task.Size = size
	}
}

// StartTransfer marks a queued task as actively transferring and
// publishes EventTransferStarted.
func (q *Queue) StartTransfer(taskID string) {
	q.mu.Lock()
	task, exists := q.tasksByID[taskID]
	if exists && task != nil && task.State == TaskQueued {
		task.State = TaskActive
		task.StartedAt = time.Now()
	}
	q.mu.Unlock()

	if exists && task != nil {
		q.publishTransferEvent(events.EventTransferStarted, task)
	}
}

// UpdateProgress updates a task's progress (0.0 to 1.0); speed is
// derived via smoothed EMA from the delta since the last update.
func (q *Queue) UpdateProgress(taskID string, progress float64) {
	q.mu.Lock()
	task, exists := q.tasksByID[taskID]
	if !exists || task == nil {
		q.mu.Unlock()
		return
	}

	now := time.Now()
	elapsed := now.Sub(task.lastUpdateTime).Seconds()
	progressDelta := progress - task.Progress

	if elapsed >= 0.3 && progressDelta > 0.001 {
		bytesTransferred := progressDelta * float64(task.Size)
		instantSpeed := bytesTransferred / elapsed

		if instantSpeed < 1024 {
			instantSpeed = 0
		} else if instantSpeed > 1024*1024*1024 {
			instantSpeed = task.Speed
		}

		if instantSpeed > 0 {
			if task.Speed == 0 {
				task.Speed = instantSpeed
			} else {
				task.Speed = 0.1*instantSpeed + 0.9*task.Speed
			}
		}
	}

	task.Progress = progress
	task.lastUpdateTime = now
	q.mu.Unlock()

	q.publishTransferEvent(events.EventTransferProgress, task)
}

// Complete marks a task as successfully completed.
func (q *Queue) Complete(taskID string) {
	q.mu.Lock()
	task, exists := q.tasksByID[taskID]
	if exists && task != nil {
		task.State = TaskCompleted
		task.Progress = 1.0
		task.CompletedAt = time.Now()
	}
	delete(q.cancelFuncs, taskID)
	q.mu.Unlock()

	if exists && task != nil {
		q.publishTransferEvent(events.EventTransferCompleted, task)
	}
}

// Fail marks a task as failed with an error.
func (q *Queue) Fail(taskID string, err error) {
	q.mu.Lock()
	task, exists := q.tasksByID[taskID]
	if exists && task != nil {
		task.State = TaskFailed
		task.Error = err
		task.CompletedAt = time.Now()
	}
	delete(q.cancelFuncs, taskID)
	q.mu.Unlock()

	if exists && task != nil {
		q.publishTransferEvent(events.EventTransferFailed, task)
	}
}

// Cancel cancels an active task by calling its stored cancel function.
func (q *Queue) Cancel(taskID string) error {
	q.mu.Lock()
	task, exists := q.tasksByID[taskID]
	cancelFn := q.cancelFuncs[taskID]
	q.mu.Unlock()

	if !exists || task == nil {
		return errors.New("task not found")
	}

	state := task.GetState()
	if state != TaskActive && state != TaskInitializing && state != TaskQueued {
		return errors.New("task is not cancellable")
	}

	if cancelFn != nil {
		cancelFn()
	}

	q.mu.Lock()
	task.State = TaskCancelled
	task.CompletedAt = time.Now()
	delete(q.cancelFuncs, taskID)
	q.mu.Unlock()

	q.publishTransferEvent(events.EventTransferCancelled, task)
	return nil
}

// CancelAll cancels every active or queued task.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	var toCancel []*TransferTask
	var fns []context.CancelFunc
	for _, task := range q.tasks {
		if state := task.GetState(); state == TaskActive || state == TaskInitializing || state == TaskQueued {
			toCancel = append(toCancel, task)
			if fn := q.cancelFuncs[task.ID]; fn != nil {
				fns = append(fns, fn)
			}
		}
	}
	q.mu.Unlock()

	for _, fn := range fns {
		fn()
	}

	q.mu.Lock()
	for _, task := range toCancel {
		task.State = TaskCancelled
		task.CompletedAt = time.Now()
		delete(q.cancelFuncs, task.ID)
	}
	q.mu.Unlock()

	for _, task := range toCancel {
		q.publishTransferEvent(events.EventTransferCancelled, task)
	}
}

// Retry resets a failed or cancelled task and re-queues it, reusing the
// same task entry and ID rather than creating a duplicate.
func (q *Queue) Retry(taskID string) (string, error) {
	q.mu.Lock()
	task, exists := q.tasksByID[taskID]
	executor := q.retryExecutor
	q.mu.Unlock()

	if !exists || task == nil {
		return "", errors.New("task not found")
	}
	if !task.CanRetry() {
		return "", errors.New("task cannot be retried")
	}
	if executor == nil {
		return "", errors.New("no retry executor configured")
	}

	task.mu.Lock()
	task.State = TaskQueued
	task.Progress = 0.0
	task.Speed = 0.0
	task.Error = nil
	task.StartedAt = time.Time{}
	task.CompletedAt = time.Time{}
	task.lastBytes = 0
	task.lastUpdateTime = time.Time{}
	task.mu.Unlock()

	q.publishTransferEvent(events.EventTransferQueued, task)
	go executor.ExecuteRetry(task)

	return taskID, nil
}

// ClearCompleted removes all terminal tasks from the queue.
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*TransferTask, 0, len(q.tasks))
	for _, task := range q.tasks {
		if !task.IsTerminal() {
			filtered = append(filtered, task)
		} else {
			delete(q.tasksByID, task.ID)
		}
	}
	q.tasks = filtered
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := QueueStats{}
	for _, task := range q.tasks {
		switch task.GetState() {
		case TaskQueued:
			stats.Queued++
		case TaskInitializing:
			stats.Initializing++
		case TaskActive:
			stats.Active++
		case TaskCompleted:
			stats.Completed++
		case TaskFailed:
			stats.Failed++
		case TaskCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// GetTasks returns a copy of all tasks, in creation order.
func (q *Queue) GetTasks() []TransferTask {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]TransferTask, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = task.Clone()
	}
	return result
}

// GetTask returns a copy of a specific task by ID.
func (q *Queue) GetTask(taskID string) (TransferTask, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	task, exists := q.tasksByID[taskID]
	if !exists || task == nil {
		return TransferTask{}, false
	}
	return task.Clone(), true
}

func (q *Queue) publishTransferEvent(eventType events.EventType, task *TransferTask) {
	if q.eventBus == nil {
		return
	}
	q.eventBus.Publish(&events.TransferEvent{
		BaseEvent: events.BaseEvent{EventType: eventType, Time: time.Now()},
		TaskID:    task.ID,
		TaskType:  string(task.Type),
		Name:      task.Name,
		Size:      task.Size,
		Progress:  task.GetProgress(),
		Speed:     task.GetSpeed(),
		Error:     task.GetError(),
	})
}
