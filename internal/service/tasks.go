package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/raphaelgruber/vidrag/internal/models"
)

// TaskRecorder persists task snapshots. Failures are logged and never
// change registry state.
type TaskRecorder interface {
	RecordTask(ctx context.Context, t models.Task) error
	DeleteTasks(ctx context.Context, ids []string) error
}

// TaskStats summarizes the registry.
type TaskStats struct {
	Counts      map[models.TaskStatus]int `json:"counts"`
	Total       int                       `json:"total"`
	SuccessRate float64                   `json:"success_rate"`
}

// ListOptions filters and bounds List. Empty Statuses matches all; Limit <= 0 is unbounded.
type ListOptions struct {
	Statuses []models.TaskStatus
	Limit    int
}

// TaskRegistry tracks ingestion tasks through their lifecycle.
// All reads and writes go through one lock, so a transition and its
// timestamp and message are observed together.
type TaskRegistry struct {
	mu       sync.RWMutex
	tasks    map[string]*models.Task
	now      func() time.Time
	recorder TaskRecorder

	// recMu is held from mutation until the recorder returns, so the
	// recorder sees changes in the order they were applied.
	recMu sync.Mutex
}

// RegistryOption configures a TaskRegistry.
type RegistryOption func(*TaskRegistry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *TaskRegistry) { r.now = now }
}

// WithRecorder mirrors every change to a persistent recorder.
func WithRecorder(rec TaskRecorder) RegistryOption {
	return func(r *TaskRegistry) { r.recorder = rec }
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry(opts ...RegistryOption) *TaskRegistry {
	r := &TaskRegistry{
		tasks: make(map[string]*models.Task),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a pending task and returns its id.
func (r *TaskRegistry) Create(ctx context.Context, metadata map[string]any) (string, error) {
	t := &models.Task{
		ID:        uuid.NewString(),
		Status:    models.TaskPending,
		CreatedAt: r.now(),
		Metadata:  maps.Clone(metadata),
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}

	r.recMu.Lock()
	defer r.recMu.Unlock()

	r.mu.Lock()
	r.tasks[t.ID] = t
	snap := t.Clone()
	r.mu.Unlock()

	slog.Info("task created", "task_id", t.ID)
	r.record(ctx, snap)
	return t.ID, nil
}

// transition applies mutate to task id if its status is one of from.
// Caller must not hold either lock.
func (r *TaskRegistry) transition(ctx context.Context, id, action string, from []models.TaskStatus, mutate func(t *models.Task, now time.Time)) error {
	r.recMu.Lock()
	defer r.recMu.Unlock()

	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !slices.Contains(from, t.Status) {
		cur := t.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot %s task %s in status %s", ErrInvalidTransition, action, id, cur)
	}
	mutate(t, r.now())
	snap := t.Clone()
	r.mu.Unlock()

	r.record(ctx, snap)
	return nil
}

// Start moves a pending task to running.
func (r *TaskRegistry) Start(ctx context.Context, id string) error {
	return r.transition(ctx, id, "start", []models.TaskStatus{models.TaskPending}, func(t *models.Task, now time.Time) {
		t.Status = models.TaskRunning
		t.StartedAt = &now
	})
}

// UpdateProgress replaces the progress text of a pending or running task.
func (r *TaskRegistry) UpdateProgress(ctx context.Context, id, text string) error {
	return r.transition(ctx, id, "update progress of", []models.TaskStatus{models.TaskPending, models.TaskRunning}, func(t *models.Task, _ time.Time) {
		t.Progress = text
	})
}

// Complete moves a running task to completed with final progress text.
func (r *TaskRegistry) Complete(ctx context.Context, id, progress string) error {
	return r.transition(ctx, id, "complete", []models.TaskStatus{models.TaskRunning}, func(t *models.Task, now time.Time) {
		t.Status = models.TaskCompleted
		t.CompletedAt = &now
		if progress != "" {
			t.Progress = progress
		}
	})
}

// Fail moves a running task to failed and records the error message.
func (r *TaskRegistry) Fail(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return r.transition(ctx, id, "fail", []models.TaskStatus{models.TaskRunning}, func(t *models.Task, now time.Time) {
		t.Status = models.TaskFailed
		t.CompletedAt = &now
		t.Error = msg
	})
}

// Cancel moves a pending task to cancelled. Running tasks cannot be cancelled.
func (r *TaskRegistry) Cancel(ctx context.Context, id string) error {
	return r.transition(ctx, id, "cancel", []models.TaskStatus{models.TaskPending}, func(t *models.Task, now time.Time) {
		t.Status = models.TaskCancelled
		t.CompletedAt = &now
	})
}

// Get returns a copy of the task.
func (r *TaskRegistry) Get(id string) (models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return models.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.Clone(), nil
}

// List returns copies of matching tasks, most recently created first.
func (r *TaskRegistry) List(opts ListOptions) []models.Task {
	r.mu.RLock()
	out := make([]models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, t.Status) {
			continue
		}
		out = append(out, t.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// Stats counts tasks per status. SuccessRate is completed/(completed+failed),
// or 0 when neither occurred.
func (r *TaskRegistry) Stats() TaskStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]models.TaskStatus, 0, len(r.tasks))
	for _, t := range r.tasks {
		statuses = append(statuses, t.Status)
	}
	return summarize(statuses)
}

// SummarizeTasks computes the same statistics as TaskRegistry.Stats over
// tasks loaded from elsewhere.
func SummarizeTasks(tasks []models.Task) TaskStats {
	return summarize(lo.Map(tasks, func(t models.Task, _ int) models.TaskStatus { return t.Status }))
}

func summarize(statuses []models.TaskStatus) TaskStats {
	st := TaskStats{Counts: make(map[models.TaskStatus]int, len(models.AllTaskStatuses))}
	for _, s := range models.AllTaskStatuses {
		st.Counts[s] = 0
	}
	for _, s := range statuses {
		st.Counts[s]++
	}
	st.Total = len(statuses)

	finished := st.Counts[models.TaskCompleted] + st.Counts[models.TaskFailed]
	if finished > 0 {
		st.SuccessRate = float64(st.Counts[models.TaskCompleted]) / float64(finished)
	}
	return st
}

// Cleanup removes terminal tasks that completed before now-olderThan and
// returns how many were removed. Pending and running tasks are always kept.
func (r *TaskRegistry) Cleanup(ctx context.Context, olderThan time.Duration) int {
	r.recMu.Lock()
	defer r.recMu.Unlock()

	r.mu.Lock()
	cutoff := r.now().Add(-olderThan)
	var removed []string
	for id, t := range r.tasks {
		if !t.Status.Terminal() || t.CompletedAt == nil {
			continue
		}
		if t.CompletedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	if len(removed) > 0 {
		slog.Info("cleaned up tasks", "count", len(removed), "older_than", olderThan)
		if r.recorder != nil {
			if err := r.recorder.DeleteTasks(context.WithoutCancel(ctx), removed); err != nil {
				slog.Warn("failed to delete persisted tasks", "count", len(removed), "error", err)
			}
		}
	}
	return len(removed)
}

func (r *TaskRegistry) record(ctx context.Context, t models.Task) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordTask(context.WithoutCancel(ctx), t); err != nil {
		slog.Warn("failed to persist task", "task_id", t.ID, "status", t.Status, "error", err)
	}
}
