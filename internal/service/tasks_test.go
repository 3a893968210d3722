package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/vidrag/internal/models"
)

// fakeClock advances one second per call so creation order is strict.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorderStub struct {
	mu      sync.Mutex
	records []models.Task
	deleted []string
	err     error
}

func (r *recorderStub) RecordTask(_ context.Context, t models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, t)
	return r.err
}

func (r *recorderStub) DeleteTasks(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ids...)
	return r.err
}

func TestTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := NewTaskRegistry(WithClock(newFakeClock().Now))

	id, err := reg.Create(ctx, map[string]any{"video_ids": []string{"abc"}})
	require.NoError(t, err)

	task, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, task.Status)
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)

	require.NoError(t, reg.Start(ctx, id))
	require.NoError(t, reg.UpdateProgress(ctx, id, "Processing video 1/1: abc"))

	task, err = reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskRunning, task.Status)
	require.NotNil(t, task.StartedAt)
	assert.Equal(t, "Processing video 1/1: abc", task.Progress)

	require.NoError(t, reg.Complete(ctx, id, "done"))
	task, err = reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.CompletedAt.After(*task.StartedAt))
	assert.Equal(t, "done", task.Progress)
	assert.Empty(t, task.Error)
}

func TestTaskFailRecordsError(t *testing.T) {
	ctx := context.Background()
	reg := NewTaskRegistry()

	id, err := reg.Create(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, reg.Start(ctx, id))
	require.NoError(t, reg.Fail(ctx, id, errors.New("boom")))

	task, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, "boom", task.Error)
	assert.NotNil(t, task.CompletedAt)
}

func TestIllegalTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(reg *TaskRegistry, id string)
		act   func(reg *TaskRegistry, id string) error
	}{
		{
			name: "fail without start",
			act:  func(reg *TaskRegistry, id string) error { return reg.Fail(ctx, id, errors.New("boom")) },
		},
		{
			name: "complete without start",
			act:  func(reg *TaskRegistry, id string) error { return reg.Complete(ctx, id, "") },
		},
		{
			name:  "start twice",
			setup: func(reg *TaskRegistry, id string) { _ = reg.Start(ctx, id) },
			act:   func(reg *TaskRegistry, id string) error { return reg.Start(ctx, id) },
		},
		{
			name:  "cancel running",
			setup: func(reg *TaskRegistry, id string) { _ = reg.Start(ctx, id) },
			act:   func(reg *TaskRegistry, id string) error { return reg.Cancel(ctx, id) },
		},
		{
			name: "progress after completion",
			setup: func(reg *TaskRegistry, id string) {
				_ = reg.Start(ctx, id)
				_ = reg.Complete(ctx, id, "")
			},
			act: func(reg *TaskRegistry, id string) error { return reg.UpdateProgress(ctx, id, "late") },
		},
		{
			name:  "start cancelled",
			setup: func(reg *TaskRegistry, id string) { _ = reg.Cancel(ctx, id) },
			act:   func(reg *TaskRegistry, id string) error { return reg.Start(ctx, id) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewTaskRegistry()
			id, err := reg.Create(ctx, nil)
			require.NoError(t, err)
			if tt.setup != nil {
				tt.setup(reg, id)
			}
			before, err := reg.Get(id)
			require.NoError(t, err)

			err = tt.act(reg, id)
			assert.ErrorIs(t, err, ErrInvalidTransition)

			after, err := reg.Get(id)
			require.NoError(t, err)
			assert.Equal(t, before, after, "state must not change on a rejected transition")
		})
	}
}

func TestUnknownTask(t *testing.T) {
	ctx := context.Background()
	reg := NewTaskRegistry()

	_, err := reg.Get("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, reg.Start(ctx, "nope"), ErrTaskNotFound)
	assert.ErrorIs(t, reg.Cancel(ctx, "nope"), ErrTaskNotFound)
}

func TestCancelPending(t *testing.T) {
	ctx := context.Background()
	reg := NewTaskRegistry()

	id, err := reg.Create(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, reg.Cancel(ctx, id))

	task, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCancelled, task.Status)
	assert.NotNil(t, task.CompletedAt)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	reg := NewTaskRegistry()

	id, err := reg.Create(ctx, map[string]any{"k": "v"})
	require.NoError(t, err)

	task, err := reg.Get(id)
	require.NoError(t, err)
	task.Metadata["k"] = "changed"
	task.Status = models.TaskFailed

	again, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "v", again.Metadata["k"])
	assert.Equal(t, models.TaskPending, again.Status)
}

func TestListOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	reg := NewTaskRegistry(WithClock(newFakeClock().Now))

	first, _ := reg.Create(ctx, nil)
	second, _ := reg.Create(ctx, nil)
	third, _ := reg.Create(ctx, nil)
	require.NoError(t, reg.Start(ctx, second))

	all := reg.List(ListOptions{})
	require.Len(t, all, 3)
	assert.Equal(t, []string{third, second, first}, []string{all[0].ID, all[1].ID, all[2].ID})

	pending := reg.List(ListOptions{Statuses: []models.TaskStatus{models.TaskPending}})
	require.Len(t, pending, 2)
	assert.Equal(t, third, pending[0].ID)

	limited := reg.List(ListOptions{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, third, limited[0].ID)
}

func TestListTiesBreakByID(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := NewTaskRegistry(WithClock(func() time.Time { return fixed }))

	a, _ := reg.Create(ctx, nil)
	b, _ := reg.Create(ctx, nil)

	got := reg.List(ListOptions{})
	require.Len(t, got, 2)
	assert.Less(t, got[0].ID, got[1].ID)
	assert.ElementsMatch(t, []string{a, b}, []string{got[0].ID, got[1].ID})
}

func TestStats(t *testing.T) {
	ctx := context.Background()

	t.Run("empty registry", func(t *testing.T) {
		st := NewTaskRegistry().Stats()
		assert.Equal(t, 0, st.Total)
		assert.Equal(t, 0.0, st.SuccessRate)
		for _, s := range models.AllTaskStatuses {
			assert.Equal(t, 0, st.Counts[s])
		}
	})

	t.Run("only pending and running", func(t *testing.T) {
		reg := NewTaskRegistry()
		_, _ = reg.Create(ctx, nil)
		id, _ := reg.Create(ctx, nil)
		require.NoError(t, reg.Start(ctx, id))
		st := reg.Stats()
		assert.Equal(t, 2, st.Total)
		assert.Equal(t, 0.0, st.SuccessRate)
	})

	t.Run("success rate ignores cancelled", func(t *testing.T) {
		reg := NewTaskRegistry()
		for _, outcome := range []string{"ok", "ok", "ok", "fail", "cancel"} {
			id, _ := reg.Create(ctx, nil)
			switch outcome {
			case "cancel":
				require.NoError(t, reg.Cancel(ctx, id))
			case "ok":
				require.NoError(t, reg.Start(ctx, id))
				require.NoError(t, reg.Complete(ctx, id, ""))
			case "fail":
				require.NoError(t, reg.Start(ctx, id))
				require.NoError(t, reg.Fail(ctx, id, errors.New("x")))
			}
		}
		st := reg.Stats()
		assert.Equal(t, 5, st.Total)
		assert.Equal(t, 3, st.Counts[models.TaskCompleted])
		assert.Equal(t, 1, st.Counts[models.TaskFailed])
		assert.Equal(t, 1, st.Counts[models.TaskCancelled])
		assert.InDelta(t, 0.75, st.SuccessRate, 1e-9)

		assert.Equal(t, st, SummarizeTasks(reg.List(ListOptions{})))
	})
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rec := &recorderStub{}
	reg := NewTaskRegistry(WithClock(clock.Now), WithRecorder(rec))

	oldDone, _ := reg.Create(ctx, nil)
	require.NoError(t, reg.Start(ctx, oldDone))
	require.NoError(t, reg.Complete(ctx, oldDone, ""))

	oldCancelled, _ := reg.Create(ctx, nil)
	require.NoError(t, reg.Cancel(ctx, oldCancelled))

	oldPending, _ := reg.Create(ctx, nil)
	oldRunning, _ := reg.Create(ctx, nil)
	require.NoError(t, reg.Start(ctx, oldRunning))

	clock.Advance(10 * 24 * time.Hour)

	recentFailed, _ := reg.Create(ctx, nil)
	require.NoError(t, reg.Start(ctx, recentFailed))
	require.NoError(t, reg.Fail(ctx, recentFailed, errors.New("x")))

	removed := reg.Cleanup(ctx, 7*24*time.Hour)
	assert.Equal(t, 2, removed)

	for _, id := range []string{oldPending, oldRunning, recentFailed} {
		_, err := reg.Get(id)
		assert.NoError(t, err, "task %s must survive cleanup", id)
	}
	for _, id := range []string{oldDone, oldCancelled} {
		_, err := reg.Get(id)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	}
	assert.ElementsMatch(t, []string{oldDone, oldCancelled}, rec.deleted)
}

func TestCleanupNeverRemovesActiveTasks(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	reg := NewTaskRegistry(WithClock(clock.Now))

	pending, _ := reg.Create(ctx, nil)
	running, _ := reg.Create(ctx, nil)
	require.NoError(t, reg.Start(ctx, running))

	clock.Advance(365 * 24 * time.Hour)
	assert.Equal(t, 0, reg.Cleanup(ctx, 0))

	assert.Len(t, reg.List(ListOptions{Statuses: []models.TaskStatus{models.TaskPending, models.TaskRunning}}), 2)
	_, err := reg.Get(pending)
	assert.NoError(t, err)
}

func TestRecorderMirrorsTransitions(t *testing.T) {
	ctx := context.Background()
	rec := &recorderStub{}
	reg := NewTaskRegistry(WithRecorder(rec))

	id, err := reg.Create(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, reg.Start(ctx, id))
	require.NoError(t, reg.Complete(ctx, id, "done"))

	require.Len(t, rec.records, 3)
	assert.Equal(t, models.TaskPending, rec.records[0].Status)
	assert.Equal(t, models.TaskRunning, rec.records[1].Status)
	assert.Equal(t, models.TaskCompleted, rec.records[2].Status)
}

// blockingRecorder holds the first running snapshot until released.
type blockingRecorder struct {
	recorderStub
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingRecorder) RecordTask(ctx context.Context, t models.Task) error {
	if t.Status == models.TaskRunning {
		b.once.Do(func() {
			close(b.entered)
			<-b.release
		})
	}
	return b.recorderStub.RecordTask(ctx, t)
}

func TestRecorderSeesTransitionsInOrder(t *testing.T) {
	ctx := context.Background()
	rec := &blockingRecorder{entered: make(chan struct{}), release: make(chan struct{})}
	reg := NewTaskRegistry(WithRecorder(rec))

	id, err := reg.Create(ctx, nil)
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() { started <- reg.Start(ctx, id) }()
	<-rec.entered

	completed := make(chan error, 1)
	go func() { completed <- reg.Complete(ctx, id, "done") }()

	time.Sleep(50 * time.Millisecond)
	close(rec.release)
	require.NoError(t, <-started)
	require.NoError(t, <-completed)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.records, 3)
	assert.Equal(t, models.TaskRunning, rec.records[1].Status)
	assert.Equal(t, models.TaskCompleted, rec.records[2].Status, "the mirror ends in the latest state")
}

func TestRecorderFailureDoesNotAffectRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewTaskRegistry(WithRecorder(&recorderStub{err: errors.New("db down")}))

	id, err := reg.Create(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, reg.Start(ctx, id))

	task, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskRunning, task.Status)
}

func TestConcurrentRegistryAccess(t *testing.T) {
	ctx := context.Background()
	reg := NewTaskRegistry()

	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := reg.Create(ctx, nil)
			if err != nil {
				return
			}
			_ = reg.Start(ctx, id)
			_ = reg.UpdateProgress(ctx, id, "working")
			_ = reg.Complete(ctx, id, "done")
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.List(ListOptions{})
			_ = reg.Stats()
		}()
	}
	wg.Wait()

	st := reg.Stats()
	assert.Equal(t, 25, st.Total)
	assert.Equal(t, 25, st.Counts[models.TaskCompleted])
	assert.Equal(t, 1.0, st.SuccessRate)
}
