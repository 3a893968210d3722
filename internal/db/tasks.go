package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/vidrag/internal/models"
)

// taskRecord is the persisted snapshot of an ingestion task.
type taskRecord struct {
	ID          surrealmodels.RecordID `json:"id"`
	Status      string                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Progress    string                 `json:"progress,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
}

func (r taskRecord) task() (models.Task, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.Task{}, err
	}
	return models.Task{
		ID:          id,
		Status:      models.TaskStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Progress:    r.Progress,
		Error:       r.Error,
		Metadata:    r.Metadata,
	}, nil
}

// RecordTask upserts the latest snapshot of a task.
func (c *Client) RecordTask(ctx context.Context, t models.Task) error {
	content := map[string]any{
		"status":     string(t.Status),
		"created_at": t.CreatedAt,
		"progress":   t.Progress,
		"error":      t.Error,
		"metadata":   t.Metadata,
	}
	if t.StartedAt != nil {
		content["started_at"] = *t.StartedAt
	}
	if t.CompletedAt != nil {
		content["completed_at"] = *t.CompletedAt
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("ingest_task", $id) CONTENT $content
	`, map[string]any{"id": t.ID, "content": content})
	if err != nil {
		return fmt.Errorf("record task: %w", wrapQueryError(err))
	}
	return nil
}

// DeleteTasks removes persisted task snapshots by id.
func (c *Client) DeleteTasks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE ingest_task WHERE record::id(id) INSIDE $ids
	`, map[string]any{"ids": ids})
	if err != nil {
		return fmt.Errorf("delete tasks: %w", wrapQueryError(err))
	}
	return nil
}

// GetTask loads a persisted task snapshot. Returns nil if not found.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	results, err := surrealdb.Query[[]taskRecord](ctx, c.db, `
		SELECT * FROM type::record("ingest_task", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get task: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	t, err := (*results)[0].Result[0].task()
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

// ListTasks returns persisted tasks newest first, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status models.TaskStatus, limit int) ([]models.Task, error) {
	where := ""
	vars := map[string]any{}
	if status != "" {
		where = "WHERE status = $status"
		vars["status"] = string(status)
	}
	limitClause := ""
	if limit > 0 {
		limitClause = "LIMIT $limit"
		vars["limit"] = limit
	}

	sql := fmt.Sprintf(`
		SELECT * FROM ingest_task %s ORDER BY created_at DESC %s
	`, where, limitClause)

	results, err := surrealdb.Query[[]taskRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.Task{}, nil
	}

	tasks := make([]models.Task, 0, len((*results)[0].Result))
	for _, r := range (*results)[0].Result {
		t, err := r.task()
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// CleanupTasks removes terminal task snapshots that finished before cutoff.
func (c *Client) CleanupTasks(ctx context.Context, cutoff time.Time) (int, error) {
	results, err := surrealdb.Query[[]taskRecord](ctx, c.db, `
		DELETE ingest_task
		WHERE status INSIDE ["completed", "failed", "cancelled"]
			AND completed_at != NONE
			AND completed_at < $cutoff
		RETURN BEFORE
	`, map[string]any{"cutoff": cutoff})
	if err != nil {
		return 0, fmt.Errorf("cleanup tasks: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
