package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vidrag/internal/models"
	"github.com/raphaelgruber/vidrag/internal/service"
)

var (
	tasksStatus    string
	tasksLimit     int
	tasksOlderThan time.Duration
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [task-id]",
	Short: "List or inspect ingestion tasks",
	Long: `List ingestion tasks or inspect one by ID.

Tasks are read from SurrealDB. With the memory backend only tasks of the
current process exist.

Examples:
  vidrag tasks                    # List recent tasks
  vidrag tasks --status failed    # Only failed tasks
  vidrag tasks 3f2c...            # Show details for one task
  vidrag tasks cleanup --older-than 168h`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

var tasksCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove finished tasks",
	Long: `Remove completed, failed and cancelled tasks that finished before the
retention period. Pending and running tasks are never removed.`,
	Args: cobra.NoArgs,
	RunE: runTasksCleanup,
}

func init() {
	tasksCmd.Flags().StringVarP(&tasksStatus, "status", "s", "", "filter by status (pending, running, completed, failed, cancelled)")
	tasksCmd.Flags().IntVarP(&tasksLimit, "limit", "n", 20, "max tasks to list")
	tasksCleanupCmd.Flags().DurationVar(&tasksOlderThan, "older-than", 0, "retention period (default from VIDRAG_TASK_RETENTION)")
	tasksCmd.AddCommand(tasksCleanupCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	if len(args) == 1 {
		return showTask(ctx, w, args[0])
	}

	status := models.TaskStatus(tasksStatus)
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", tasksStatus)
	}
	tasks, err := loadTasks(ctx, status, tasksLimit)
	if err != nil {
		return err
	}
	return listTasks(ctx, w, tasks)
}

func loadTasks(ctx context.Context, status models.TaskStatus, limit int) ([]models.Task, error) {
	if app.dbClient != nil {
		tasks, err := app.dbClient.ListTasks(ctx, status, limit)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		return tasks, nil
	}
	opts := service.ListOptions{Limit: limit}
	if status != "" {
		opts.Statuses = []models.TaskStatus{status}
	}
	return app.registry.List(opts), nil
}

func listTasks(ctx context.Context, w io.Writer, tasks []models.Task) error {
	if ok, err := writeStructured(w, format, tasks); ok {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-10s  %-19s  %s\n", "ID", "STATUS", "CREATED", "PROGRESS")
	fmt.Fprintln(w, "--------------------------------------------------------------------------------------------")
	for _, t := range tasks {
		fmt.Fprintf(w, "%-36s  %-10s  %-19s  %s\n", t.ID, t.Status, t.CreatedAt.Local().Format(time.DateTime), truncate(t.Progress, 60))
	}

	all, err := loadTasks(ctx, "", 0)
	if err != nil {
		return err
	}
	st := service.SummarizeTasks(all)
	fmt.Fprintf(w, "\n%d tasks total", st.Total)
	statuses := make([]string, 0, len(st.Counts))
	for s, n := range st.Counts {
		if n > 0 {
			statuses = append(statuses, fmt.Sprintf("%s %d", s, n))
		}
	}
	slices.Sort(statuses)
	for _, s := range statuses {
		fmt.Fprintf(w, ", %s", s)
	}
	fmt.Fprintf(w, "; success rate %.0f%%\n", st.SuccessRate*100)
	return nil
}

func showTask(ctx context.Context, w io.Writer, id string) error {
	var task *models.Task
	if app.dbClient != nil {
		t, err := app.dbClient.GetTask(ctx, id)
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		task = t
	} else {
		t, err := app.registry.Get(id)
		if err != nil && !errors.Is(err, service.ErrTaskNotFound) {
			return fmt.Errorf("get task: %w", err)
		}
		if err == nil {
			task = &t
		}
	}
	if task == nil {
		return fmt.Errorf("task not found: %s", id)
	}

	if ok, err := writeStructured(w, format, task); ok {
		return err
	}
	printTask(w, *task)
	return nil
}

func printTask(w io.Writer, t models.Task) {
	fmt.Fprintf(w, "Task: %s\n", t.ID)
	fmt.Fprintf(w, "  Status: %s\n", t.Status)
	fmt.Fprintf(w, "  Created: %s\n", t.CreatedAt.Format(time.RFC3339))
	if t.StartedAt != nil {
		fmt.Fprintf(w, "  Started: %s\n", t.StartedAt.Format(time.RFC3339))
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(w, "  Completed: %s\n", t.CompletedAt.Format(time.RFC3339))
		if t.StartedAt != nil {
			fmt.Fprintf(w, "  Duration: %s\n", t.CompletedAt.Sub(*t.StartedAt).Round(time.Millisecond))
		}
	}
	if t.Progress != "" {
		fmt.Fprintf(w, "  Progress: %s\n", t.Progress)
	}
	if t.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", t.Error)
	}
	if ids, ok := t.Metadata["video_ids"]; ok {
		fmt.Fprintf(w, "  Videos: %v\n", ids)
	}
}

func runTasksCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	olderThan := tasksOlderThan
	if olderThan <= 0 {
		olderThan = cfg.TaskRetention
	}

	removed := app.registry.Cleanup(ctx, olderThan)
	if app.dbClient != nil {
		n, err := app.dbClient.CleanupTasks(ctx, time.Now().Add(-olderThan))
		if err != nil {
			return fmt.Errorf("cleanup tasks: %w", err)
		}
		removed += n
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d tasks finished more than %s ago\n", removed, olderThan)
	return nil
}
