package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/vidrag/internal/models"
	"github.com/raphaelgruber/vidrag/internal/service"
)

const pollInterval = 250 * time.Millisecond

// errDetached is returned when the user stops watching a running task.
var errDetached = errors.New("stopped watching task")

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// taskReader is the part of the registry the progress display polls.
type taskReader interface {
	Get(id string) (models.Task, error)
}

type tickMsg time.Time

type taskUpdateMsg struct {
	task models.Task
	err  error
}

// progressModel is the bubbletea model for a running ingestion task.
type progressModel struct {
	tasks    taskReader
	taskID   string
	videos   int
	task     *models.Task
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(tasks taskReader, taskID string, videos int) progressModel {
	return progressModel{
		tasks:  tasks,
		taskID: taskID,
		videos: videos,
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.fetchTask(), m.progress.Init())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchTask()

	case taskUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("read task status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		m.task = &msg.task

		switch m.task.Status {
		case models.TaskCompleted:
			m.done = true
			return m, tea.Quit
		case models.TaskFailed, models.TaskCancelled:
			m.done = true
			if m.task.Error != "" {
				m.err = errors.New(m.task.Error)
			} else {
				m.err = fmt.Errorf("task %s", m.task.Status)
			}
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.task == nil {
		return "Waiting for task to start...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.task.Status))
	bar := m.progress.ViewAs(videoFraction(m.task.Progress, m.videos))
	line := m.task.Progress
	if line == "" {
		line = "queued"
	}
	hint := m.theme.hintStyle().Render("Press q to stop watching")
	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, line, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render(fmt.Sprintf("\nStopped watching task %s.\n", m.taskID))
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Ingestion failed: %s\n", m.err))
	}
	msg := "✓ Completed"
	if m.task != nil && m.task.Progress != "" {
		msg += ": " + m.task.Progress
	}
	return m.theme.completedStyle().Render(msg) + "\n"
}

func (m progressModel) fetchTask() tea.Cmd {
	return func() tea.Msg {
		t, err := m.tasks.Get(m.taskID)
		return taskUpdateMsg{task: t, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// videoFraction reads "Processing video i/n" progress text as the share of
// videos already finished.
func videoFraction(text string, videos int) float64 {
	var i, n int
	idx := strings.Index(text, "video ")
	if idx < 0 {
		return 0
	}
	if _, err := fmt.Sscanf(text[idx:], "video %d/%d", &i, &n); err != nil || n <= 0 {
		return 0
	}
	if videos > 0 && n != videos {
		n = videos
	}
	return min(float64(i-1)/float64(n), 1)
}

// RunTaskProgress shows an interactive progress bar until the task finishes.
// It returns the task error on failure and errDetached if the user quits early.
func RunTaskProgress(reg *service.TaskRegistry, taskID string, videos int) error {
	p := tea.NewProgram(newProgressModel(reg, taskID, videos))

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}
	if m, ok := final.(progressModel); ok {
		if m.quitting {
			return errDetached
		}
		return m.err
	}
	return nil
}

// waitForTask polls the registry until the task reaches a terminal status,
// calling report whenever the progress text changes.
func waitForTask(ctx context.Context, reg taskReader, taskID string, report func(models.Task)) (models.Task, error) {
	var last string
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		t, err := reg.Get(taskID)
		if err != nil {
			return models.Task{}, err
		}
		if t.Progress != last && report != nil {
			report(t)
			last = t.Progress
		}
		if t.Status.Terminal() {
			if t.Status != models.TaskCompleted {
				if t.Error != "" {
					return t, errors.New(t.Error)
				}
				return t, fmt.Errorf("task %s", t.Status)
			}
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ticker.C:
		}
	}
}
