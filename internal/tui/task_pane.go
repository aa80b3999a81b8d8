package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/devflowhq/devflow/internal/events"
)

// taskState tracks the displayed history of one task.
type taskState struct {
	ID        string
	Name      string
	Category  string
	Status    string // running, retrying, succeeded, failed, skipped
	Lines     []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel shows the task list with a detail viewport for the selected
// task.
type TaskPaneModel struct {
	tasks       map[string]*taskState
	taskOrder   []string // insertion order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*taskState),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		task, exists := m.tasks[msg.ID]
		if !exists {
			task = &taskState{
				ID:        msg.ID,
				Name:      msg.Name,
				Category:  msg.Category,
				StartTime: msg.Timestamp,
			}
			m.tasks[msg.ID] = task
			m.taskOrder = append(m.taskOrder, msg.ID)
			if len(m.taskOrder) == 1 {
				m.selectedIdx = 0
			}
		}
		task.Status = "running"
		task.Lines = append(task.Lines, fmt.Sprintf("Attempt %d started", msg.Attempt))
		m.refreshIfSelected(msg.ID)

	case events.TaskRetryingEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = "retrying"
			task.Lines = append(task.Lines, fmt.Sprintf("Retry %d, findings:", msg.Retry))
			task.Lines = append(task.Lines, indent(msg.Findings))
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskSucceededEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = "succeeded"
			task.Duration = msg.Duration
			task.Lines = append(task.Lines, fmt.Sprintf("Succeeded after %d attempt(s) in %v", msg.Attempts, msg.Duration.Round(time.Millisecond)))
			if msg.Summary != "" {
				task.Lines = append(task.Lines, indent(msg.Summary))
			}
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskFailedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = "failed"
			task.Lines = append(task.Lines, "Failed: "+msg.Reason)
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskSkippedEvent:
		task, exists := m.tasks[msg.ID]
		if !exists {
			// Skipped tasks may never have started
			task = &taskState{ID: msg.ID, Name: msg.ID}
			m.tasks[msg.ID] = task
			m.taskOrder = append(m.taskOrder, msg.ID)
		}
		task.Status = "skipped"
		task.Lines = append(task.Lines, "Skipped: "+msg.Reason)
		m.refreshIfSelected(msg.ID)

	case events.ValidationResultEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Lines = append(task.Lines, renderGateLine(msg))
			m.refreshIfSelected(msg.ID)
		}

	case events.SearchPerformedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			if msg.Unavailable {
				task.Lines = append(task.Lines, "Search unavailable")
			} else {
				task.Lines = append(task.Lines, fmt.Sprintf("Searched %q: %d results", msg.Query, msg.Results))
			}
			m.refreshIfSelected(msg.ID)
		}
	}

	return m, cmd
}

// renderGateLine formats a validation event as one line, gates in stable
// order.
func renderGateLine(msg events.ValidationResultEvent) string {
	verdict := "validation failed"
	if msg.Pass {
		verdict = "validation passed"
	}

	names := make([]string, 0, len(msg.Gates))
	for name := range msg.Gates {
		names = append(names, name)
	}
	sort.Strings(names)

	var gates []string
	for _, name := range names {
		mark := "✗"
		if msg.Gates[name] {
			mark = "✓"
		}
		gates = append(gates, name+mark)
	}
	if len(gates) == 0 {
		return verdict
	}
	return fmt.Sprintf("%s (%s)", verdict, strings.Join(gates, " "))
}

func indent(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := range lines {
		lines[i] = "  " + lines[i]
	}
	return strings.Join(lines, "\n")
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// renderTaskList renders the task list column.
func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", minInt(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Planning..."))
	} else {
		for i, taskID := range m.taskOrder {
			task := m.tasks[taskID]
			name := task.Name
			if len(name) > width-6 {
				name = name[:width-9] + "..."
			}

			line := fmt.Sprintf("%s %s", m.StatusIcon(task.Status), name)
			if i == m.selectedIdx {
				line = lipgloss.NewStyle().
					Background(lipgloss.Color("62")).
					Foreground(lipgloss.Color("0")).
					Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func (m TaskPaneModel) StatusIcon(status string) string {
	switch status {
	case "running", "retrying":
		return StyleStatusRunning.Render("●")
	case "succeeded":
		return StyleStatusSucceeded.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	case "skipped":
		return StyleStatusPending.Render("·")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m TaskPaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

func (m *TaskPaneModel) refreshIfSelected(taskID string) {
	if m.selectedTaskID() == taskID {
		m.updateViewportContent()
	}
}

// updateViewportContent fills the viewport with the selected task's history.
func (m *TaskPaneModel) updateViewportContent() {
	taskID := m.selectedTaskID()
	task, exists := m.tasks[taskID]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	header := fmt.Sprintf("%s (%s)\n\n", task.Name, task.Category)
	m.viewport.SetContent(header + strings.Join(task.Lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	listWidth := 28
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 4

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
