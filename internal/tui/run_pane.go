package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/devflowhq/devflow/internal/events"
)

// RunPaneModel shows the current phase and graph progress.
type RunPaneModel struct {
	phase      string
	detail     string
	total      int
	pending    int
	inProgress int
	succeeded  int
	failed     int
	skipped    int
	iterations int
	width      int
	height     int
	focused    bool
}

// NewRunPaneModel creates a new run pane model.
func NewRunPaneModel() RunPaneModel {
	return RunPaneModel{phase: "starting"}
}

// Update handles messages for the run pane.
func (m RunPaneModel) Update(msg tea.Msg) (RunPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.RunPhaseEvent:
		m.phase = msg.Phase
		m.detail = msg.Detail

	case events.RunProgressEvent:
		m.total = msg.Total
		m.pending = msg.Pending
		m.inProgress = msg.InProgress
		m.succeeded = msg.Succeeded
		m.failed = msg.Failed
		m.skipped = msg.Skipped
		m.iterations = msg.Iterations
	}

	return m, nil
}

// View renders the run pane.
func (m RunPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Run Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	phase := m.phase
	if m.detail != "" {
		phase = fmt.Sprintf("%s (%s)", m.phase, m.detail)
	}
	b.WriteString(fmt.Sprintf("Phase:      %s\n", StyleStatusRunning.Render(phase)))
	b.WriteString(fmt.Sprintf("Iterations: %d\n\n", m.iterations))

	b.WriteString(fmt.Sprintf("Total:      %d\n", m.total))
	b.WriteString(fmt.Sprintf("Succeeded:  %s\n", StyleStatusSucceeded.Render(fmt.Sprintf("%d", m.succeeded))))
	b.WriteString(fmt.Sprintf("Running:    %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.inProgress))))
	b.WriteString(fmt.Sprintf("Failed:     %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Skipped:    %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.skipped))))
	b.WriteString(fmt.Sprintf("Pending:    %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending))))

	b.WriteString("\n")

	// Progress bar
	if m.total > 0 {
		barWidth := minInt(m.width-4, 40)
		succeededWidth := (m.succeeded * barWidth) / m.total
		failedWidth := ((m.failed + m.skipped) * barWidth) / m.total
		runningWidth := (m.inProgress * barWidth) / m.total
		pendingWidth := barWidth - succeededWidth - failedWidth - runningWidth

		bar := StyleStatusSucceeded.Render(strings.Repeat("=", maxInt(0, succeededWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", maxInt(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", maxInt(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", maxInt(0, pendingWidth)))

		settled := m.succeeded + m.failed + m.skipped
		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, settled, m.total))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *RunPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *RunPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
