package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/shotscan/internal/engine"
)

// View renders the monitor.
func (m Model) View() string {
	if m.summary != nil {
		return m.renderSummary()
	}

	var b strings.Builder
	b.WriteString(m.theme.Title.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.renderState())
	b.WriteString("\n\n")
	b.WriteString(m.progress.ViewAs(m.status.Progress))
	b.WriteString(fmt.Sprintf(" %d/%d\n\n", m.status.Counts.Done(), m.status.Total))
	b.WriteString(m.renderCounts(m.status.Counts))
	if m.status.Degraded {
		b.WriteString("\n")
		b.WriteString(m.theme.StatusWarning.Render("Some results could not be saved and exist only in memory"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))

	return m.theme.RoundedBox.Render(b.String())
}

func (m Model) renderState() string {
	switch {
	case m.cancelling:
		return m.theme.StatusWarning.Render("Cancelling after the current image...")
	case m.status.State == engine.StateError:
		return m.theme.StatusError.Render("Error: " + m.status.Message)
	case m.status.Paused:
		return m.theme.StatusPending.Render("Paused")
	default:
		return m.spinner.View() + " " + m.theme.StatusInfo.Render("Scanning")
	}
}

func (m Model) renderCounts(c engine.Counts) string {
	cells := []string{
		m.theme.StatusSuccess.Render(fmt.Sprintf("processed %d", c.Processed)),
		m.theme.Subtitle.Render(fmt.Sprintf("skipped %d", c.Skipped)),
		m.theme.StatusError.Render(fmt.Sprintf("failed %d", c.Failed+c.PersistenceFailures)),
	}
	return strings.Join(cells, "   ")
}

func (m Model) renderSummary() string {
	s := m.summary
	title := "Scan complete"
	style := m.theme.StatusSuccess
	if s.Cancelled {
		title = "Scan cancelled"
		style = m.theme.StatusWarning
	}

	lines := []string{
		style.Render(title),
		"",
		fmt.Sprintf("Total:     %d", s.Total),
		fmt.Sprintf("Processed: %d", s.Processed),
		fmt.Sprintf("Skipped:   %d", s.Skipped),
		fmt.Sprintf("Failed:    %d", s.Failed),
	}
	if s.PersistenceFailures > 0 {
		lines = append(lines, m.theme.StatusError.Render(fmt.Sprintf("Not saved: %d", s.PersistenceFailures)))
	}
	lines = append(lines, m.theme.Subtitle.Render("Took "+s.Duration.Round(time.Millisecond).String()))
	return m.theme.RoundedBox.Render(strings.Join(lines, "\n")) + "\n"
}
