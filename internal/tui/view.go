package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"focus-timer/internal/models"
	"focus-timer/internal/timer"
)

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Focus Timer"))
	b.WriteString("  ")
	b.WriteString(m.renderBadge())
	b.WriteString("\n\n")

	b.WriteString(clockStyle.Render(m.snap.FormattedElapsed()))
	b.WriteString("\n")

	if s := m.snap.Session; s != nil {
		b.WriteString(labelStyle.Render(describeSession(s)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderToday())
	b.WriteString("\n")

	if history := m.renderHistory(); history != "" {
		b.WriteString("\n")
		b.WriteString(history)
	}

	if m.snap.Error != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("✗ " + m.snap.Error))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func (m Model) renderBadge() string {
	label := strings.ToUpper(m.snap.State.String())
	if m.snap.Loading {
		label = "…"
	}
	return stateBadge(label, m.snap.IsRunning, m.snap.IsPaused, m.snap.Loading)
}

func (m Model) renderToday() string {
	today := m.snap.Today
	line := fmt.Sprintf("Today  %s across %d session(s)", timer.FormatElapsed(today.TotalDuration), today.SessionCount)
	if today.FocusScoreAvg != nil {
		line += fmt.Sprintf("  avg focus %.1f", *today.FocusScoreAvg)
	}
	return labelStyle.Render(line)
}

func (m Model) renderHistory() string {
	history := m.snap.History
	if len(history) == 0 {
		return ""
	}
	if len(history) > m.opts.HistoryLimit {
		history = history[:m.opts.HistoryLimit]
	}

	lines := []string{labelStyle.Render("Recent sessions")}
	for _, s := range history {
		line := fmt.Sprintf("  #%-5d %s  %s", s.ID, s.StartTime.Local().Format("Jan 02 15:04"), timer.FormatElapsed(s.Duration))
		if s.FocusScore != nil {
			line += fmt.Sprintf("  focus %.0f", *s.FocusScore)
		}
		lines = append(lines, historyStyle.Render(line))
	}
	return strings.Join(lines, "\n") + "\n"
}

func describeSession(s *models.TimerSession) string {
	parts := []string{fmt.Sprintf("session #%d", s.ID)}
	if s.Title != nil {
		parts = append(parts, *s.Title)
	}
	if s.PlanID != nil {
		parts = append(parts, fmt.Sprintf("plan %d", *s.PlanID))
	}
	if s.ProjectID != nil {
		parts = append(parts, fmt.Sprintf("project %d", *s.ProjectID))
	}
	if s.IsZenMode {
		parts = append(parts, "zen")
	}
	if s.InterruptCount > 0 {
		parts = append(parts, fmt.Sprintf("%d interruption(s)", s.InterruptCount))
	}
	return strings.Join(parts, " · ")
}
