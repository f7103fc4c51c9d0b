package tui

import (
	"fmt"
	"strings"
	"time"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.Done || m.Quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderLines())
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderHeader() string {
	elapsed := time.Since(m.StartTime).Round(time.Second)
	return fmt.Sprintf("%s %s %s",
		m.Styles.Title.Render("watching"),
		m.Styles.BatchID.Render(m.BatchID),
		m.Styles.Timer.Render(elapsed.String()),
	)
}

func (m *Model) renderLines() string {
	var b strings.Builder
	for _, line := range m.Lines {
		ts := m.Styles.Timestamp.Render(line.Time.Format("15:04:05"))
		kind := m.Styles.EventType.Render(line.Type)
		row := fmt.Sprintf("%s seq=%-4d %s", ts, line.Sequence, kind)
		if line.BackendID != "" {
			row += " " + m.Styles.Backend.Render("backend="+line.BackendID)
		}
		if line.Error != "" {
			row += " " + m.Styles.Error.Render("error="+line.Error)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	if m.Err != nil {
		b.WriteString(m.Styles.Error.Render("error: "+m.Err.Error()) + "\n")
	}
	return b.String()
}

func (m *Model) renderFooter() string {
	return m.Styles.Footer.Render(m.Styles.FooterKey.Render("q") + " quit")
}
