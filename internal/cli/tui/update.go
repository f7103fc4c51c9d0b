package tui

import tea "github.com/charmbracelet/bubbletea"

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		}

	case TickMsg:
		if m.Done || m.Quitting {
			return m, nil
		}
		return m, tickCmd()

	case EventMsg:
		m.Lines = append(m.Lines, EventLine(msg))
		if len(m.Lines) > m.LineLimit {
			m.Lines = m.Lines[len(m.Lines)-m.LineLimit:]
		}
		return m, nil

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case ErrMsg:
		m.Err = msg.Err
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}
