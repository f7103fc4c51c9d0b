// Package tui renders the "watch" command's live event stream with
// bubbletea, matching the teacher's internal/cli/tui package (a Model/
// Update/View triple plus a Bridge translating domain events into tea.Msg).
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// EventLine is one rendered line of a batch's event stream.
type EventLine struct {
	Sequence  int
	Type      string
	BackendID string
	Error     string
	Time      time.Time
}

// Model is the bubbletea model backing the watch command.
type Model struct {
	BatchID   string
	Styles    Styles
	Lines     []EventLine
	LineLimit int
	StartTime time.Time

	Quitting bool
	Done     bool
	Err      error
}

// NewModel creates a Model watching batchID.
func NewModel(batchID string) *Model {
	return &Model{
		BatchID:   batchID,
		Styles:    DefaultStyles(),
		LineLimit: 200,
		StartTime: time.Now(),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

// TickMsg is sent once a second so the elapsed timer stays live.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// EventMsg carries one streamed job event into the program.
type EventMsg EventLine

// DoneMsg signals the watched stream ended.
type DoneMsg struct{}

// ErrMsg signals the watched stream failed.
type ErrMsg struct{ Err error }
