package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dispatchd/dispatchd/internal/apiv1"
)

// Bridge connects a streamed apiv1.JobEvent feed to a running tea.Program.
type Bridge struct {
	program *tea.Program
}

// NewBridge creates a Bridge for the given program.
func NewBridge(program *tea.Program) *Bridge {
	return &Bridge{program: program}
}

// Handler returns a callback suitable for client.Client.WatchJob.
func (b *Bridge) Handler() func(*apiv1.JobEvent) {
	return func(e *apiv1.JobEvent) {
		b.program.Send(EventMsg{
			Sequence:  e.Sequence,
			Type:      e.Type,
			BackendID: e.BackendID,
			Error:     e.Error,
			Time:      e.Timestamp,
		})
	}
}

// SendDone signals the watched stream ended normally.
func (b *Bridge) SendDone() {
	b.program.Send(DoneMsg{})
}

// SendErr signals the watched stream ended in error.
func (b *Bridge) SendErr(err error) {
	b.program.Send(ErrMsg{Err: err})
}
