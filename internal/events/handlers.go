package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Handler processes a single event. Bus itself has no notion of handlers
// (subscribers pull from a channel); Handler is the shape callers wrap a
// subscription loop around, e.g. `for e := range ch { handler(e) }`.
type Handler func(Event)

// LogConfig configures the logging handler.
type LogConfig struct {
	// Writer is where logs are written (default: os.Stderr).
	Writer io.Writer

	// IncludePayload includes the event payload in log output.
	IncludePayload bool

	// TimeFormat is the timestamp format (default: RFC3339).
	TimeFormat string
}

// LogHandler returns a handler that logs events to the configured writer.
// Format: <time> [event.type] backend=... request=... error=...
func LogHandler(cfg LogConfig) Handler {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	return func(e Event) {
		var buf strings.Builder
		buf.WriteString(e.Time.Format(cfg.TimeFormat))
		buf.WriteString(" ")
		buf.WriteString(e.String())
		if cfg.IncludePayload && e.Payload != nil {
			fmt.Fprintf(&buf, " payload=%v", e.Payload)
		}
		buf.WriteString("\n")

		fmt.Fprint(cfg.Writer, buf.String())
	}
}

// Pump reads from ch until it closes, invoking handler for each event. It is
// meant to run in its own goroutine alongside a Bus.Subscribe call.
func Pump(ch <-chan Event, handler Handler) {
	for e := range ch {
		handler(e)
	}
}
