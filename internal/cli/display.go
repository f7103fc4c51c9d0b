package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dispatchd/dispatchd/internal/apiv1"
)

// defaultSocketPath returns the standard daemon socket location, matching
// internal/daemon.DefaultConfig's choice of ~/.dispatchd/daemon.sock.
func defaultSocketPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dispatchd", "daemon.sock")
}

// displayWorkers renders worker records in tabular form.
func displayWorkers(workers []apiv1.WorkerStatus) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tDRIVER\tSTATUS\tOUTSTANDING\tSHADOW")
	for _, rec := range workers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", rec.ID, rec.DriverType, rec.Status, rec.Outstanding, rec.IsShadow)
	}
}

// displayEvent renders a streamed job event to the terminal.
func displayEvent(e *apiv1.JobEvent) {
	timestamp := e.Timestamp.Format("15:04:05")
	msg := fmt.Sprintf("[%s] seq=%d %s", timestamp, e.Sequence, e.Type)
	if e.BackendID != "" {
		msg += fmt.Sprintf(" backend=%s", e.BackendID)
	}
	if e.Error != "" {
		msg += fmt.Sprintf(" error=%q", e.Error)
	}
	fmt.Println(msg)
}

// boolToStatus converts a health boolean to a human-readable status string.
func boolToStatus(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

// formatTime formats a timestamp for display.
func formatTime(t time.Time) string {
	return t.Format("15:04:05")
}
