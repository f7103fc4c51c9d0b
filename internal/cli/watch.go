package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dispatchd/dispatchd/internal/cli/tui"
	"github.com/dispatchd/dispatchd/internal/client"
)

// NewWatchCmd creates the 'watch' command for attaching to a batch's event
// stream. When stdout is a terminal it renders a live bubbletea view;
// otherwise (piped output, --no-tui) it prints one line per event.
func NewWatchCmd(a *App) *cobra.Command {
	var (
		fromSequence int
		noTUI        bool
	)

	cmd := &cobra.Command{
		Use:   "watch <batch-id>",
		Short: "Attach to a batch's event stream",
		Long: `Watch events from a generation batch in real time.

Use --from to resume from a specific sequence number, allowing
reconnection after a network interruption without missing events.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID := args[0]
			if !noTUI && term.IsTerminal(int(os.Stdout.Fd())) {
				return watchJobTUI(cmd.Context(), batchID, fromSequence)
			}
			return watchJobPlain(cmd.Context(), batchID, fromSequence)
		},
	}

	cmd.Flags().IntVar(&fromSequence, "from", 0, "Resume from sequence number")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable the live TUI and print events as plain lines")

	return cmd
}

func watchJobPlain(ctx context.Context, batchID string, fromSequence int) error {
	c, err := client.New(defaultSocketPath())
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer c.Close()

	return c.WatchJob(ctx, batchID, fromSequence, displayEvent)
}

func watchJobTUI(ctx context.Context, batchID string, fromSequence int) error {
	c, err := client.New(defaultSocketPath())
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer c.Close()

	model := tui.NewModel(batchID)
	program := tea.NewProgram(model)
	bridge := tui.NewBridge(program)

	go func() {
		err := c.WatchJob(ctx, batchID, fromSequence, bridge.Handler())
		if err != nil && ctx.Err() == nil {
			bridge.SendErr(err)
			return
		}
		bridge.SendDone()
	}()

	_, err = program.Run()
	return err
}
