package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dispatchd/dispatchd/internal/client"
)

// NewWorkersCmd creates the 'workers' command for listing Worker Records.
func NewWorkersCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List workers known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(defaultSocketPath())
			if err != nil {
				return fmt.Errorf("failed to connect to daemon: %w", err)
			}
			defer c.Close()

			workers, err := c.ListWorkers(cmd.Context())
			if err != nil {
				return err
			}
			displayWorkers(workers)
			return nil
		},
	}
}
