package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dispatchd/dispatchd/internal/client"
)

// NewCancelCmd creates the 'cancel' command for cancelling a batch.
func NewCancelCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <batch-id>",
		Short: "Cancel a generation batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(defaultSocketPath())
			if err != nil {
				return fmt.Errorf("failed to connect to daemon: %w", err)
			}
			defer c.Close()

			cancelled, err := c.CancelGeneration(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cancelled {
				fmt.Fprintf(cmd.OutOrStdout(), "batch %s cancelled\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "batch %s not found\n", args[0])
			}
			return nil
		},
	}
	return cmd
}
