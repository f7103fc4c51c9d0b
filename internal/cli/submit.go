package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dispatchd/dispatchd/internal/apiv1"
	"github.com/dispatchd/dispatchd/internal/client"
)

// NewSubmitCmd creates the 'submit' command for submitting a generation
// request to a running daemon.
func NewSubmitCmd(a *App) *cobra.Command {
	var (
		numImages      int
		modelID        string
		preferredModel string
		doNotSave      bool
	)

	cmd := &cobra.Command{
		Use:   "submit <prompt>",
		Short: "Submit a generation request",
		Long: `Submit a text-to-image generation request to the daemon's dispatcher
and print the resulting batch id, which can be passed to "watch" or "cancel".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(defaultSocketPath())
			if err != nil {
				return fmt.Errorf("failed to connect to daemon: %w", err)
			}
			defer c.Close()

			batchID, err := c.SubmitGeneration(cmd.Context(), &apiv1.SubmitGenerationRequest{
				Prompt:         args[0],
				NumImages:      numImages,
				ModelID:        modelID,
				PreferredModel: preferredModel,
				DoNotSave:      doNotSave,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), batchID)
			return nil
		},
	}

	cmd.Flags().IntVar(&numImages, "num-images", 1, "Number of images to generate")
	cmd.Flags().StringVar(&modelID, "model-id", "", "Specific model id to require")
	cmd.Flags().StringVar(&preferredModel, "preferred-model", "", "Preferred model id, used as a soft hint")
	cmd.Flags().BoolVar(&doNotSave, "do-not-save", false, "Skip persisting generated images")

	return cmd
}
