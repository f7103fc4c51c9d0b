// Package cli wires the dispatchd command-line surface: a daemon command
// group plus batch submit/cancel/watch/workers commands, each a thin client
// over internal/client's gRPC stub, matching the teacher's internal/cli
// package layout (cli.go's App, one file per command or command group).
package cli

import (
	"github.com/spf13/cobra"
)

// versionInfo holds build-time version fields.
type versionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App represents the CLI application with all wired dependencies.
type App struct {
	rootCmd     *cobra.Command
	versionInfo versionInfo
}

// New creates a new CLI application with its full command tree wired.
func New() *App {
	app := &App{}
	app.setupRootCmd()

	app.rootCmd.AddCommand(NewDaemonCmd(app))
	app.rootCmd.AddCommand(NewSubmitCmd(app))
	app.rootCmd.AddCommand(NewCancelCmd(app))
	app.rootCmd.AddCommand(NewWorkersCmd(app))
	app.rootCmd.AddCommand(NewWatchCmd(app))
	app.rootCmd.AddCommand(NewVersionCmd(app))

	return app
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command.
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = versionInfo{Version: version, Commit: commit, Date: date}
}

func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "dispatchd",
		Short: "Text-to-image dispatch core",
		Long: `dispatchd routes generation requests across local and federated
image-backend workers, tracking each worker's health and outstanding load.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
