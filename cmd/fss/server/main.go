package server

import (
	"github.com/spf13/cobra"

	"github.com/fss-project/fss/cmd"
	"github.com/fss-project/fss/pkg/must"
)

// rootMain is the entry point for the root command.
func rootMain(command *cobra.Command, _ []string) error {
	// If no commands were given, then print help information and bail.
	must.CommandHelp(command, nil)

	// Success.
	return nil
}

// RootCommand is the root command for server management.
var RootCommand = &cobra.Command{
	Use:          "server",
	Short:        "Run an fss server",
	Run:          cmd.Mainify(rootMain),
	SilenceUsage: true,
}

// rootConfiguration stores configuration for the root command.
var rootConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
}

func init() {
	// Grab a handle for the command line flags.
	flags := RootCommand.Flags()

	// Disable alphabetical sorting of flags in help output.
	flags.SortFlags = false

	// Manually add a help flag to override the default message. Cobra will
	// still implement its logic automatically.
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")

	// Register commands.
	RootCommand.AddCommand(startCommand)
}
