package main

import (
	"github.com/spf13/cobra"

	"github.com/fss-project/fss/cmd"
	"github.com/fss-project/fss/cmd/fss/client"
	"github.com/fss-project/fss/cmd/fss/server"
	"github.com/fss-project/fss/pkg/fss"
	"github.com/fss-project/fss/pkg/must"
)

// rootMain is the entry point for the root command.
func rootMain(command *cobra.Command, _ []string) error {
	// If no commands were given, then print help information and bail. We don't
	// have to worry about warning about arguments being present here (which
	// would be incorrect usage) because arguments can't even reach this point
	// (they will be mistaken for subcommands and a error will be displayed).
	must.CommandHelp(command, nil)

	// Success.
	return nil
}

// rootCommand is the root command.
var rootCommand = &cobra.Command{
	Use:           "fss",
	Version:       fss.Version,
	Short:         "fss serves a directory tree for resumable remote file operations",
	Run:           cmd.Mainify(rootMain),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// rootConfiguration stores configuration for the root command.
var rootConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
}

func init() {
	// Disable Cobra's command sorting behavior. By default, it sorts commands
	// alphabetically in the help output.
	cobra.EnableCommandSorting = false

	// Set the template used by the version flag.
	rootCommand.SetVersionTemplate("fss version {{ .Version }}\n")

	// Grab a handle for the command line flags.
	flags := rootCommand.Flags()

	// Disable alphabetical sorting of flags in help output.
	flags.SortFlags = false

	// Manually add a help flag to override the default message. Cobra will
	// still implement its logic automatically.
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")

	// Hide Cobra's completion command.
	rootCommand.CompletionOptions.HiddenDefaultCmd = true

	// Register commands. We do this here (rather than in individual init
	// functions) so that we can control the order.
	rootCommand.AddCommand(
		server.RootCommand,
		client.RootCommand,
		versionCommand,
	)
}

func main() {
	// Execute the root command. Errors are printed by us rather than Cobra so
	// that they're colorized consistently.
	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
