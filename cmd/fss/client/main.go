package client

import (
	"github.com/pkg/errors"

	"github.com/spf13/cobra"

	"github.com/fss-project/fss/cmd"
	"github.com/fss-project/fss/pkg/client"
	"github.com/fss-project/fss/pkg/configuration"
	"github.com/fss-project/fss/pkg/must"
	"github.com/fss-project/fss/pkg/protocol"
)

// connect creates a client for the server endpoint specified in the
// environment.
func connect() (*client.Client, error) {
	endpoint, err := configuration.LoadClientEnvironment(configuration.DefaultEnvironmentFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to determine server endpoint")
	}
	return client.Dial(endpoint)
}

// actionCommands maps actions to the commands that perform them.
var actionCommands = make(map[protocol.Action]*cobra.Command)

// rootMain is the entry point for the root command. Cobra only matches command
// names exactly, so any arguments that reach it are treated as an action name
// in some other case (e.g. "UPLOAD") followed by the action's arguments.
func rootMain(command *cobra.Command, arguments []string) error {
	// If no commands were given, then print help information and bail.
	if len(arguments) == 0 {
		must.CommandHelp(command, nil)
		return nil
	}

	// Look up the command for the action.
	action, ok := protocol.ParseAction(arguments[0])
	if !ok {
		command.Usage()
		return errors.Errorf("unknown command: %s", arguments[0])
	}
	target := actionCommands[action]

	// Validate arguments and run the command.
	if err := target.Args(target, arguments[1:]); err != nil {
		return err
	}
	target.Run(target, arguments[1:])

	// Success.
	return nil
}

// RootCommand is the root command for client operations.
var RootCommand = &cobra.Command{
	Use:   "client",
	Short: "Perform operations against an fss server",
	Long: "Perform operations against an fss server. The server endpoint is read\n" +
		"from the " + configuration.EndpointEnvironmentVariable + " environment variable (hostname:port), which may\n" +
		"also be set in a " + configuration.DefaultEnvironmentFile + " file in the working directory.",
	Args:         cobra.ArbitraryArgs,
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

	// Register commands and index them by action.
	commands := []*cobra.Command{
		uploadCommand,
		downloadCommand,
		dirCommand,
		mkdirCommand,
		rmdirCommand,
		rmCommand,
		shutdownCommand,
	}
	RootCommand.AddCommand(commands...)
	for _, command := range commands {
		if action, ok := protocol.ParseAction(command.Name()); !ok {
			panic("client command not named after an action: " + command.Name())
		} else {
			actionCommands[action] = command
		}
	}
}
