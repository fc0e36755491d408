package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fss-project/fss/cmd"
	"github.com/fss-project/fss/pkg/client"
	"github.com/fss-project/fss/pkg/protocol"
)

// operation adapts a simple client operation into a command entry point. The
// success message is printed if the operation succeeds.
func operation(perform func(context.Context, *client.Client, []string) error, success string) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, arguments []string) error {
		// Connect to the server and defer closure of the connection.
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		// Perform the operation.
		if err := perform(context.Background(), c, arguments); err != nil {
			return err
		}

		// Success.
		if success != "" {
			fmt.Println(success)
		}
		return nil
	}
}

// newOperationCommand creates a command for a simple client operation. The
// command is named after the action and accepts the action's arity.
func newOperationCommand(action protocol.Action, usage, short string, entry func(*cobra.Command, []string) error) *cobra.Command {
	command := &cobra.Command{
		Use:          strings.TrimSpace(action.String() + " " + usage),
		Short:        short,
		Args:         cmd.ExactArguments(action.Arity()),
		Run:          cmd.Mainify(entry),
		SilenceUsage: true,
	}
	command.Flags().SortFlags = false
	command.Flags().BoolP("help", "h", false, "Show help information")
	return command
}

// dirMain lists a remote directory.
func dirMain(ctx context.Context, c *client.Client, arguments []string) error {
	listing, err := c.List(ctx, arguments[0])
	if err != nil {
		return err
	}
	fmt.Println("Directory contents:")
	for _, name := range listing {
		fmt.Println(name)
	}
	return nil
}

// mkdirMain creates a remote directory.
func mkdirMain(ctx context.Context, c *client.Client, arguments []string) error {
	return c.MakeDirectory(ctx, arguments[0])
}

// rmdirMain removes a remote directory.
func rmdirMain(ctx context.Context, c *client.Client, arguments []string) error {
	return c.RemoveDirectory(ctx, arguments[0])
}

// rmMain removes a remote file.
func rmMain(ctx context.Context, c *client.Client, arguments []string) error {
	return c.Remove(ctx, arguments[0])
}

// shutdownMain asks the server to shut down.
func shutdownMain(ctx context.Context, c *client.Client, _ []string) error {
	return c.Shutdown(ctx)
}

var (
	// dirCommand is the dir command.
	dirCommand = newOperationCommand(protocol.ActionListDirectory, "<remotePath>", "List a remote directory",
		operation(dirMain, ""),
	)
	// mkdirCommand is the mkdir command.
	mkdirCommand = newOperationCommand(protocol.ActionMakeDirectory, "<remotePath>", "Create a remote directory",
		operation(mkdirMain, "Directory created"),
	)
	// rmdirCommand is the rmdir command.
	rmdirCommand = newOperationCommand(protocol.ActionRemoveDirectory, "<remotePath>", "Remove an empty remote directory",
		operation(rmdirMain, "Directory removed"),
	)
	// rmCommand is the rm command.
	rmCommand = newOperationCommand(protocol.ActionRemoveFile, "<remotePath>", "Remove a remote file",
		operation(rmMain, "File removed"),
	)
	// shutdownCommand is the shutdown command.
	shutdownCommand = newOperationCommand(protocol.ActionShutdown, "", "Shut down the server",
		operation(shutdownMain, "Server shutting down"),
	)
)
