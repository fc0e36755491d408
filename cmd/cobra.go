package cmd

import (
	"github.com/pkg/errors"

	"github.com/spf13/cobra"
)

// Mainify is a small utility that wraps a non-standard Cobra entry point (one
// returning an error) and generates a standard Cobra entry point. It's useful
// for entry points to be able to rely on defer-based cleanup, which doesn't
// occur if the entry point terminates the process. This method allows the entry
// point to indicate an error while still performing cleanup.
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}

// DisallowArguments is a Cobra arguments validator that disallows positional
// arguments. It prints usage information before failing.
func DisallowArguments(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		command.Usage()
		return errors.New("command does not accept arguments")
	}
	return nil
}

// ExactArguments creates a Cobra arguments validator that requires exactly the
// specified number of positional arguments. It prints usage information before
// failing.
func ExactArguments(count int) cobra.PositionalArgs {
	return func(command *cobra.Command, arguments []string) error {
		if len(arguments) != count {
			command.Usage()
			return errors.Errorf("invalid number of arguments (expected %d, received %d)",
				count, len(arguments),
			)
		}
		return nil
	}
}
