package client

import (
	"context"
	"fmt"
	"os"

	humanize "github.com/dustin/go-humanize"

	"github.com/spf13/cobra"

	"github.com/fss-project/fss/cmd"
	"github.com/fss-project/fss/pkg/client"
	"github.com/fss-project/fss/pkg/protocol"
)

// transferFunc performs a transfer with progress reporting.
type transferFunc func(*client.Client, context.Context, string, string, client.ProgressFunc) (*client.TransferResult, error)

// runTransfer connects to the server and performs a transfer, reporting its
// progress on standard output.
func runTransfer(verb string, perform transferFunc, source, destination string) error {
	// Connect to the server and defer closure of the connection.
	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	// Set up progress reporting. Status lines are only used on terminals.
	var statusLine *cmd.StatusLinePrinter
	if cmd.IsTerminal(os.Stdout) {
		statusLine = &cmd.StatusLinePrinter{}
	}
	reporter := newProgressReporter(verb, os.Stdout, statusLine)

	// Perform the transfer.
	fmt.Printf("%sing file...\n", capitalize(verb))
	result, err := perform(c, context.Background(), source, destination, reporter.update)
	if err != nil {
		reporter.breakStatusLine()
		return err
	}
	reporter.finish()

	// Success.
	fmt.Printf("File %sed (%s transferred)\n", verb, humanize.IBytes(result.Transferred))
	return nil
}

// capitalize upper-cases the first letter of an ASCII word.
func capitalize(word string) string {
	if word == "" || word[0] < 'a' || word[0] > 'z' {
		return word
	}
	return string(word[0]-'a'+'A') + word[1:]
}

// uploadMain is the entry point for the upload command.
func uploadMain(_ *cobra.Command, arguments []string) error {
	return runTransfer("upload", (*client.Client).Upload, arguments[0], arguments[1])
}

// uploadCommand is the upload command.
var uploadCommand = &cobra.Command{
	Use:          protocol.ActionUpload.String() + " <localPath> <remotePath>",
	Short:        "Upload a file, resuming any interrupted upload",
	Args:         cmd.ExactArguments(protocol.ActionUpload.Arity()),
	Run:          cmd.Mainify(uploadMain),
	SilenceUsage: true,
}

// downloadMain is the entry point for the download command.
func downloadMain(_ *cobra.Command, arguments []string) error {
	return runTransfer("download", (*client.Client).Download, arguments[0], arguments[1])
}

// downloadCommand is the download command.
var downloadCommand = &cobra.Command{
	Use:          protocol.ActionDownload.String() + " <remotePath> <localPath>",
	Short:        "Download a file, resuming any interrupted download",
	Args:         cmd.ExactArguments(protocol.ActionDownload.Arity()),
	Run:          cmd.Mainify(downloadMain),
	SilenceUsage: true,
}

// transferConfiguration stores configuration for the transfer commands.
var transferConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
}

func init() {
	for _, command := range []*cobra.Command{uploadCommand, downloadCommand} {
		// Grab a handle for the command line flags.
		flags := command.Flags()

		// Disable alphabetical sorting of flags in help output.
		flags.SortFlags = false

		// Manually add a help flag to override the default message. Cobra will
		// still implement its logic automatically.
		flags.BoolVarP(&transferConfiguration.help, "help", "h", false, "Show help information")
	}
}
