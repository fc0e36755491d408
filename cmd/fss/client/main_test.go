package client

import (
	"io"
	"strings"
	"testing"

	"github.com/fss-project/fss/pkg/protocol"
)

func init() {
	// Discard the usage information printed by failed validation.
	RootCommand.SetOut(io.Discard)
	RootCommand.SetErr(io.Discard)
}

func TestActionCommands(t *testing.T) {
	actions := []protocol.Action{
		protocol.ActionShutdown,
		protocol.ActionRemoveFile,
		protocol.ActionRemoveDirectory,
		protocol.ActionUpload,
		protocol.ActionDownload,
		protocol.ActionListDirectory,
		protocol.ActionMakeDirectory,
	}
	for _, action := range actions {
		command, ok := actionCommands[action]
		if !ok {
			t.Error("no command for action:", action)
			continue
		}
		if command.Name() != action.String() {
			t.Error("command name does not match action:", command.Name(), "!=", action)
		}
		if err := command.Args(command, make([]string, action.Arity())); err != nil {
			t.Error("command rejected action arity:", action, err)
		}
		if err := command.Args(command, make([]string, action.Arity()+1)); err == nil {
			t.Error("command accepted excess arguments:", action)
		}
	}
}

func TestRootMainUnknownCommand(t *testing.T) {
	if err := rootMain(RootCommand, []string{"frobnicate"}); err == nil {
		t.Error("unknown command accepted")
	}
}

func TestRootMainMatchesActionsIgnoringCase(t *testing.T) {
	// The upload action is found, but validation of its arguments fails before
	// any connection is attempted.
	err := rootMain(RootCommand, []string{"UPLOAD", "only-one"})
	if err == nil {
		t.Fatal("upload with missing argument accepted")
	} else if !strings.Contains(err.Error(), "invalid number of arguments") {
		t.Error("unexpected error for upload with missing argument:", err)
	}
}
