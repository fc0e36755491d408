package protocol

import (
	"strings"
)

// Action identifies the operation requested by a client.
type Action uint8

const (
	// ActionUnknown is the zero value and is never a valid request action.
	ActionUnknown Action = iota
	// ActionShutdown requests that the server stop accepting connections and
	// exit.
	ActionShutdown
	// ActionRemoveFile requests removal of a file.
	ActionRemoveFile
	// ActionRemoveDirectory requests removal of an empty directory.
	ActionRemoveDirectory
	// ActionUpload requests a (possibly resumed) upload to a remote path.
	ActionUpload
	// ActionDownload requests a (possibly resumed) download from a remote path.
	ActionDownload
	// ActionListDirectory requests the names of a directory's entries.
	ActionListDirectory
	// ActionMakeDirectory requests creation of a directory.
	ActionMakeDirectory
)

// actionNames maps actions to their command line names.
var actionNames = map[Action]string{
	ActionShutdown:        "shutdown",
	ActionRemoveFile:      "rm",
	ActionRemoveDirectory: "rmdir",
	ActionUpload:          "upload",
	ActionDownload:        "download",
	ActionListDirectory:   "dir",
	ActionMakeDirectory:   "mkdir",
}

// actionArities maps actions to the number of command line arguments they
// accept.
var actionArities = map[Action]int{
	ActionShutdown:        0,
	ActionRemoveFile:      1,
	ActionRemoveDirectory: 1,
	ActionUpload:          2,
	ActionDownload:        2,
	ActionListDirectory:   1,
	ActionMakeDirectory:   1,
}

// ParseAction looks up an action by its command line name, ignoring case.
func ParseAction(name string) (Action, bool) {
	name = strings.ToLower(name)
	for action, actionName := range actionNames {
		if actionName == name {
			return action, true
		}
	}
	return ActionUnknown, false
}

// Supported indicates whether or not the action is a known action.
func (a Action) Supported() bool {
	_, ok := actionNames[a]
	return ok
}

// String returns the command line name of the action.
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Arity returns the number of command line arguments that the action accepts.
// Unknown actions have an arity of -1.
func (a Action) Arity() int {
	if arity, ok := actionArities[a]; ok {
		return arity
	}
	return -1
}

// RequiresArgument indicates whether or not requests for the action must carry
// a remote path argument.
func (a Action) RequiresArgument() bool {
	return a.Supported() && a != ActionShutdown
}
