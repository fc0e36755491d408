package fss

import (
	"os"
)

// DebugEnabled controls whether or not debug logging is enabled by default for
// fss processes. It is set automatically based on the FSS_DEBUG environment
// variable.
var DebugEnabled bool

func init() {
	// Check whether or not debugging should be enabled.
	DebugEnabled = os.Getenv("FSS_DEBUG") == "1"
}
