package must

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/fss-project/fss/pkg/logging"
)

// Close closes c, logging a warning if closure fails.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("Unable to close: %s", err.Error())
	}
}

// Release releases r, logging a warning if release fails.
func Release(r interface{ Release() error }, logger *logging.Logger) {
	if err := r.Release(); err != nil {
		logger.Warnf("Unable to release: %s", err.Error())
	}
}

// CommandHelp prints help for a command, logging a warning on failure.
func CommandHelp(c *cobra.Command, logger *logging.Logger) {
	if err := c.Help(); err != nil {
		logger.Warnf("Unable to help: %s", err.Error())
	}
}

// Succeed logs a warning if err is non-nil.
func Succeed(err error, task string, logger *logging.Logger) {
	if err != nil {
		logger.Warnf("Unable to succeed at %s; %s", task, err.Error())
	}
}
