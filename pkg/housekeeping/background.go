package housekeeping

import (
	"context"
	"time"

	"github.com/fss-project/fss/pkg/logging"
)

const (
	// housekeepingInterval is the interval at which housekeeping is performed
	// by long-lived processes.
	housekeepingInterval = 24 * time.Hour
)

// HousekeepRegularly provides regular housekeeping of the specified locks
// directory at a standard interval. It is designed to be run as a background
// Goroutine in a long-lived process. It will terminate when the provided
// context is cancelled.
func HousekeepRegularly(ctx context.Context, directory string, logger *logging.Logger) {
	// Perform an initial housekeeping operation since the ticker won't fire
	// straight away.
	logger.Debug("Performing initial housekeeping")
	Housekeep(directory, logger)

	// Create a ticker to regulate housekeeping and defer its shutdown.
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	// Loop and wait for the ticker or cancellation.
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug("Performing regular housekeeping")
			Housekeep(directory, logger)
		}
	}
}
