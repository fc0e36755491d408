// Package contextutil provides small helpers for working with contexts.
package contextutil

import (
	"context"
)

// IsCancelled returns whether or not the context's Done channel is closed. It
// is used by transfer loops to bail out between blocks.
func IsCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
