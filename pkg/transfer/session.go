package transfer

import (
	"io"

	"github.com/pkg/errors"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("transfer session closed")

// Session is the common interface of upload and download sessions.
type Session interface {
	io.Closer
	// Path returns the absolute path of the file being transferred.
	Path() string
	// TotalSize returns the full size of the file being transferred.
	TotalSize() uint64
	// ResumeOffset returns the offset at which the session started.
	ResumeOffset() uint64
	// Cursor returns the offset of the next byte to be transferred. It never
	// decreases and never exceeds the total size.
	Cursor() uint64
	// Complete indicates whether or not the cursor has reached the total size.
	Complete() bool
}

// minimum returns the smaller of two sizes.
func minimum(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
