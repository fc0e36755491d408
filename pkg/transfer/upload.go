package transfer

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/fss-project/fss/pkg/logging"
)

// Upload is a session that receives a file's content.
type Upload struct {
	// logger is the session logger.
	logger *logging.Logger
	// path is the destination path.
	path string
	// total is the declared size of the complete file.
	total uint64
	// resume is the offset at which the session started.
	resume uint64
	// cursor is the offset at which the next byte will be written.
	cursor uint64
	// fileLock serializes access to file, which may be closed concurrently
	// by a registry.
	fileLock sync.Mutex
	// file is the destination file. It is nil once the session is closed.
	file *os.File
}

// OpenUpload opens an upload session for a destination file whose complete
// content will be total bytes long. If the destination exists and is shorter
// than total, the session resumes at the end of the existing content.
// Otherwise the destination is created or truncated and the session starts at
// offset 0.
func OpenUpload(path string, total uint64, logger *logging.Logger) (*Upload, error) {
	// Determine whether or not there is existing content to resume from.
	var resume uint64
	if metadata, err := os.Stat(path); err == nil {
		if metadata.IsDir() {
			return nil, errors.New("destination is a directory")
		}
		if existing := uint64(metadata.Size()); existing > 0 && existing < total {
			resume = existing
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "unable to query destination")
	}

	// Open the destination. A resumed upload keeps the existing content while
	// a fresh upload starts from an empty file, which also discards stale
	// content that's at least as long as the new file.
	flags := os.O_WRONLY | os.O_CREATE
	if resume == 0 {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open destination")
	}

	// Log the session parameters.
	if resume > 0 {
		logger.Debugf("Resuming upload to %s at %d of %d bytes", path, resume, total)
	} else {
		logger.Debugf("Starting upload of %d bytes to %s", total, path)
	}

	// Success.
	return &Upload{
		logger: logger,
		path:   path,
		total:  total,
		resume: resume,
		cursor: resume,
		file:   file,
	}, nil
}

// Path implements Session.Path.
func (u *Upload) Path() string {
	return u.path
}

// TotalSize implements Session.TotalSize.
func (u *Upload) TotalSize() uint64 {
	return u.total
}

// ResumeOffset implements Session.ResumeOffset.
func (u *Upload) ResumeOffset() uint64 {
	return u.resume
}

// Cursor implements Session.Cursor.
func (u *Upload) Cursor() uint64 {
	return u.cursor
}

// Complete implements Session.Complete.
func (u *Upload) Complete() bool {
	return u.cursor == u.total
}

// Write writes a block at the cursor and advances the cursor by the number of
// bytes written. Content beyond the declared total size is discarded.
func (u *Upload) Write(data []byte) (int, error) {
	// Verify that the session is open.
	u.fileLock.Lock()
	defer u.fileLock.Unlock()
	if u.file == nil {
		return 0, ErrSessionClosed
	}

	// Clamp the data to the remaining size.
	remaining := u.total - u.cursor
	if uint64(len(data)) > remaining {
		u.logger.Warnf("Discarding %d bytes beyond declared size of %s", uint64(len(data))-remaining, u.path)
		data = data[:remaining]
	}
	if len(data) == 0 {
		return 0, nil
	}

	// Perform the write.
	written, err := u.file.WriteAt(data, int64(u.cursor))
	u.cursor += uint64(written)
	if err != nil {
		return written, errors.Wrap(err, "unable to write block")
	}

	// Success.
	return written, nil
}

// Close implements io.Closer.Close. It is safe to call multiple times.
func (u *Upload) Close() error {
	u.fileLock.Lock()
	defer u.fileLock.Unlock()
	if u.file == nil {
		return nil
	}
	file := u.file
	u.file = nil
	if err := file.Close(); err != nil {
		return errors.Wrap(err, "unable to close destination")
	}
	return nil
}
