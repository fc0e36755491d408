package transfer

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/fss-project/fss/pkg/logging"
	"github.com/fss-project/fss/pkg/must"
)

// ErrSourceTruncated is returned by Download.Read if the source file shrinks
// while it's being transferred.
var ErrSourceTruncated = errors.New("file was truncated during transfer")

// Download is a session that sends a file's content.
type Download struct {
	// logger is the session logger.
	logger *logging.Logger
	// path is the source path.
	path string
	// total is the size of the source file when the session was opened.
	total uint64
	// resume is the offset at which the session started.
	resume uint64
	// cursor is the offset of the next byte to be read.
	cursor uint64
	// fileLock serializes access to file, which may be closed concurrently
	// by a registry.
	fileLock sync.Mutex
	// file is the source file. It is nil once the session is closed.
	file *os.File
	// buffer is the block buffer.
	buffer []byte
}

// OpenDownload opens a download session for a source file. If resume lies
// strictly between zero and the file's size, the session starts at resume.
// Otherwise it starts at offset 0. Blocks are at most blockSize bytes long.
func OpenDownload(path string, resume uint64, blockSize int, logger *logging.Logger) (*Download, error) {
	// Validate the block size.
	if blockSize <= 0 {
		return nil, errors.New("invalid block size")
	}

	// Open the source.
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open source")
	}

	// Determine its size.
	metadata, err := file.Stat()
	if err != nil {
		must.Close(file, logger)
		return nil, errors.Wrap(err, "unable to query source")
	} else if metadata.IsDir() {
		must.Close(file, logger)
		return nil, errors.New("source is a directory")
	}
	total := uint64(metadata.Size())

	// Compute the starting offset. Offsets outside of the file's extent
	// indicate unrelated or stale local content, so the file is sent in full.
	if resume >= total {
		resume = 0
	}

	// Log the session parameters.
	if resume > 0 {
		logger.Debugf("Resuming download of %s at %d of %d bytes", path, resume, total)
	} else {
		logger.Debugf("Starting download of %d bytes from %s", total, path)
	}

	// Success.
	return &Download{
		logger: logger,
		path:   path,
		total:  total,
		resume: resume,
		cursor: resume,
		file:   file,
		buffer: make([]byte, blockSize),
	}, nil
}

// Path implements Session.Path.
func (d *Download) Path() string {
	return d.path
}

// TotalSize implements Session.TotalSize.
func (d *Download) TotalSize() uint64 {
	return d.total
}

// ResumeOffset implements Session.ResumeOffset.
func (d *Download) ResumeOffset() uint64 {
	return d.resume
}

// Cursor implements Session.Cursor.
func (d *Download) Cursor() uint64 {
	return d.cursor
}

// Complete implements Session.Complete.
func (d *Download) Complete() bool {
	return d.cursor == d.total
}

// Read reads the next block from the cursor and advances the cursor. It returns
// io.EOF only once all content has been read. The returned slice is only valid
// until the next call to Read.
func (d *Download) Read() ([]byte, error) {
	// Verify that the session is open.
	d.fileLock.Lock()
	defer d.fileLock.Unlock()
	if d.file == nil {
		return nil, ErrSessionClosed
	}

	// Check for completion.
	if d.cursor >= d.total {
		return nil, io.EOF
	}

	// Perform the read.
	length := minimum(uint64(len(d.buffer)), d.total-d.cursor)
	read, err := d.file.ReadAt(d.buffer[:length], int64(d.cursor))
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "unable to read block")
	} else if read == 0 {
		return nil, ErrSourceTruncated
	}
	d.cursor += uint64(read)

	// Success.
	return d.buffer[:read], nil
}

// Close implements io.Closer.Close. It is safe to call multiple times.
func (d *Download) Close() error {
	d.fileLock.Lock()
	defer d.fileLock.Unlock()
	if d.file == nil {
		return nil
	}
	file := d.file
	d.file = nil
	if err := file.Close(); err != nil {
		return errors.Wrap(err, "unable to close source")
	}
	return nil
}
