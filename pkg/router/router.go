package router

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/fss-project/fss/pkg/filesystem"
	"github.com/fss-project/fss/pkg/logging"
	"github.com/fss-project/fss/pkg/protocol"
	"github.com/fss-project/fss/pkg/transfer"
)

// Options configures a Router.
type Options struct {
	// BlockSize is the transfer block size. It must be positive.
	BlockSize int
	// Exclude lists patterns for entries to omit from directory listings.
	Exclude []string
	// Shutdown is invoked for shutdown requests. It may be invoked multiple
	// times and must not block. If nil, shutdown requests are acknowledged but
	// have no effect.
	Shutdown func()
}

// Router validates requests, resolves their paths beneath the served root, and
// performs the requested operations. It is safe for concurrent use.
type Router struct {
	// logger is the router logger.
	logger *logging.Logger
	// root is the served root.
	root *filesystem.Root
	// blockSize is the transfer block size.
	blockSize int
	// exclusions are the listing exclusions.
	exclusions []*exclusion
	// shutdown is the shutdown callback.
	shutdown func()
}

// New creates a new router for the specified root.
func New(root *filesystem.Root, options Options, logger *logging.Logger) (*Router, error) {
	// Validate the block size.
	if options.BlockSize <= 0 {
		return nil, errors.New("block size must be positive")
	}

	// Parse exclusions.
	exclusions := make([]*exclusion, 0, len(options.Exclude))
	for _, pattern := range options.Exclude {
		if e, err := newExclusion(pattern); err != nil {
			return nil, errors.Wrapf(err, "invalid listing exclusion (%s)", pattern)
		} else {
			exclusions = append(exclusions, e)
		}
	}

	// Create the router.
	return &Router{
		logger:     logger,
		root:       root,
		blockSize:  options.BlockSize,
		exclusions: exclusions,
		shutdown:   options.Shutdown,
	}, nil
}

// BlockSize returns the transfer block size.
func (r *Router) BlockSize() int {
	return r.blockSize
}

// Dispatch performs a request. For successful upload and download requests it
// also returns an open session that the caller is responsible for closing.
// Preconditions are checked before anything is modified, and failures are
// always reported through the returned response.
func (r *Router) Dispatch(request *protocol.Request) (*protocol.Response, transfer.Session) {
	// Reject unknown actions.
	if !request.Action.Supported() {
		r.logger.Warnf("Received unsupported action (%d)", request.Action)
		return protocol.Failed(protocol.Errorf(protocol.ErrorKindInvalidArgument, "invalid request")), nil
	}

	// Validate and resolve the argument for actions that take one.
	var path string
	var err error
	if request.Action.RequiresArgument() {
		if path, err = r.resolve(request); err != nil {
			return protocol.Failed(err), nil
		}
	}
	r.logger.Debugf("Dispatching %s for %q", request.Action, request.Argument)

	// Perform the operation.
	switch request.Action {
	case protocol.ActionShutdown:
		r.logger.Info("Shutdown requested")
		if r.shutdown != nil {
			r.shutdown()
		}
	case protocol.ActionRemoveFile:
		err = r.removeFile(request.Argument, path)
	case protocol.ActionRemoveDirectory:
		err = r.removeDirectory(request.Argument, path)
	case protocol.ActionMakeDirectory:
		err = r.makeDirectory(request.Argument, path)
	case protocol.ActionListDirectory:
		var listing []string
		if listing, err = r.listDirectory(request.Argument, path); err == nil {
			response := protocol.Succeeded()
			response.Listing = listing
			return response, nil
		}
	case protocol.ActionUpload:
		var upload *transfer.Upload
		if upload, err = r.upload(request.Argument, path, request.DeclaredSize); err == nil {
			return r.transferResponse(upload), upload
		}
	case protocol.ActionDownload:
		var download *transfer.Download
		if download, err = r.download(request.Argument, path, request.DeclaredSize); err == nil {
			return r.transferResponse(download), download
		}
	}

	// Handle the result.
	if err != nil {
		r.logger.Debugf("%s for %q failed: %v", request.Action, request.Argument, err)
		return protocol.Failed(err), nil
	}
	return protocol.Succeeded(), nil
}

// transferResponse builds the acceptance response for a transfer session.
func (r *Router) transferResponse(session transfer.Session) *protocol.Response {
	response := protocol.Succeeded()
	response.ResumeOffset = session.ResumeOffset()
	response.TotalSize = session.TotalSize()
	response.BlockSize = uint64(r.blockSize)
	return response
}

// missingArgumentMessages are the messages reported for requests lacking an
// argument.
var missingArgumentMessages = map[protocol.Action]string{
	protocol.ActionRemoveFile:      "file name not specified",
	protocol.ActionRemoveDirectory: "directory name not specified",
	protocol.ActionMakeDirectory:   "directory name not specified",
	protocol.ActionListDirectory:   "directory name not specified",
	protocol.ActionUpload:          "no destination file name specified",
	protocol.ActionDownload:        "file name not specified",
}

// resolve validates a request's argument and resolves it beneath the root.
func (r *Router) resolve(request *protocol.Request) (string, error) {
	if strings.TrimSpace(request.Argument) == "" {
		return "", protocol.Errorf(protocol.ErrorKindInvalidArgument, "%s", missingArgumentMessages[request.Action])
	}
	path, err := r.root.Resolve(request.Argument)
	if err == filesystem.ErrRelativePath {
		return "", protocol.Errorf(protocol.ErrorKindInvalidArgument, "relative file paths are not supported")
	} else if err != nil {
		return "", protocol.Errorf(protocol.ErrorKindInvalidArgument, "invalid path: %s", request.Argument)
	}
	return path, nil
}

// ioFailure logs an unexpected filesystem error and converts it to a failure
// that doesn't disclose server-side paths.
func (r *Router) ioFailure(err error, operation, argument string) error {
	r.logger.Warnf("Unable to %s (%s): %v", operation, argument, err)
	return protocol.Errorf(protocol.ErrorKindIOError, "unable to %s: %s", operation, argument)
}

func (r *Router) removeFile(argument, path string) error {
	metadata, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return protocol.Errorf(protocol.ErrorKindNotFound, "file was not found")
	} else if err != nil {
		return r.ioFailure(err, "query file", argument)
	} else if metadata.IsDir() {
		return protocol.Errorf(protocol.ErrorKindIsADirectory, "the specified file is a directory: %s", argument)
	}
	if err := os.Remove(path); err != nil {
		return r.ioFailure(err, "remove file", argument)
	}
	r.logger.Infof("Removed file %s", argument)
	return nil
}

func (r *Router) removeDirectory(argument, path string) error {
	if r.root.IsRoot(path) {
		return protocol.Errorf(protocol.ErrorKindInvalidArgument, "the root directory cannot be removed")
	}
	metadata, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return protocol.Errorf(protocol.ErrorKindNotFound, "directory was not found")
	} else if err != nil {
		return r.ioFailure(err, "query directory", argument)
	} else if !metadata.IsDir() {
		return protocol.Errorf(protocol.ErrorKindNotADirectory, "the specified file is not a directory: %s", argument)
	}
	if names, err := filesystem.DirectoryContentNames(path); err != nil {
		return r.ioFailure(err, "read directory", argument)
	} else if len(names) > 0 {
		return protocol.Errorf(protocol.ErrorKindNotEmpty, "the directory is not empty: %s", argument)
	}
	if err := os.Remove(path); err != nil {
		return r.ioFailure(err, "remove directory", argument)
	}
	r.logger.Infof("Removed directory %s", argument)
	return nil
}

func (r *Router) makeDirectory(argument, path string) error {
	if metadata, err := os.Lstat(path); err == nil {
		if metadata.IsDir() {
			return protocol.Errorf(protocol.ErrorKindAlreadyExists, "directory already exists")
		}
		return protocol.Errorf(protocol.ErrorKindAlreadyExists, "a file with that name already exists")
	} else if !os.IsNotExist(err) {
		return r.ioFailure(err, "query directory", argument)
	}
	if !r.isDirectory(filepath.Dir(path)) {
		return protocol.Errorf(protocol.ErrorKindNotFound, "parent directory was not found")
	}
	if err := os.Mkdir(path, 0755); os.IsExist(err) {
		return protocol.Errorf(protocol.ErrorKindAlreadyExists, "directory already exists")
	} else if err != nil {
		return r.ioFailure(err, "create directory", argument)
	}
	r.logger.Infof("Created directory %s", argument)
	return nil
}

func (r *Router) listDirectory(argument, path string) ([]string, error) {
	metadata, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, protocol.Errorf(protocol.ErrorKindNotFound, "directory was not found")
	} else if err != nil {
		return nil, r.ioFailure(err, "query directory", argument)
	} else if !metadata.IsDir() {
		return nil, protocol.Errorf(protocol.ErrorKindNotADirectory, "the specified file is not a directory: %s", argument)
	}
	names, err := filesystem.DirectoryContentNames(path)
	if err != nil {
		return nil, r.ioFailure(err, "read directory", argument)
	}
	return r.filter(path, names), nil
}

// filter removes excluded names from a directory listing.
func (r *Router) filter(directory string, names []string) []string {
	// Avoid work if there are no exclusions.
	if len(r.exclusions) == 0 {
		return names
	}

	// Compute the directory's root-relative path.
	base, err := r.root.Relative(directory)
	if err != nil {
		r.logger.Warnf("Unable to compute relative path for listing filter: %v", err)
		return names
	}

	// Filter names.
	result := names[:0]
	for _, name := range names {
		path := name
		if base != "" {
			path = base + "/" + name
		}
		var excluded bool
		for _, e := range r.exclusions {
			if e.matches(path) {
				excluded = true
				break
			}
		}
		if !excluded {
			result = append(result, name)
		}
	}
	return result
}

func (r *Router) upload(argument, path string, total uint64) (*transfer.Upload, error) {
	if metadata, err := os.Stat(path); err == nil && metadata.IsDir() {
		return nil, protocol.Errorf(protocol.ErrorKindConflict, "a directory with that name already exists")
	}
	if !r.isDirectory(filepath.Dir(path)) {
		return nil, protocol.Errorf(protocol.ErrorKindNotFound, "directory was not found")
	}
	upload, err := transfer.OpenUpload(path, total, r.logger)
	if err != nil {
		return nil, r.ioFailure(err, "open file for upload", argument)
	}
	r.logger.Infof("Accepted upload of %s (%d bytes, resuming at %d)", argument, total, upload.ResumeOffset())
	return upload, nil
}

func (r *Router) download(argument, path string, resume uint64) (*transfer.Download, error) {
	metadata, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, protocol.Errorf(protocol.ErrorKindNotFound, "file was not found")
	} else if err != nil {
		return nil, r.ioFailure(err, "query file", argument)
	} else if metadata.IsDir() {
		return nil, protocol.Errorf(protocol.ErrorKindInvalidArgument, "directories cannot be downloaded")
	} else if !metadata.Mode().IsRegular() {
		return nil, protocol.Errorf(protocol.ErrorKindInvalidArgument, "only regular files can be downloaded")
	}
	download, err := transfer.OpenDownload(path, resume, r.blockSize, r.logger)
	if err != nil {
		return nil, r.ioFailure(err, "open file for download", argument)
	}
	r.logger.Infof("Accepted download of %s (%d bytes, resuming at %d)", argument, download.TotalSize(), download.ResumeOffset())
	return download, nil
}

// isDirectory returns whether or not a path refers to an existing directory.
func (r *Router) isDirectory(path string) bool {
	metadata, err := os.Stat(path)
	return err == nil && metadata.IsDir()
}
