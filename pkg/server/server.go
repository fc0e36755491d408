// Package server implements the fss server: it serves the FileSharing gRPC
// service for a single root directory until it's cancelled or asked to shut
// down by a client.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"golang.org/x/net/netutil"

	"google.golang.org/grpc"

	"github.com/fss-project/fss/pkg/filesystem"
	"github.com/fss-project/fss/pkg/grpcutil"
	"github.com/fss-project/fss/pkg/logging"
	"github.com/fss-project/fss/pkg/must"
	"github.com/fss-project/fss/pkg/router"
	filesharingsvc "github.com/fss-project/fss/pkg/service/filesharing"
	"github.com/fss-project/fss/pkg/transfer"
)

// Options configures a Server.
type Options struct {
	// BlockSize is the transfer block size.
	BlockSize int
	// MaximumConnections limits the number of simultaneously accepted
	// connections. A value of 0 imposes no limit.
	MaximumConnections int
	// ShutdownGracePeriod is the time allowed for in-flight exchanges to finish
	// after termination before they're forcibly stopped.
	ShutdownGracePeriod time.Duration
	// Exclude lists patterns for entries to omit from directory listings.
	Exclude []string
	// LockPath is the path of the root lock file. If empty, a path derived
	// from the root is used.
	LockPath string
}

// Server serves a root directory.
type Server struct {
	// logger is the server logger.
	logger *logging.Logger
	// root is the served root.
	root *filesystem.Root
	// options are the server options.
	options Options
	// lock is the root lock.
	lock *Lock
	// sessions tracks open transfer sessions.
	sessions *transfer.Registry
	// server is the underlying gRPC server.
	server *grpc.Server
	// running indicates whether or not the server is serving.
	running atomic.Bool
	// termination is closed when termination is requested.
	termination chan struct{}
	// terminateOnce guards closure of termination.
	terminateOnce sync.Once
	// served indicates whether or not Serve has been invoked.
	served atomic.Bool
}

// New creates a new server for the specified root directory, acquiring the
// root's lock. The lock is released when Serve returns or by Close if Serve is
// never invoked.
func New(rootPath string, options Options, logger *logging.Logger) (*Server, error) {
	// Validate options.
	if options.BlockSize <= 0 {
		return nil, errors.New("block size must be positive")
	} else if options.MaximumConnections < 0 {
		return nil, errors.New("maximum connections must be non-negative")
	}

	// Resolve the root.
	root, err := filesystem.NewRoot(rootPath)
	if err != nil {
		return nil, errors.Wrap(err, "invalid root")
	}

	// Compute the lock path if necessary.
	lockPath := options.LockPath
	if lockPath == "" {
		if lockPath, err = DefaultLockPath(root.Path()); err != nil {
			return nil, errors.Wrap(err, "unable to compute lock path")
		}
	}

	// Create the server.
	s := &Server{
		logger:      logger,
		root:        root,
		options:     options,
		sessions:    transfer.NewRegistry(),
		termination: make(chan struct{}),
	}

	// Create the router.
	dispatcher, err := router.New(root, router.Options{
		BlockSize: options.BlockSize,
		Exclude:   options.Exclude,
		Shutdown:  s.Terminate,
	}, logger.Sublogger("router"))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create router")
	}

	// Acquire the root lock.
	if s.lock, err = AcquireLock(lockPath, root.Path()); err != nil {
		return nil, errors.Wrap(err, "unable to acquire root lock")
	}
	logger.Debugf("Acquired root lock at %s", lockPath)

	// Create the gRPC server and register the FileSharing service.
	s.server = grpc.NewServer(
		grpc.MaxSendMsgSize(grpcutil.MaximumMessageSize),
		grpc.MaxRecvMsgSize(grpcutil.MaximumMessageSize),
	)
	filesharingsvc.RegisterFileSharingServer(s.server,
		filesharingsvc.NewServer(dispatcher, s.sessions, logger.Sublogger("exchange")),
	)

	// Success.
	return s, nil
}

// Root returns the absolute path of the served root.
func (s *Server) Root() string {
	return s.root.Path()
}

// Running returns whether or not the server is currently serving.
func (s *Server) Running() bool {
	return s.running.Load()
}

// ActiveTransfers returns the number of open transfer sessions.
func (s *Server) ActiveTransfers() int {
	return s.sessions.Len()
}

// Terminate requests that the server stop serving. It is safe to call from any
// Goroutine and any number of times.
func (s *Server) Terminate() {
	s.terminateOnce.Do(func() {
		s.running.Store(false)
		close(s.termination)
	})
}

// Serve serves connections from the listener until the context is cancelled,
// termination is requested, or serving fails. It then stops the server,
// closes any open sessions, and releases the root lock. Serve may only be
// invoked once. Termination via context or Terminate is not an error.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	// Ensure that this is the only invocation.
	if !s.served.CompareAndSwap(false, true) {
		return errors.New("server already served")
	}
	defer s.releaseLock()

	// Apply the connection limit.
	if s.options.MaximumConnections > 0 {
		listener = netutil.LimitListener(listener, s.options.MaximumConnections)
	}

	// Bail if termination was requested before serving started.
	select {
	case <-s.termination:
		listener.Close()
		return nil
	default:
	}

	// Serve incoming connections in a separate Goroutine, watching for serving
	// failure.
	s.running.Store(true)
	s.logger.Infof("Serving %s on %s", s.root.Path(), listener.Addr())
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- s.server.Serve(listener)
	}()

	// Wait for cancellation, termination, or failure.
	var err error
	select {
	case <-ctx.Done():
		s.logger.Info("Server cancelled")
	case <-s.termination:
		s.logger.Info("Server termination requested")
	case err = <-serverErrors:
		err = errors.Wrap(err, "server failure")
	}
	s.running.Store(false)

	// Shut down.
	s.stop()
	return err
}

// stop stops the gRPC server, allowing in-flight exchanges the grace period to
// complete, and then closes any sessions that remain open.
func (s *Server) stop() {
	// Attempt a graceful stop.
	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	// Wait for the graceful stop or the grace period to expire.
	timer := time.NewTimer(s.options.ShutdownGracePeriod)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		s.logger.Warn("Shutdown grace period expired, closing active connections")
		s.server.Stop()
		<-stopped
	}

	// Close any remaining sessions.
	if count, err := s.sessions.CloseAll(); err != nil {
		s.logger.Warnf("Unable to close transfer sessions: %v", err)
	} else if count > 0 {
		s.logger.Infof("Closed %d transfer sessions", count)
	}
	s.logger.Info("Server stopped")
}

// releaseLock releases the root lock.
func (s *Server) releaseLock() {
	must.Release(s.lock, s.logger)
}

// Close releases the resources of a server that was never served. It has no
// effect if Serve has been invoked.
func (s *Server) Close() {
	if s.served.CompareAndSwap(false, true) {
		s.server.Stop()
		s.releaseLock()
	}
}
