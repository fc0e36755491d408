package filesharing

import (
	"io"

	"github.com/pkg/errors"

	"github.com/fss-project/fss/pkg/contextutil"
	"github.com/fss-project/fss/pkg/grpcutil"
	"github.com/fss-project/fss/pkg/logging"
	"github.com/fss-project/fss/pkg/must"
	"github.com/fss-project/fss/pkg/protocol"
	"github.com/fss-project/fss/pkg/transfer"
)

// Dispatcher performs requests. It is implemented by router.Router.
type Dispatcher interface {
	// Dispatch performs a request, returning the response to send and, for
	// accepted transfers, an open session.
	Dispatch(*protocol.Request) (*protocol.Response, transfer.Session)
}

// Server provides an implementation of the FileSharing service.
type Server struct {
	// logger is the server logger.
	logger *logging.Logger
	// dispatcher performs requests.
	dispatcher Dispatcher
	// sessions tracks open transfer sessions.
	sessions *transfer.Registry
}

// NewServer creates a new FileSharing server. Transfer sessions are registered
// in the specified registry for the lifetime of their exchange.
func NewServer(dispatcher Dispatcher, sessions *transfer.Registry, logger *logging.Logger) *Server {
	return &Server{
		logger:     logger,
		dispatcher: dispatcher,
		sessions:   sessions,
	}
}

// internalFailure is the response sent when handling fails unexpectedly.
func internalFailure() *protocol.Frame {
	return &protocol.Frame{Response: protocol.Failed(
		protocol.Errorf(protocol.ErrorKindInternal, "internal server error"),
	)}
}

// Exchange implements FileSharingServer.Exchange. It reads the opening
// request, dispatches it, sends the response, and then carries out any
// transfer that the request initiated.
func (s *Server) Exchange(stream FileSharing_ExchangeServer) (err error) {
	// Receive the request.
	logger := s.logger
	frame, err := stream.Recv()
	if err != nil {
		if grpcutil.IsDisconnection(err) {
			logger.Debug("Connection closed before request was received")
			return nil
		}
		return errors.Wrap(err, "unable to receive request")
	} else if frame.Request == nil {
		logger.Warn("Received non-request message at start of exchange")
		return stream.Send(&protocol.Frame{Response: protocol.Failed(
			protocol.Errorf(protocol.ErrorKindInvalidArgument, "invalid request"),
		)})
	}
	request := frame.Request

	// Convert any panic during handling into a failure response. The stream
	// may no longer be writable, in which case the send simply fails.
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Panic while handling %s request: %v", request.Action, r)
			if sendErr := stream.Send(internalFailure()); sendErr != nil {
				logger.Debugf("Unable to send failure response: %v", sendErr)
			}
			err = nil
		}
	}()

	// Dispatch the request and register any resulting session so that it's
	// released on every exit path.
	response, session := s.dispatcher.Dispatch(request)
	if session != nil {
		id, registerErr := s.sessions.Register(session)
		if registerErr != nil {
			must.Close(session, logger)
			logger.Errorf("Unable to register session: %v", registerErr)
			return stream.Send(internalFailure())
		}
		logger = logger.Sublogger(id)
		defer func() {
			if releaseErr := s.sessions.Release(id); releaseErr != nil {
				logger.Warnf("Unable to close session: %v", releaseErr)
			}
		}()
	}

	// Send the response.
	if err := stream.Send(&protocol.Frame{Response: response}); err != nil {
		if grpcutil.IsDisconnection(err) {
			logger.Debug("Connection closed before response was sent")
			return nil
		}
		return errors.Wrap(err, "unable to send response")
	}

	// Carry out any transfer.
	switch typed := session.(type) {
	case *transfer.Upload:
		return receive(stream, typed, request.Argument, logger)
	case *transfer.Download:
		return send(stream, typed, request.Argument, logger)
	}
	return nil
}

// receive handles the block stream of an upload.
func receive(stream FileSharing_ExchangeServer, upload *transfer.Upload, argument string, logger *logging.Logger) error {
	for !upload.Complete() {
		// Receive the next block.
		frame, err := stream.Recv()
		if err != nil {
			if grpcutil.IsDisconnection(err) {
				logger.Infof("Upload of %s interrupted at %d of %d bytes",
					argument, upload.Cursor(), upload.TotalSize(),
				)
				return nil
			}
			return errors.Wrap(err, "unable to receive block")
		} else if frame.Block == nil {
			logger.Warnf("Received non-block message during upload of %s", argument)
			return stream.Send(&protocol.Frame{Response: protocol.Failed(
				protocol.Errorf(protocol.ErrorKindInvalidArgument, "invalid request"),
			)})
		}

		// Write the block.
		if _, err := upload.Write(frame.Block.Data); err != nil {
			logger.Warnf("Upload of %s failed: %v", argument, err)
			return stream.Send(&protocol.Frame{Response: protocol.Failed(
				protocol.Errorf(protocol.ErrorKindIOError, "unable to write file: %s", argument),
			)})
		}
		logger.Tracef("Received %d bytes of %s (%d of %d)",
			len(frame.Block.Data), argument, upload.Cursor(), upload.TotalSize(),
		)
	}

	// Report completion.
	logger.Infof("Completed upload of %s (%d bytes)", argument, upload.TotalSize())
	response := protocol.Succeeded()
	response.TotalSize = upload.TotalSize()
	return stream.Send(&protocol.Frame{Response: response})
}

// send handles the block stream of a download.
func send(stream FileSharing_ExchangeServer, download *transfer.Download, argument string, logger *logging.Logger) error {
	ctx := stream.Context()
	for {
		// Bail if the client has gone away.
		if contextutil.IsCancelled(ctx) {
			logger.Infof("Download of %s interrupted at %d of %d bytes",
				argument, download.Cursor(), download.TotalSize(),
			)
			return nil
		}

		// Read the next block.
		block, err := download.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			logger.Warnf("Download of %s failed: %v", argument, err)
			message := "unable to read file: " + argument
			if err == transfer.ErrSourceTruncated {
				message = err.Error()
			}
			return stream.Send(&protocol.Frame{Response: protocol.Failed(
				protocol.Errorf(protocol.ErrorKindIOError, "%s", message),
			)})
		}

		// Send it. The block is encoded before Send returns, so the buffer
		// may be reused by the next read.
		if err := stream.Send(&protocol.Frame{Block: &protocol.Block{Data: block}}); err != nil {
			if grpcutil.IsDisconnection(err) {
				logger.Infof("Download of %s interrupted at %d of %d bytes",
					argument, download.Cursor(), download.TotalSize(),
				)
				return nil
			}
			return errors.Wrap(err, "unable to send block")
		}
		logger.Tracef("Sent %d bytes of %s (%d of %d)",
			len(block), argument, download.Cursor(), download.TotalSize(),
		)
	}

	// Report completion.
	logger.Infof("Completed download of %s (%d bytes)", argument, download.TotalSize())
	response := protocol.Succeeded()
	response.TotalSize = download.TotalSize()
	return stream.Send(&protocol.Frame{Response: response})
}
