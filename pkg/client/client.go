// Package client provides the fss client, which performs requests against an
// fss server over gRPC and drives resumable uploads and downloads.
package client

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fss-project/fss/pkg/configuration"
	"github.com/fss-project/fss/pkg/grpcutil"
	"github.com/fss-project/fss/pkg/protocol"
	filesharingsvc "github.com/fss-project/fss/pkg/service/filesharing"
)

// ProgressFunc receives transfer progress. The position is the number of bytes
// of the file present at the destination, including any resumed content.
type ProgressFunc func(position, total uint64)

// TransferResult describes a completed transfer.
type TransferResult struct {
	// TotalSize is the size of the transferred file.
	TotalSize uint64
	// ResumeOffset is the offset at which the transfer started.
	ResumeOffset uint64
	// Transferred is the number of bytes sent or received.
	Transferred uint64
}

// Client is an fss client. Each operation uses its own stream over a shared
// connection.
type Client struct {
	// connection is the underlying gRPC connection.
	connection *grpc.ClientConn
	// service is the FileSharing service client.
	service filesharingsvc.FileSharingClient
}

// Dial creates a client for the server at the specified target. The
// connection is established lazily, so connection failures are reported by
// the first operation. Additional dial options are applied after the defaults.
func Dial(target string, options ...grpc.DialOption) (*Client, error) {
	options = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(grpcutil.MaximumMessageSize),
			grpc.MaxCallRecvMsgSize(grpcutil.MaximumMessageSize),
		),
	}, options...)
	connection, err := grpc.NewClient(target, options...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create connection")
	}
	return &Client{
		connection: connection,
		service:    filesharingsvc.NewFileSharingClient(connection),
	}, nil
}

// Close closes the client's connection.
func (c *Client) Close() error {
	return c.connection.Close()
}

// exchange opens a stream, sends a request on it, and receives the response.
// A failed response is converted to an error. The stream is only valid until
// the context is cancelled.
func (c *Client) exchange(ctx context.Context, request *protocol.Request) (filesharingsvc.FileSharing_ExchangeClient, *protocol.Response, error) {
	// Open the stream.
	stream, err := c.service.Exchange(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(grpcutil.PeelAwayRPCErrorLayer(err), "unable to connect to server")
	}

	// Send the request.
	if err := stream.Send(&protocol.Frame{Request: request}); err != nil && err != io.EOF {
		return nil, nil, errors.Wrap(grpcutil.PeelAwayRPCErrorLayer(err), "unable to send request")
	}

	// Receive the response.
	frame, err := stream.Recv()
	if err != nil {
		return nil, nil, errors.Wrap(grpcutil.PeelAwayRPCErrorLayer(err), "unable to receive response")
	} else if frame.Response == nil {
		return nil, nil, errors.New("server sent unexpected message")
	} else if err := frame.Response.Err(); err != nil {
		return nil, nil, err
	}

	// Success.
	return stream, frame.Response, nil
}

// simple performs a request that has no transfer phase.
func (c *Client) simple(ctx context.Context, request *protocol.Request) (*protocol.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	_, response, err := c.exchange(ctx, request)
	return response, err
}

// Remove removes a remote file.
func (c *Client) Remove(ctx context.Context, remote string) error {
	_, err := c.simple(ctx, &protocol.Request{Action: protocol.ActionRemoveFile, Argument: remote})
	return err
}

// RemoveDirectory removes an empty remote directory.
func (c *Client) RemoveDirectory(ctx context.Context, remote string) error {
	_, err := c.simple(ctx, &protocol.Request{Action: protocol.ActionRemoveDirectory, Argument: remote})
	return err
}

// MakeDirectory creates a remote directory.
func (c *Client) MakeDirectory(ctx context.Context, remote string) error {
	_, err := c.simple(ctx, &protocol.Request{Action: protocol.ActionMakeDirectory, Argument: remote})
	return err
}

// List returns the sorted entry names of a remote directory.
func (c *Client) List(ctx context.Context, remote string) ([]string, error) {
	response, err := c.simple(ctx, &protocol.Request{Action: protocol.ActionListDirectory, Argument: remote})
	if err != nil {
		return nil, err
	}
	return response.Listing, nil
}

// Shutdown asks the server to shut down.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.simple(ctx, &protocol.Request{Action: protocol.ActionShutdown})
	return err
}

// validateBlockSize verifies a server-advertised block size.
func validateBlockSize(size uint64) error {
	if size == 0 || size > configuration.MaximumBlockSize {
		return errors.Errorf("server advertised invalid block size (%d)", size)
	}
	return nil
}

// finalResponse receives the response that concludes a transfer.
func finalResponse(stream filesharingsvc.FileSharing_ExchangeClient) error {
	frame, err := stream.Recv()
	if err != nil {
		return errors.Wrap(grpcutil.PeelAwayRPCErrorLayer(err), "unable to receive transfer result")
	} else if frame.Response == nil {
		return errors.New("server sent unexpected message")
	}
	return frame.Response.Err()
}

// Upload uploads a local file to a remote path, resuming from any partial
// content that an earlier interrupted upload left on the server.
func (c *Client) Upload(ctx context.Context, local, remote string, progress ProgressFunc) (*TransferResult, error) {
	// Open the local file.
	file, err := os.Open(local)
	if os.IsNotExist(err) {
		return nil, errors.Errorf("local file does not exist: %s", local)
	} else if err != nil {
		return nil, errors.Wrap(err, "unable to open local file")
	}
	defer file.Close()

	// Determine its size.
	metadata, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "unable to query local file")
	} else if metadata.IsDir() {
		return nil, errors.Errorf("directories cannot be uploaded: %s", local)
	}
	total := uint64(metadata.Size())

	// Start the exchange.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, response, err := c.exchange(ctx, &protocol.Request{
		Action:       protocol.ActionUpload,
		Argument:     remote,
		DeclaredSize: total,
	})
	if err != nil {
		return nil, err
	} else if response.ResumeOffset > total {
		return nil, errors.Errorf("server reported invalid resume offset (%d)", response.ResumeOffset)
	} else if err := validateBlockSize(response.BlockSize); err != nil {
		return nil, err
	}

	// Send the content from the resume offset.
	position := response.ResumeOffset
	if progress != nil {
		progress(position, total)
	}
	buffer := make([]byte, response.BlockSize)
	for position < total {
		length := uint64(len(buffer))
		if remaining := total - position; remaining < length {
			length = remaining
		}
		read, err := file.ReadAt(buffer[:length], int64(position))
		if uint64(read) != length {
			if err == nil || err == io.EOF {
				err = errors.New("local file was truncated during upload")
			}
			return nil, errors.Wrap(err, "unable to read local file")
		}
		if err := stream.Send(&protocol.Frame{Block: &protocol.Block{Data: buffer[:read]}}); err == io.EOF {
			// The server ended the exchange early, so its result describes
			// the failure.
			break
		} else if err != nil {
			return nil, errors.Wrap(grpcutil.PeelAwayRPCErrorLayer(err), "unable to send block")
		}
		position += uint64(read)
		if progress != nil {
			progress(position, total)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, errors.Wrap(err, "unable to close upload stream")
	}

	// Receive the result.
	if err := finalResponse(stream); err != nil {
		return nil, err
	}

	// Success.
	return &TransferResult{
		TotalSize:    total,
		ResumeOffset: response.ResumeOffset,
		Transferred:  position - response.ResumeOffset,
	}, nil
}

// Download downloads a remote file to a local path, resuming from any partial
// content present at the local path.
func (c *Client) Download(ctx context.Context, remote, local string, progress ProgressFunc) (*TransferResult, error) {
	// Determine how much content is present locally.
	var existing uint64
	if metadata, err := os.Stat(local); err == nil {
		if metadata.IsDir() {
			return nil, errors.Errorf("local path is a directory: %s", local)
		}
		existing = uint64(metadata.Size())
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "unable to query local file")
	} else if parent, err := os.Stat(filepath.Dir(local)); err != nil || !parent.IsDir() {
		return nil, errors.Errorf("local directory does not exist: %s", filepath.Dir(local))
	}

	// Start the exchange.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, response, err := c.exchange(ctx, &protocol.Request{
		Action:       protocol.ActionDownload,
		Argument:     remote,
		DeclaredSize: existing,
	})
	if err != nil {
		return nil, err
	}
	total := response.TotalSize
	if response.ResumeOffset > total || response.ResumeOffset > existing {
		return nil, errors.Errorf("server reported invalid resume offset (%d)", response.ResumeOffset)
	}

	// Open the local file and discard any content beyond the resume offset.
	file, err := os.OpenFile(local, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open local file")
	}
	defer func() {
		if file != nil {
			file.Close()
		}
	}()
	if err := file.Truncate(int64(response.ResumeOffset)); err != nil {
		return nil, errors.Wrap(err, "unable to truncate local file")
	}

	// Receive content until the server concludes the transfer.
	position := response.ResumeOffset
	if progress != nil {
		progress(position, total)
	}
	for {
		frame, err := stream.Recv()
		if err != nil {
			return nil, errors.Wrap(grpcutil.PeelAwayRPCErrorLayer(err), "unable to receive block")
		}
		if frame.Response != nil {
			if err := frame.Response.Err(); err != nil {
				return nil, err
			}
			break
		} else if frame.Block == nil {
			return nil, errors.New("server sent unexpected message")
		}
		data := frame.Block.Data
		if uint64(len(data)) > total-position {
			return nil, errors.New("server sent more data than expected")
		}
		if _, err := file.WriteAt(data, int64(position)); err != nil {
			return nil, errors.Wrap(err, "unable to write local file")
		}
		position += uint64(len(data))
		if progress != nil {
			progress(position, total)
		}
	}

	// Verify completeness.
	if position != total {
		return nil, errors.Errorf("download incomplete (%d of %d bytes received)", position, total)
	}
	err = file.Close()
	file = nil
	if err != nil {
		return nil, errors.Wrap(err, "unable to close local file")
	}

	// Success.
	return &TransferResult{
		TotalSize:    total,
		ResumeOffset: response.ResumeOffset,
		Transferred:  position - response.ResumeOffset,
	}, nil
}
