package grpcutil

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PeelAwayRPCErrorLayer peels away any intermediate RPC error layer from an
// error returned by gRPC-based code and constructs an error object using the
// underlying error message. If this unwrapping fails, the argument is returned
// directly.
func PeelAwayRPCErrorLayer(err error) error {
	// Attempt to peel away the RPC layer.
	if s, ok := status.FromError(err); ok {
		return errors.New(s.Message())
	}

	// Otherwise return the argument directly.
	return err
}

// IsDisconnection returns whether or not an error returned by a stream
// operation indicates that the peer went away or that the stream was
// cancelled, as opposed to a genuine failure.
func IsDisconnection(err error) bool {
	if err == nil {
		return false
	} else if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	switch status.Code(err) {
	case codes.Canceled, codes.Unavailable:
		return true
	default:
		return false
	}
}
