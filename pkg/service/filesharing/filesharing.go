// Package filesharing provides the FileSharing gRPC service, whose single
// bidirectional streaming method carries one fss exchange per stream.
package filesharing

import (
	"context"

	"google.golang.org/grpc"

	"github.com/fss-project/fss/pkg/protocol"
)

const (
	// ServiceName is the fully qualified name of the FileSharing service.
	ServiceName = "fss.FileSharing"
	// FileSharing_Exchange_FullMethodName is the full method name of the
	// Exchange method.
	FileSharing_Exchange_FullMethodName = "/" + ServiceName + "/Exchange"
)

// FileSharingClient is the client API for the FileSharing service.
type FileSharingClient interface {
	// Exchange opens a stream for a single request and any transfer that it
	// initiates.
	Exchange(ctx context.Context, opts ...grpc.CallOption) (FileSharing_ExchangeClient, error)
}

type fileSharingClient struct {
	cc grpc.ClientConnInterface
}

// NewFileSharingClient creates a new FileSharing client. Frames are always
// encoded with the fss codec.
func NewFileSharingClient(cc grpc.ClientConnInterface) FileSharingClient {
	return &fileSharingClient{cc}
}

func (c *fileSharingClient) Exchange(ctx context.Context, opts ...grpc.CallOption) (FileSharing_ExchangeClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(protocol.CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &FileSharing_ServiceDesc.Streams[0], FileSharing_Exchange_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &fileSharingExchangeClient{stream}, nil
}

// FileSharing_ExchangeClient is the client side of an Exchange stream.
type FileSharing_ExchangeClient interface {
	Send(*protocol.Frame) error
	Recv() (*protocol.Frame, error)
	grpc.ClientStream
}

type fileSharingExchangeClient struct {
	grpc.ClientStream
}

func (x *fileSharingExchangeClient) Send(m *protocol.Frame) error {
	return x.ClientStream.SendMsg(m)
}

func (x *fileSharingExchangeClient) Recv() (*protocol.Frame, error) {
	m := new(protocol.Frame)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// FileSharingServer is the server API for the FileSharing service.
type FileSharingServer interface {
	// Exchange handles a single request and any transfer that it initiates.
	Exchange(FileSharing_ExchangeServer) error
}

// RegisterFileSharingServer registers a FileSharing implementation with a
// gRPC server.
func RegisterFileSharingServer(s grpc.ServiceRegistrar, srv FileSharingServer) {
	s.RegisterService(&FileSharing_ServiceDesc, srv)
}

func _FileSharing_Exchange_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(FileSharingServer).Exchange(&fileSharingExchangeServer{stream})
}

// FileSharing_ExchangeServer is the server side of an Exchange stream.
type FileSharing_ExchangeServer interface {
	Send(*protocol.Frame) error
	Recv() (*protocol.Frame, error)
	grpc.ServerStream
}

type fileSharingExchangeServer struct {
	grpc.ServerStream
}

func (x *fileSharingExchangeServer) Send(m *protocol.Frame) error {
	return x.ServerStream.SendMsg(m)
}

func (x *fileSharingExchangeServer) Recv() (*protocol.Frame, error) {
	m := new(protocol.Frame)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// FileSharing_ServiceDesc is the grpc.ServiceDesc for the FileSharing service.
var FileSharing_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FileSharingServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       _FileSharing_Exchange_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}
