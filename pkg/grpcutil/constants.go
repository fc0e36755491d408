package grpcutil

const (
	// MaximumMessageSize specifies the maximum gRPC message size that fss
	// endpoints will send or accept. It comfortably exceeds the largest
	// permitted transfer block plus framing overhead.
	MaximumMessageSize = 25 * 1024 * 1024
)
