// Package protocol defines the fss wire contract: the actions a client may
// request, the Request, Response, and Block messages exchanged for them, the
// Frame envelope that carries those messages over a gRPC stream, the error
// taxonomy reported in failed responses, and the gRPC codec that encodes
// frames in protocol buffer wire format.
package protocol
