package protocol

import (
	"github.com/pkg/errors"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype under which frames are encoded.
// Clients must select it with grpc.CallContentSubtype.
const CodecName = "fss"

// codec implements encoding.Codec for Frame values.
type codec struct{}

// Marshal implements encoding.Codec.Marshal.
func (codec) Marshal(value interface{}) ([]byte, error) {
	frame, ok := value.(*Frame)
	if !ok {
		return nil, errors.Errorf("unable to marshal value of type %T", value)
	}
	return frame.Marshal()
}

// Unmarshal implements encoding.Codec.Unmarshal.
func (codec) Unmarshal(data []byte, value interface{}) error {
	frame, ok := value.(*Frame)
	if !ok {
		return errors.Errorf("unable to unmarshal into value of type %T", value)
	}
	return frame.Unmarshal(data)
}

// Name implements encoding.Codec.Name.
func (codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(codec{})
}
