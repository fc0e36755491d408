package protocol

import (
	"github.com/pkg/errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// Request is the single request message that opens each exchange.
type Request struct {
	// Action is the requested operation.
	Action Action
	// Argument is the remote path targeted by the action.
	Argument string
	// DeclaredSize is the total size of the local file for uploads and the
	// number of bytes already present locally for downloads.
	DeclaredSize uint64
}

// Response reports the outcome of a request or of a completed transfer.
type Response struct {
	// OK indicates success.
	OK bool
	// ErrorKind classifies the failure if OK is false.
	ErrorKind ErrorKind
	// ErrorMessage describes the failure if OK is false.
	ErrorMessage string
	// ResumeOffset is the offset at which an accepted transfer starts.
	ResumeOffset uint64
	// TotalSize is the full size of the file being transferred.
	TotalSize uint64
	// Listing holds directory entry names for listing requests.
	Listing []string
	// BlockSize is the transfer block size used by the server.
	BlockSize uint64
}

// Succeeded creates a successful response.
func Succeeded() *Response {
	return &Response{OK: true}
}

// Failed creates a failed response from an error. The error's classification
// is extracted with KindOf.
func Failed(err error) *Response {
	return &Response{
		ErrorKind:    KindOf(err),
		ErrorMessage: err.Error(),
	}
}

// Err converts a failed response into a *Error. It returns nil for successful
// responses.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	message := r.ErrorMessage
	if message == "" {
		message = "request failed"
	}
	return &Error{Kind: r.ErrorKind, Message: message}
}

// Block carries a portion of a file's content. Every block except the last in
// a transfer holds exactly the negotiated block size.
type Block struct {
	// Data is the block content.
	Data []byte
}

// Frame is the envelope for every message sent over an exchange stream.
// Exactly one of its fields must be set.
type Frame struct {
	// Request is set for the opening request.
	Request *Request
	// Response is set for responses.
	Response *Response
	// Block is set for file content.
	Block *Block
}

// Field numbers for encoded messages.
const (
	frameRequestField  protowire.Number = 1
	frameResponseField protowire.Number = 2
	frameBlockField    protowire.Number = 3

	requestActionField       protowire.Number = 1
	requestArgumentField     protowire.Number = 2
	requestDeclaredSizeField protowire.Number = 3

	responseOKField           protowire.Number = 1
	responseErrorKindField    protowire.Number = 2
	responseErrorMessageField protowire.Number = 3
	responseResumeOffsetField protowire.Number = 4
	responseTotalSizeField    protowire.Number = 5
	responseListingField      protowire.Number = 6
	responseBlockSizeField    protowire.Number = 7

	blockDataField protowire.Number = 1
)

// appendVarintField appends a varint field if its value is non-zero.
func appendVarintField(buffer []byte, number protowire.Number, value uint64) []byte {
	if value == 0 {
		return buffer
	}
	buffer = protowire.AppendTag(buffer, number, protowire.VarintType)
	return protowire.AppendVarint(buffer, value)
}

// appendStringField appends a string field if its value is non-empty.
func appendStringField(buffer []byte, number protowire.Number, value string) []byte {
	if value == "" {
		return buffer
	}
	buffer = protowire.AppendTag(buffer, number, protowire.BytesType)
	return protowire.AppendString(buffer, value)
}

// fieldHandler decodes the value of a single field from the front of a buffer.
// It returns the number of bytes consumed (or a negative protowire error code)
// and whether or not the field was recognized.
type fieldHandler func(number protowire.Number, kind protowire.Type, buffer []byte) (int, bool)

// decodeFields walks the fields of an encoded message, skipping unrecognized
// fields.
func decodeFields(buffer []byte, handler fieldHandler) error {
	for len(buffer) > 0 {
		number, kind, n := protowire.ConsumeTag(buffer)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "unable to decode field tag")
		}
		buffer = buffer[n:]
		n, recognized := handler(number, kind, buffer)
		if !recognized {
			n = protowire.ConsumeFieldValue(number, kind, buffer)
		}
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "unable to decode field %d", number)
		}
		buffer = buffer[n:]
	}
	return nil
}

// consumeVarint decodes a varint field value into the target.
func consumeVarint(kind protowire.Type, buffer []byte, target *uint64) (int, bool) {
	if kind != protowire.VarintType {
		return 0, false
	}
	value, n := protowire.ConsumeVarint(buffer)
	if n >= 0 {
		*target = value
	}
	return n, true
}

// consumeBytes decodes a length-delimited field value. The result aliases the
// buffer.
func consumeBytes(kind protowire.Type, buffer []byte, target *[]byte) (int, bool) {
	if kind != protowire.BytesType {
		return 0, false
	}
	value, n := protowire.ConsumeBytes(buffer)
	if n >= 0 {
		*target = value
	}
	return n, true
}

func (r *Request) appendWire(buffer []byte) []byte {
	buffer = appendVarintField(buffer, requestActionField, uint64(r.Action))
	buffer = appendStringField(buffer, requestArgumentField, r.Argument)
	return appendVarintField(buffer, requestDeclaredSizeField, r.DeclaredSize)
}

func (r *Request) decodeWire(buffer []byte) error {
	return decodeFields(buffer, func(number protowire.Number, kind protowire.Type, buffer []byte) (int, bool) {
		var value uint64
		var data []byte
		switch number {
		case requestActionField:
			n, ok := consumeVarint(kind, buffer, &value)
			r.Action = Action(value)
			return n, ok
		case requestArgumentField:
			n, ok := consumeBytes(kind, buffer, &data)
			r.Argument = string(data)
			return n, ok
		case requestDeclaredSizeField:
			return consumeVarint(kind, buffer, &r.DeclaredSize)
		}
		return 0, false
	})
}

func (r *Response) appendWire(buffer []byte) []byte {
	if r.OK {
		buffer = appendVarintField(buffer, responseOKField, protowire.EncodeBool(r.OK))
	}
	buffer = appendVarintField(buffer, responseErrorKindField, uint64(r.ErrorKind))
	buffer = appendStringField(buffer, responseErrorMessageField, r.ErrorMessage)
	buffer = appendVarintField(buffer, responseResumeOffsetField, r.ResumeOffset)
	buffer = appendVarintField(buffer, responseTotalSizeField, r.TotalSize)
	for _, name := range r.Listing {
		buffer = protowire.AppendTag(buffer, responseListingField, protowire.BytesType)
		buffer = protowire.AppendString(buffer, name)
	}
	return appendVarintField(buffer, responseBlockSizeField, r.BlockSize)
}

func (r *Response) decodeWire(buffer []byte) error {
	return decodeFields(buffer, func(number protowire.Number, kind protowire.Type, buffer []byte) (int, bool) {
		var value uint64
		var data []byte
		switch number {
		case responseOKField:
			n, ok := consumeVarint(kind, buffer, &value)
			r.OK = protowire.DecodeBool(value)
			return n, ok
		case responseErrorKindField:
			n, ok := consumeVarint(kind, buffer, &value)
			r.ErrorKind = ErrorKind(value)
			return n, ok
		case responseErrorMessageField:
			n, ok := consumeBytes(kind, buffer, &data)
			r.ErrorMessage = string(data)
			return n, ok
		case responseResumeOffsetField:
			return consumeVarint(kind, buffer, &r.ResumeOffset)
		case responseTotalSizeField:
			return consumeVarint(kind, buffer, &r.TotalSize)
		case responseListingField:
			n, ok := consumeBytes(kind, buffer, &data)
			if ok && n >= 0 {
				r.Listing = append(r.Listing, string(data))
			}
			return n, ok
		case responseBlockSizeField:
			return consumeVarint(kind, buffer, &r.BlockSize)
		}
		return 0, false
	})
}

func (b *Block) appendWire(buffer []byte) []byte {
	if len(b.Data) == 0 {
		return buffer
	}
	buffer = protowire.AppendTag(buffer, blockDataField, protowire.BytesType)
	return protowire.AppendBytes(buffer, b.Data)
}

func (b *Block) decodeWire(buffer []byte) error {
	return decodeFields(buffer, func(number protowire.Number, kind protowire.Type, buffer []byte) (int, bool) {
		if number != blockDataField {
			return 0, false
		}
		var data []byte
		n, ok := consumeBytes(kind, buffer, &data)
		if ok && n >= 0 {
			// Copy the data since the receive buffer may be reused.
			b.Data = append(b.Data[:0], data...)
		}
		return n, ok
	})
}

// appendMessageField appends an embedded message field.
func appendMessageField(buffer []byte, number protowire.Number, message []byte) []byte {
	buffer = protowire.AppendTag(buffer, number, protowire.BytesType)
	return protowire.AppendBytes(buffer, message)
}

// validate ensures that exactly one of the frame's fields is set.
func (f *Frame) validate() error {
	var count int
	if f.Request != nil {
		count++
	}
	if f.Response != nil {
		count++
	}
	if f.Block != nil {
		count++
	}
	if count != 1 {
		return errors.Errorf("frame must carry exactly one message (has %d)", count)
	}
	return nil
}

// Marshal encodes the frame in protocol buffer wire format.
func (f *Frame) Marshal() ([]byte, error) {
	// Validate the frame.
	if err := f.validate(); err != nil {
		return nil, err
	}

	// Encode the populated message.
	switch {
	case f.Request != nil:
		return appendMessageField(nil, frameRequestField, f.Request.appendWire(nil)), nil
	case f.Response != nil:
		return appendMessageField(nil, frameResponseField, f.Response.appendWire(nil)), nil
	default:
		return appendMessageField(nil, frameBlockField, f.Block.appendWire(nil)), nil
	}
}

// Unmarshal decodes a frame from protocol buffer wire format, replacing the
// frame's contents.
func (f *Frame) Unmarshal(data []byte) error {
	// Reset the frame.
	*f = Frame{}

	// Decode fields.
	var messageErr error
	err := decodeFields(data, func(number protowire.Number, kind protowire.Type, buffer []byte) (int, bool) {
		var message []byte
		switch number {
		case frameRequestField:
			n, ok := consumeBytes(kind, buffer, &message)
			if ok && n >= 0 {
				f.Request = &Request{}
				if err := f.Request.decodeWire(message); err != nil {
					messageErr = errors.Wrap(err, "invalid request message")
				}
			}
			return n, ok
		case frameResponseField:
			n, ok := consumeBytes(kind, buffer, &message)
			if ok && n >= 0 {
				f.Response = &Response{}
				if err := f.Response.decodeWire(message); err != nil {
					messageErr = errors.Wrap(err, "invalid response message")
				}
			}
			return n, ok
		case frameBlockField:
			n, ok := consumeBytes(kind, buffer, &message)
			if ok && n >= 0 {
				f.Block = &Block{}
				if err := f.Block.decodeWire(message); err != nil {
					messageErr = errors.Wrap(err, "invalid block message")
				}
			}
			return n, ok
		}
		return 0, false
	})
	if err != nil {
		return err
	} else if messageErr != nil {
		return messageErr
	}

	// Validate the result.
	return f.validate()
}
