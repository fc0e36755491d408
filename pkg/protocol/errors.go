package protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies the failure reported by a failed Response.
type ErrorKind uint8

const (
	// ErrorKindInternal is a generic failure with no more specific category.
	ErrorKindInternal ErrorKind = iota
	// ErrorKindInvalidArgument indicates a missing or malformed argument or an
	// operation that isn't permitted on the target.
	ErrorKindInvalidArgument
	// ErrorKindNotFound indicates that the target (or its parent) is missing.
	ErrorKindNotFound
	// ErrorKindAlreadyExists indicates that a directory to be created exists.
	ErrorKindAlreadyExists
	// ErrorKindConflict indicates that a file operation targets a directory.
	ErrorKindConflict
	// ErrorKindNotADirectory indicates that a directory operation targets a
	// non-directory.
	ErrorKindNotADirectory
	// ErrorKindIsADirectory indicates that a file removal targets a directory.
	ErrorKindIsADirectory
	// ErrorKindNotEmpty indicates that a directory to be removed has content.
	ErrorKindNotEmpty
	// ErrorKindIOError indicates an I/O failure during an operation.
	ErrorKindIOError
)

// String provides a human-readable representation of an error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindInternal:
		return "internal"
	case ErrorKindInvalidArgument:
		return "invalid argument"
	case ErrorKindNotFound:
		return "not found"
	case ErrorKindAlreadyExists:
		return "already exists"
	case ErrorKindConflict:
		return "conflict"
	case ErrorKindNotADirectory:
		return "not a directory"
	case ErrorKindIsADirectory:
		return "is a directory"
	case ErrorKindNotEmpty:
		return "not empty"
	case ErrorKindIOError:
		return "I/O error"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Its message is the text shown to users.
type Error struct {
	// Kind is the failure classification.
	Kind ErrorKind
	// Message is the human-readable failure description.
	Message string
}

// Error implements error.Error.
func (e *Error) Error() string {
	return e.Message
}

// Errorf creates a new classified error with a formatted message.
func Errorf(kind ErrorKind, format string, arguments ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, arguments...)}
}

// KindOf returns the classification of the first *Error in err's chain, or
// ErrorKindInternal if there is none.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ErrorKindInternal
}
