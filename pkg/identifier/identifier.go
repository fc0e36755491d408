package identifier

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/google/uuid"

	"github.com/fss-project/fss/pkg/encoding"
)

const (
	// PrefixConnection is the prefix used for connection identifiers, which key
	// per-connection transfer state on the server.
	PrefixConnection = "conn"
	// PrefixLock is the prefix used for server lock names.
	PrefixLock = "lock"

	// requiredPrefixLength is the required length for identifier prefixes.
	requiredPrefixLength = 4
	// collisionResistantLength is the number of random bytes used to generate
	// an identifier. It matches the size of a random (version 4) UUID.
	collisionResistantLength = 16
	// targetBase62Length is the target length for the Base62-encoded portion of
	// an identifier. Shorter encodings are left-padded with the zero value of
	// the Base62 alphabet.
	targetBase62Length = 22
)

// New generates a new collision-resistant identifier with the specified prefix.
// The prefix must consist of exactly four lowercase ASCII letters.
func New(prefix string) (string, error) {
	// Validate the prefix.
	if len(prefix) != requiredPrefixLength {
		return "", errors.New("incorrect prefix length")
	}
	for _, r := range prefix {
		if r < 'a' || r > 'z' {
			return "", errors.New("invalid prefix character")
		}
	}

	// Generate the random value.
	randomUUID, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "unable to generate random value")
	}

	// Format the identifier.
	return format(prefix, randomUUID[:]), nil
}

// format formats an identifier from a prefix and a value.
func format(prefix string, value []byte) string {
	encoded := encoding.EncodeBase62(value)
	builder := &strings.Builder{}
	builder.Grow(requiredPrefixLength + 1 + targetBase62Length)
	builder.WriteString(prefix)
	builder.WriteByte('_')
	for i := targetBase62Length - len(encoded); i > 0; i-- {
		builder.WriteByte(encoding.Base62Alphabet[0])
	}
	builder.WriteString(encoded)
	return builder.String()
}

// Derive computes a deterministic identifier-formatted name from the specified
// prefix and digest. Only the first sixteen bytes of the digest are used. The
// prefix requirements are the same as for New.
func Derive(prefix string, digest []byte) (string, error) {
	if len(prefix) != requiredPrefixLength {
		return "", errors.New("incorrect prefix length")
	} else if len(digest) < collisionResistantLength {
		return "", errors.New("digest too short")
	}
	return format(prefix, digest[:collisionResistantLength]), nil
}

// IsValid determines whether or not a string is a valid identifier.
func IsValid(value string) bool {
	// Check the length.
	if len(value) != requiredPrefixLength+1+targetBase62Length {
		return false
	}

	// Check the prefix and separator.
	for i := 0; i < requiredPrefixLength; i++ {
		if value[i] < 'a' || value[i] > 'z' {
			return false
		}
	}
	if value[requiredPrefixLength] != '_' {
		return false
	}

	// Check that the encoded portion decodes to a value that fits within the
	// random value size. Padding decodes to leading zero bytes.
	decoded, err := encoding.DecodeBase62(value[requiredPrefixLength+1:])
	if err != nil {
		return false
	}
	for len(decoded) > 0 && decoded[0] == 0 {
		decoded = decoded[1:]
	}
	return len(decoded) <= collisionResistantLength
}
