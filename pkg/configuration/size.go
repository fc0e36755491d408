package configuration

import (
	"github.com/dustin/go-humanize"
)

// ByteSize is a uint64 value that supports unmarshalling from both
// human-friendly string representations (e.g. "64KiB") and numeric
// representations. It can be cast to a uint64 value, where it represents a
// byte count.
type ByteSize uint64

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText, which is
// used when loading from YAML files.
func (s *ByteSize) UnmarshalText(textBytes []byte) error {
	// Parse and store the value.
	value, err := humanize.ParseBytes(string(textBytes))
	if err != nil {
		return err
	}
	*s = ByteSize(value)

	// Success.
	return nil
}

// String formats the size in IEC units.
func (s ByteSize) String() string {
	return humanize.IBytes(uint64(s))
}

// Set implements pflag.Value.Set, allowing sizes to be specified as command
// line flags.
func (s *ByteSize) Set(value string) error {
	return s.UnmarshalText([]byte(value))
}

// Type implements pflag.Value.Type.
func (s *ByteSize) Type() string {
	return "size"
}
