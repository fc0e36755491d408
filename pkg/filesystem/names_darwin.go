package filesystem

import (
	"golang.org/x/text/unicode/norm"
)

// normalizeName converts a directory entry name to NFC form. HFS+ stores names
// in a decomposed form, so names read back from disk may not match the names
// that clients supplied when creating entries.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}
