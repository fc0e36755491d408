//go:build !darwin

package filesystem

// normalizeName is a no-op on platforms that preserve name encoding.
func normalizeName(name string) string {
	return name
}
