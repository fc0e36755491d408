// Package filesystem provides the filesystem facilities used by the fss server:
// path normalization, sandboxed resolution of client-supplied paths beneath a
// served root, and directory content enumeration.
package filesystem
