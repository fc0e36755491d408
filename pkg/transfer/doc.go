// Package transfer implements resumable file transfer sessions. An upload
// session writes incoming blocks to a destination file starting at a resume
// offset, and a download session reads a source file block by block from a
// resume offset. Open sessions are tracked in a Registry so that they can be
// released when their connection ends or when the server shuts down.
package transfer
