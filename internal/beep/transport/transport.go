// Package transport implements the byte-stream collaborator of §4.F/§6:
// the session reads frames from it and writes frames to it, and never
// touches the underlying net.Conn directly.
package transport

import "context"

// Transport is the byte-stream abstraction a session runs over. A
// session never assumes TCP specifically; any reliable, ordered byte
// stream (TCP, TLS, a pipe for tests) satisfies it.
type Transport interface {
	// ReadSome blocks until at least one byte is available, an error
	// occurs, or ctx is done, returning whatever was read. It never
	// returns an empty slice without an error.
	ReadSome(ctx context.Context) ([]byte, error)

	// Write enqueues b for transmission. Per §5's single-writer
	// discipline, callers may call Write concurrently; the transport
	// serializes delivery onto the stream in call order.
	Write(ctx context.Context, b []byte) error

	// Close tears down the underlying stream and unblocks any pending
	// ReadSome/Write calls with an error.
	Close() error
}
