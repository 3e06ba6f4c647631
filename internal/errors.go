package internal

import "errors"

// Sentinel errors for the propagation and connection layers. The public
// gossipmesh package re-exports these so callers never need to import
// internal directly.
var (
	// ErrConnectFailed is returned by EnsureConnection when the TCP dial
	// itself fails (refused, DNS failure, timeout).
	ErrConnectFailed = errors.New("gossipmesh: connect failed")

	// ErrClosed is returned by an operation on a Socket Owner that has
	// already run SHUTDOWN.
	ErrClosed = errors.New("gossipmesh: connection closed")

	// ErrDecodeFailed is returned when a frame fails to decode. The
	// Socket Owner that produced it self-shuts down, since the stream is
	// now out of sync.
	ErrDecodeFailed = errors.New("gossipmesh: frame decode failed")

	// ErrUnknownDestination is logged (not returned to a caller) when an
	// inbound frame addresses a UID absent from the Node Registry.
	ErrUnknownDestination = errors.New("gossipmesh: unknown destination uid")

	// ErrDuplicateConnection is returned by the Connection Registry when
	// an insert races with an existing live entry for the same peer.
	ErrDuplicateConnection = errors.New("gossipmesh: duplicate connection")

	// ErrUnreachable is returned by a Proxy Node send when its Socket
	// Owner is gone and no replacement has been established.
	ErrUnreachable = errors.New("gossipmesh: proxy unreachable")

	// ErrUnsupportedProtocol is returned when configuration or a runtime
	// address names a transport other than TCP.
	ErrUnsupportedProtocol = errors.New("gossipmesh: unsupported protocol")
)
