package gossipmesh

import "github.com/nodegossip/gossipmesh/internal"

// Sentinel errors re-exported from internal so callers never need to
// import it directly (§7).
var (
	ErrConnectFailed       = internal.ErrConnectFailed
	ErrClosed              = internal.ErrClosed
	ErrDecodeFailed        = internal.ErrDecodeFailed
	ErrUnknownDestination  = internal.ErrUnknownDestination
	ErrDuplicateConnection = internal.ErrDuplicateConnection
	ErrUnreachable         = internal.ErrUnreachable
	ErrUnsupportedProtocol = internal.ErrUnsupportedProtocol
)
