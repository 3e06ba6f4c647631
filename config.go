package gossipmesh

import "go.uber.org/zap"

// Protocol names a wire transport a Mesh may be configured for.
type Protocol int

const (
	// ProtocolTCP is the only transport this implementation carries
	// frames over.
	ProtocolTCP Protocol = iota
	// ProtocolUDP is accepted for forward compatibility with config
	// shapes that name it, but Create rejects it with
	// ErrUnsupportedProtocol.
	ProtocolUDP
)

// DefaultGossipPort is the impl-defined default listening port, in the
// same spirit as the teacher's DefaultInterval constant.
const DefaultGossipPort = 7946

// Config is the property bag a Mesh is created from (§6). The zero value
// is valid: Create fills in every unset field's default.
type Config struct {
	// Eripa is this node's externally routable address. Empty means
	// auto-detect via a UDP route probe.
	Eripa string

	// AllKnownAddresses seeds the initial peer set a graph can be built
	// against.
	AllKnownAddresses []string

	// GossipPort is the primary listening port. Co-tenant local nodes
	// beyond the first listen on GossipPort+i.
	GossipPort int

	// Ephemeral requests OS-assigned ports instead of GossipPort+i, the
	// same 127.0.0.1:0 idiom the teacher's own test cluster uses. The
	// bound addresses are read back from Mesh.ListenAddrs().
	Ephemeral bool

	// PreferredProtocol must be ProtocolTCP; ProtocolUDP is accepted by
	// this struct but rejected by Create.
	PreferredProtocol Protocol

	// NumNodes is the number of local Gossip Nodes to create at this
	// address. Zero means one; the caller can still request an explicit
	// zero-node Mesh (a pure relay) by setting NumNodesExplicitZero.
	NumNodes int

	// NumNodesExplicitZero distinguishes an explicit request for zero
	// local nodes from the zero-value default of one.
	NumNodesExplicitZero bool

	Logger *zap.Logger
}

func (c Config) numNodes() int {
	if c.NumNodesExplicitZero {
		return 0
	}
	if c.NumNodes <= 0 {
		return 1
	}
	return c.NumNodes
}

func (c Config) gossipPort() int {
	if c.GossipPort <= 0 {
		return DefaultGossipPort
	}
	return c.GossipPort
}
