package gossipmesh

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nodegossip/gossipmesh/internal"
)

// Message is the wire-level record propagated across the graph (§3).
type Message = internal.Message

// Aggregate is the folded result of a solicitation (§4.5.3, §4.8).
type Aggregate = internal.Aggregate

// VerbHandler executes a verb's side effect or query against a node.
type VerbHandler func(n *Node, m Message) (payload []byte, ok bool)

// AggregateFunc folds a node's own contribution with downstream replies.
type AggregateFunc = internal.AggregateFunc

// EventHook observes admission and connection lifecycle events, for
// wiring up metrics or bespoke logging without reaching into internal.
type EventHook = internal.EventHook

// Regime selects the UID range a Mesh allocates local node UIDs from.
type Regime = internal.Regime

const (
	// RegimeNormal is the production regime: UIDs from 65536 upward.
	RegimeNormal = internal.RegimeNormal
	// RegimeTiny keeps UIDs short (1..65535), for readable simulation
	// topologies and tests.
	RegimeTiny = internal.RegimeTiny
)

// PeerStatus is a failure detector's up/down verdict for one peer address,
// as returned by Mesh.PeerStatus.
type PeerStatus = internal.PeerStatus

const (
	// PeerStatusUp means the peer's phi accrual value is below its
	// conviction threshold as of the last observation.
	PeerStatusUp = internal.PeerStatusUp
	// PeerStatusDown means the peer's phi accrual value has crossed its
	// conviction threshold. A peer with no recorded arrival is reported
	// as PeerStatusUp.
	PeerStatusDown = internal.PeerStatusDown
)

// CountAliveVerb is the built-in verb that solicits the number of live
// Gossip Nodes reachable from the caller.
const CountAliveVerb = internal.CountAliveVerb

// ListAliveVerb is the built-in verb that solicits the UIDs of every live
// Gossip Node reachable from the caller.
const ListAliveVerb = internal.ListAliveVerb

// DecodeCountAlive interprets a CountAliveVerb aggregate's payload.
func DecodeCountAlive(payload []byte) uint64 { return internal.DecodeCountAlive(payload) }

// DecodeListAlive interprets a ListAliveVerb aggregate's payload.
func DecodeListAlive(payload []byte) []uint64 { return internal.DecodeListAlive(payload) }

// Node is a local Gossip Node (C5): the propagation core, wrapping the
// internal actor so external callers never import internal directly.
type Node struct {
	inner      *internal.Node
	defaultTTL time.Duration
}

func (n *Node) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return n.defaultTTL
	}
	return ttl
}

// UID returns this node's process-unique identifier.
func (n *Node) UID() uint64 { return n.inner.UID() }

// Neighbors returns this node's current neighbor UIDs.
func (n *Node) Neighbors() []uint64 { return n.inner.Neighbors() }

// SeenCount reports the current seen-cache size.
func (n *Node) SeenCount() int { return n.inner.SeenCount() }

// RegisterVerb adds or replaces a verb's handler and aggregation rule.
func (n *Node) RegisterVerb(name string, handler VerbHandler, aggregate AggregateFunc) {
	n.inner.RegisterVerb(name, internal.Verb{
		Handler: func(inner *internal.Node, m internal.Message) ([]byte, bool) {
			return handler(n, m)
		},
		Aggregate: aggregate,
	})
}

// Broadcast injects a fire-and-forget COMMAND. ttl <= 0 uses the Mesh's
// configured DefaultTTL.
func (n *Node) Broadcast(verb string, payload []byte, ttl time.Duration) {
	n.inner.Broadcast(verb, payload, n.ttlOrDefault(ttl))
}

// SolicitWait injects a SOLICIT and blocks for the aggregate up-the-tree.
// ttl <= 0 uses the Mesh's configured DefaultTTL.
func (n *Node) SolicitWait(ctx context.Context, verb string, payload []byte, ttl time.Duration) (Aggregate, error) {
	return n.inner.SolicitWait(ctx, verb, payload, n.ttlOrDefault(ttl))
}

// SolicitDirect injects a SOLICIT whose replies route straight back here.
// ttl <= 0 uses the Mesh's configured DefaultTTL.
func (n *Node) SolicitDirect(ctx context.Context, verb string, payload []byte, ttl time.Duration) (Aggregate, error) {
	return n.inner.SolicitDirect(ctx, verb, payload, n.ttlOrDefault(ttl))
}

// Mesh is a running fleet member: some number of local Gossip Nodes, a
// Connection Registry, a Node Registry, and (if numnodes > 0) a listener
// per local node (§6).
type Mesh struct {
	cfg   Config
	opts  *Options
	eripa string

	uidAlloc *internal.UIDAllocator
	conns    *internal.ConnRegistry
	nodes    *internal.NodeRegistry

	local     []*Node
	listeners []*internal.Listener

	logger *zap.Logger
}

// Create builds a Mesh from cfg, starting a listener for each local node
// it creates. After this call the configuration should not be modified
// again.
func Create(cfg Config, options ...Option) (*Mesh, error) {
	if cfg.PreferredProtocol == ProtocolUDP {
		return nil, fmt.Errorf("%w: preferred_protocol=UDP", ErrUnsupportedProtocol)
	}

	opts := defaultOptions()
	for _, opt := range options {
		opt(opts)
	}

	eripa := cfg.Eripa
	if eripa == "" {
		detected, err := detectEripa()
		if err != nil {
			return nil, fmt.Errorf("gossipmesh: eripa auto-detect failed: %w", err)
		}
		eripa = detected
	}

	m := &Mesh{
		cfg:      cfg,
		opts:     opts,
		eripa:    eripa,
		uidAlloc: internal.NewUIDAllocator(),
		logger:   opts.Logger,
	}
	m.uidAlloc.SetRegime(opts.UIDRegime)
	m.nodes = internal.NewNodeRegistry(opts.Logger)
	m.conns = internal.NewConnRegistry(opts.Logger, opts.Events, opts.ConvictionThreshold)

	sweepInterval := opts.DefaultTTL / 4

	for i := 0; i < cfg.numNodes(); i++ {
		uid := m.uidAlloc.Allocate()
		inner := internal.NewNode(uid, sweepInterval, m.nodes, opts.Events, opts.Logger)
		m.nodes.RegisterLocal(inner)

		node := &Node{inner: inner, defaultTTL: opts.DefaultTTL}
		m.local = append(m.local, node)

		port := cfg.gossipPort() + i
		if cfg.Ephemeral {
			port = 0
		}
		ln, err := internal.Listen(port, m.conns, m.genericInbound, opts.Logger)
		if err != nil {
			m.Shutdown()
			return nil, fmt.Errorf("gossipmesh: failed to listen for local node %d on port %d: %w", uid, port, err)
		}
		m.listeners = append(m.listeners, ln)
		opts.Logger.Debug("local gossip node listening", zap.Uint64("uid", uid), zap.Int("port", port))
	}

	return m, nil
}

// genericInbound is the outbox for every connection a Mesh's Listeners
// accept (§4.4's "symmetric treatment of inbound and outbound sockets" —
// unlike a Proxy Node's own dedicated connection, one accepted socket has
// no Proxy Node of its own to attribute it to). The frame's own
// SenderUID (§3.1) names the neighbor that wrote it regardless of which
// side dialed, so accepted connections are attributed exactly like
// dialed ones; the raw owner is threaded through Route so a SOLICIT
// admitted here can still reply on the connection it arrived on even
// when SenderUID names no neighbor this process has separately
// ConnectPeer'd (§4.5.3).
func (m *Mesh) genericInbound(owner *internal.SocketOwner, f internal.Frame) {
	m.nodes.Route(f.DestinationUID, f.SenderUID, f.Message, owner)
}

// Eripa returns this node's externally routable address, auto-detected
// at Create time if the configuration left it empty.
func (m *Mesh) Eripa() string { return m.eripa }

// ListenAddrs returns the bound address of each local node's listener, in
// the same order as LocalNodes. Useful when Config.Ephemeral left port
// assignment to the OS.
func (m *Mesh) ListenAddrs() []string {
	out := make([]string, len(m.listeners))
	for i, ln := range m.listeners {
		out[i] = ln.Addr().String()
	}
	return out
}

// LocalNodes returns this Mesh's local Gossip Nodes.
func (m *Mesh) LocalNodes() []*Node {
	out := make([]*Node, len(m.local))
	copy(out, m.local)
	return out
}

// SetUIDRegime switches which UID range subsequent local nodes are
// allocated from. It only affects nodes created after the call.
func (m *Mesh) SetUIDRegime(regime internal.Regime) {
	m.uidAlloc.SetRegime(regime)
}

// BuildGraph wires this Mesh's own local nodes into a bounded-degree
// connected topology (§4.7), the graph builder's local-simulation mode.
// It is a no-op beyond validating input if the Mesh has fewer than two
// local nodes.
func (m *Mesh) BuildGraph(maxDegree int, seed int64) {
	if maxDegree <= 0 {
		maxDegree = m.opts.MaxDegree
	}
	if len(m.local) < 2 {
		return
	}

	uids := make([]uint64, len(m.local))
	byUID := make(map[uint64]*Node, len(m.local))
	for i, n := range m.local {
		uids[i] = n.UID()
		byUID[n.UID()] = n
	}

	adj := internal.BuildRingWithChords(uids, maxDegree, seed)
	for uid, neighbors := range adj {
		for nUID := range neighbors {
			byUID[uid].inner.AddNeighbor(byUID[nUID].inner)
		}
	}
}

// Registry exposes administrative operations on a Mesh's Node Registry
// without leaking the internal package to callers.
type Registry struct {
	inner *internal.NodeRegistry
}

// Clear drops every discovered Proxy Node, forgetting stale or
// unreachable peers. Local nodes are unaffected; a subsequent send to a
// cleared peer's UID re-resolves it through ConnectPeer or discovery.
func (r Registry) Clear() { r.inner.ClearProxies() }

// Registry returns this Mesh's Node Registry for administrative use
// (§6): Mesh.Registry().Clear().
func (m *Mesh) Registry() Registry { return Registry{inner: m.nodes} }

// ConnectPeer wires localUID's node to a remote node reached at
// (address, port) and identified by remoteUID, typically resolved via
// the discovery package or a static AllKnownAddresses entry paired with
// an out-of-band UID exchange. The connection itself is dialed lazily on
// first send (§4.4's weak handle).
func (m *Mesh) ConnectPeer(localUID uint64, address string, port int, remoteUID uint64) error {
	local, ok := m.nodes.LocalNode(localUID)
	if !ok {
		return fmt.Errorf("gossipmesh: unknown local uid %d", localUID)
	}

	proxy := internal.NewProxyNode(remoteUID, address, port, m.conns, m.nodes, m.logger)
	m.nodes.RegisterProxy(proxy)
	local.AddNeighbor(proxy)
	return nil
}

// ReconnectPeer re-dials the proxy standing in for remoteUID after it has
// gone unreachable, the "next ensure_connection call" that §4.6 and §9
// name as the only way a torn-down proxy forwards again.
func (m *Mesh) ReconnectPeer(remoteUID uint64) error {
	proxy, ok := m.nodes.Proxy(remoteUID)
	if !ok {
		return fmt.Errorf("gossipmesh: unknown peer uid %d", remoteUID)
	}
	return proxy.Reconnect()
}

// PeerStatus reports the phi-accrual liveness of the connection to
// (address, port). A peer with no recorded arrival starts a fresh window
// at the current time and reports PeerStatusUp.
func (m *Mesh) PeerStatus(address string, port int) PeerStatus {
	return m.conns.PeerStatus(internal.NewConnKey(address, port))
}

// ConnectionCount returns the number of live Socket Owners, for metrics
// and tests.
func (m *Mesh) ConnectionCount() int { return m.conns.Len() }

// Shutdown stops every listener and local node. Idempotent.
func (m *Mesh) Shutdown() error {
	for _, ln := range m.listeners {
		ln.Close()
	}
	for _, n := range m.local {
		n.inner.Shutdown()
	}
	return nil
}
