package internal

import (
	"sync"

	"go.uber.org/zap"
)

// NodeRegistry is the process-wide mapping uid -> Gossip Node | Proxy Node
// (§3, §4.5.4). It is the second and last piece of shared mutable state
// besides ConnRegistry; every operation on it is atomic.
type NodeRegistry struct {
	mu     sync.RWMutex
	local  map[uint64]*Node
	proxy  map[uint64]*ProxyNode
	logger *zap.Logger
}

// NewNodeRegistry returns an empty registry.
func NewNodeRegistry(logger *zap.Logger) *NodeRegistry {
	return &NodeRegistry{
		local:  make(map[uint64]*Node),
		proxy:  make(map[uint64]*ProxyNode),
		logger: logger,
	}
}

// RegisterLocal adds n under its own UID. It panics on a UID collision,
// since two local nodes sharing a UID is a caller programming error, not
// a runtime condition to recover from.
func (r *NodeRegistry) RegisterLocal(n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.local[n.UID()]; ok {
		panic("gossipmesh: duplicate local node uid registered")
	}
	r.local[n.UID()] = n
}

// RegisterProxy adds p under its remote UID.
func (r *NodeRegistry) RegisterProxy(p *ProxyNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxy[p.UID()] = p
}

// LocalNode returns the local Gossip Node for uid, if any.
func (r *NodeRegistry) LocalNode(uid uint64) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.local[uid]
	return n, ok
}

// Proxy returns the Proxy Node for uid, if any.
func (r *NodeRegistry) Proxy(uid uint64) (*ProxyNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.proxy[uid]
	return p, ok
}

// ClearProxies drops every registered Proxy Node, the administrative
// "clear the Node Registry" operation (§6). Local nodes are left in place
// since they are this process's own identity, not discovered peer state;
// a caller that wants stale or unreachable peers forgotten so the next
// send re-resolves them through discovery or ConnectPeer calls this
// instead of tearing down and recreating the whole Mesh.
func (r *NodeRegistry) ClearProxies() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxy = make(map[uint64]*ProxyNode)
}

// AllLocal returns a snapshot of every registered local Gossip Node, used
// by the anonymous-broadcast fan-out (§4.5.4).
func (r *NodeRegistry) AllLocal() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Node, 0, len(r.local))
	for _, n := range r.local {
		out = append(out, n)
	}
	return out
}

// Route delivers an inbound (destinationUID, message) pair as decoded off
// the wire by some Socket Owner, per the router described in §4.6.
// fromUID identifies the neighbor the frame arrived from (the wire
// frame's own SenderUID), which becomes the admitted message's excluded
// source neighbor. owner is the Socket Owner the frame was decoded off,
// threaded through so a solicitation admitted here can still reply on
// the connection it arrived on even if fromUID names no Neighbor the
// receiving Gossip Node has registered (§4.5.3's fallback route).
func (r *NodeRegistry) Route(destinationUID, fromUID uint64, m Message, owner *SocketOwner) {
	if destinationUID == AnonymousUID {
		for _, n := range r.AllLocal() {
			n.deliverFromWire(fromUID, m, owner)
		}
		return
	}

	if n, ok := r.LocalNode(destinationUID); ok {
		n.deliverFromWire(fromUID, m, owner)
		return
	}

	r.logger.Warn("dropping frame for unknown destination",
		zap.Uint64("destination_uid", destinationUID),
		zap.Uint64("from_uid", fromUID),
		zap.Error(ErrUnknownDestination))
}
