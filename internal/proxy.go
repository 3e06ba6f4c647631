package internal

import (
	"sync"

	"go.uber.org/zap"
)

// ProxyNode stands in for one specific remote Gossip Node reachable over
// a dedicated TCP edge (§3, §4.6). Equality of the underlying peer is on
// (remote_address, remote_port, remote_uid); this implementation keeps
// them as plain fields since a ProxyNode is never compared, only looked
// up by remote UID through the Node Registry.
type ProxyNode struct {
	remoteUID uint64
	key       ConnKey

	conns  *ConnRegistry
	nodes  *NodeRegistry
	logger *zap.Logger

	mu          sync.Mutex
	dialed      bool
	unreachable bool
}

// NewProxyNode creates a proxy for the node at (address, port) whose
// remote UID is remoteUID. It does not dial; the connection is
// established lazily, on first Forward, via EnsureConnection's weak
// handle (Design Notes §9: the Proxy Node never caches a *SocketOwner).
func NewProxyNode(remoteUID uint64, address string, port int, conns *ConnRegistry, nodes *NodeRegistry, logger *zap.Logger) *ProxyNode {
	return &ProxyNode{
		remoteUID: remoteUID,
		key:       NewConnKey(address, port),
		conns:     conns,
		nodes:     nodes,
		logger:    logger,
	}
}

// UID implements Neighbor: the UID this proxy stands in for.
func (p *ProxyNode) UID() uint64 { return p.remoteUID }

// Forward implements Neighbor: it serializes m addressed to the proxy's
// own remote UID, tagged with fromUID as the frame's sender (§3.1's
// sender_uid, the immediate hop the receiving side attributes the
// message to), and enqueues it on the connection's Socket Owner. The
// first Forward dials lazily through EnsureConnection; once a connection
// has ever been established, later sends look the owner up fresh from
// the Connection Registry (§4.6's weak handle) instead of redialing, so a
// torn-down connection fails sends with ErrUnreachable rather than
// silently reconnecting on whatever message happens to be forwarded
// next. A proxy stays unreachable until something calls Reconnect (the
// Graph Builder's or admin surface's reconnect logic, §4.6, §9).
func (p *ProxyNode) Forward(fromUID uint64, m Message) error {
	owner, err := p.ownerForSend()
	if err != nil {
		return err
	}

	if err := owner.Send(Frame{SenderUID: fromUID, DestinationUID: p.remoteUID, Message: m}); err != nil {
		p.setUnreachable()
		return err
	}
	return nil
}

func (p *ProxyNode) ownerForSend() (*SocketOwner, error) {
	p.mu.Lock()
	dialed := p.dialed
	unreachable := p.unreachable
	p.mu.Unlock()

	if unreachable {
		return nil, ErrUnreachable
	}

	if !dialed {
		owner, err := EnsureConnection(p.conns, p.key, p.inbound, p.logger)
		if err != nil {
			p.setUnreachable()
			return nil, err
		}
		p.mu.Lock()
		p.dialed = true
		p.mu.Unlock()
		return owner, nil
	}

	owner, ok := p.conns.Lookup(p.key)
	if !ok {
		p.setUnreachable()
		return nil, ErrUnreachable
	}
	return owner, nil
}

func (p *ProxyNode) setUnreachable() {
	p.mu.Lock()
	p.unreachable = true
	p.mu.Unlock()
}

// Reconnect clears an unreachable proxy by dialing a fresh Socket Owner,
// the "next ensure_connection call" that §4.6 and §9 describe as the only
// way a torn-down proxy forwards again.
func (p *ProxyNode) Reconnect() error {
	if _, err := EnsureConnection(p.conns, p.key, p.inbound, p.logger); err != nil {
		return err
	}
	p.mu.Lock()
	p.dialed = true
	p.unreachable = false
	p.mu.Unlock()
	return nil
}

// inbound is this proxy's outbox: frames arriving on its dedicated
// connection are attributed to the frame's own SenderUID (the immediate
// hop that actually wrote it — the same as p.remoteUID for a private
// point-to-point connection, but a dial-deduped connection this process
// shares across several local nodes can carry frames from more than one
// of them) and routed via the Node Registry to whichever local node the
// frame names as its destination (§4.6). owner is passed along so a
// solicitation admitted here can reply on this exact connection.
func (p *ProxyNode) inbound(owner *SocketOwner, f Frame) {
	source := f.SenderUID
	if source == NoNeighbor {
		source = p.remoteUID
	}
	p.nodes.Route(f.DestinationUID, source, f.Message, owner)
}
