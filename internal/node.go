package internal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Neighbor is anything a Gossip Node can forward a message to: another
// local Gossip Node in the same process, or a Proxy Node standing in for
// one in a peer process. fromUID identifies the neighbor doing the
// forwarding, so the receiving side can exclude it when it in turn
// forwards (§4.5.1's neighbor-exclusion rule).
type Neighbor interface {
	UID() uint64
	Forward(fromUID uint64, m Message) error
}

// Aggregate is the result of a solicitation: the folded payload plus
// whether every expected reply arrived before the deadline.
type Aggregate struct {
	Payload []byte
	Partial bool
}

type seenEntry struct {
	firstSeenAt       int64
	msgTimestamp      int64
	ttlSeconds        uint32
	sourceNeighborUID uint64
	// replyOwner is the Socket Owner sourceNeighborUID's message was
	// decoded off, used by finalizeSolicit as a fallback reply route when
	// sourceNeighborUID names no Neighbor registered in n.neighbors.
	replyOwner *SocketOwner
	direct     bool
	originUID  uint64

	// Populated only for KindSolicit entries.
	outstanding map[uint64]bool
	aggregate   []byte
	hasLocal    bool
	verb        string
	timer       *time.Timer
	waiter      chan Aggregate
	finalized   bool
}

// Node is the Gossip Node actor (C5): the propagation core. All admission
// and cache mutation happens on its own goroutine, draining a mailbox
// channel in FIFO order (§5).
type Node struct {
	uid      uint64
	registry *NodeRegistry
	logger   *zap.Logger
	events   EventHook

	mu        sync.Mutex // guards neighbors/seenCache for admin/metrics reads from other goroutines
	neighbors map[uint64]Neighbor
	seenCache map[uuid.UUID]*seenEntry

	verbs map[string]Verb

	mailbox chan interface{}
	done    chan struct{}
	closeOnce sync.Once

	sweep *time.Ticker
}

type inboundMsg struct {
	source  uint64
	message Message
	// replyOwner is the raw Socket Owner a wire-delivered message arrived
	// on, threaded through so finalizeSolicit can reply directly on that
	// connection when no registered Neighbor exists for source (an
	// accepted connection this process never itself dialed). Nil for
	// anything delivered through the public Deliver/Forward API.
	replyOwner *SocketOwner
}

type solicitRequestMsg struct {
	message Message
	waiter  chan Aggregate
}

// NewNode creates a Gossip Node with the built-in verb table and starts
// its mailbox loop and TTL sweep ticker. sweepInterval should be the
// minimum configured neighbor TTL divided by four, floored at one second
// (§4.5.1).
func NewNode(uid uint64, sweepInterval time.Duration, registry *NodeRegistry, events EventHook, logger *zap.Logger) *Node {
	if sweepInterval < time.Second {
		sweepInterval = time.Second
	}
	if events == nil {
		events = NoopEventHook{}
	}
	n := &Node{
		uid:       uid,
		registry:  registry,
		logger:    logger,
		events:    events,
		neighbors: make(map[uint64]Neighbor),
		seenCache: make(map[uuid.UUID]*seenEntry),
		verbs:     defaultVerbs(),
		mailbox:   make(chan interface{}, 256),
		done:      make(chan struct{}),
		sweep:     time.NewTicker(sweepInterval),
	}
	go n.run()
	return n
}

// UID implements Neighbor.
func (n *Node) UID() uint64 { return n.uid }

// AddNeighbor registers a directed edge to a neighbor. Neighbors are keyed
// by UID, so adding a neighbor whose UID is already present replaces the
// earlier entry and a repeat call with the same neighbor is idempotent.
func (n *Node) AddNeighbor(neighbor Neighbor) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.neighbors[neighbor.UID()] = neighbor
}

// RegisterVerb adds or replaces a verb's handler and aggregation rule.
func (n *Node) RegisterVerb(name string, v Verb) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verbs[name] = v
}

// Neighbors returns a snapshot of this node's neighbor UIDs, used by the
// graph builder and admin surface.
func (n *Node) Neighbors() []uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]uint64, 0, len(n.neighbors))
	for uid := range n.neighbors {
		out = append(out, uid)
	}
	return out
}

// SeenCount reports the current seen-cache size, for metrics and S1/S2
// style tests.
func (n *Node) SeenCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seenCache)
}

// Deliver enqueues an inbound message arriving from neighbor fromUID
// (0 for locally-originated messages). Implements Neighbor.Forward when n
// is itself the receiving neighbor.
func (n *Node) Deliver(fromUID uint64, m Message) {
	select {
	case n.mailbox <- inboundMsg{source: fromUID, message: m}:
	case <-n.done:
	}
}

// deliverFromWire is Deliver plus the raw Socket Owner a frame was
// decoded off, used only by the Node Registry's router (§4.6) so a
// solicitation's eventual reply can go straight back over the connection
// it arrived on even when fromUID names no neighbor this node has
// registered.
func (n *Node) deliverFromWire(fromUID uint64, m Message, owner *SocketOwner) {
	select {
	case n.mailbox <- inboundMsg{source: fromUID, message: m, replyOwner: owner}:
	case <-n.done:
	}
}

// Forward implements Neighbor for a local neighbor: fromUID is the
// forwarding node's own UID.
func (n *Node) Forward(fromUID uint64, m Message) error {
	n.Deliver(fromUID, m)
	return nil
}

// Broadcast injects a fire-and-forget COMMAND originated by this node.
func (n *Node) Broadcast(verb string, payload []byte, ttl time.Duration) {
	m := NewCommand(n.uid, verb, payload, ttl)
	n.Deliver(NoNeighbor, m)
}

// SolicitWait injects a SOLICIT and blocks until the aggregate completes
// or ctx is done, whichever comes first (§4.8).
func (n *Node) SolicitWait(ctx context.Context, verb string, payload []byte, ttl time.Duration) (Aggregate, error) {
	return n.solicit(ctx, verb, payload, ttl, false)
}

// SolicitDirect injects a SOLICIT whose replies are asked to route
// straight back to this node instead of up the forwarding tree.
func (n *Node) SolicitDirect(ctx context.Context, verb string, payload []byte, ttl time.Duration) (Aggregate, error) {
	return n.solicit(ctx, verb, payload, ttl, true)
}

func (n *Node) solicit(ctx context.Context, verb string, payload []byte, ttl time.Duration, direct bool) (Aggregate, error) {
	m := NewSolicit(n.uid, verb, payload, ttl, direct)
	waiter := make(chan Aggregate, 1)

	select {
	case n.mailbox <- solicitRequestMsg{message: m, waiter: waiter}:
	case <-n.done:
		return Aggregate{}, ErrClosed
	}

	select {
	case agg := <-waiter:
		return agg, nil
	case <-ctx.Done():
		return Aggregate{}, ctx.Err()
	case <-n.done:
		return Aggregate{}, ErrClosed
	}
}

// Shutdown stops the mailbox loop and TTL sweep ticker. Idempotent.
func (n *Node) Shutdown() {
	n.closeOnce.Do(func() {
		close(n.done)
		n.sweep.Stop()
	})
}

func (n *Node) run() {
	for {
		select {
		case msg := <-n.mailbox:
			switch m := msg.(type) {
			case inboundMsg:
				n.handleInbound(m.source, m.message, m.replyOwner)
			case solicitRequestMsg:
				n.admit(NoNeighbor, m.message, m.waiter, nil)
			case solicitTimeoutMsg:
				n.handleSolicitTimeout(m.id)
			}
		case <-n.sweep.C:
			n.sweepExpired()
		case <-n.done:
			return
		}
	}
}

func (n *Node) handleInbound(source uint64, m Message, replyOwner *SocketOwner) {
	if m.Kind == KindReply {
		n.handleReply(source, m)
		return
	}
	n.admit(source, m, nil, replyOwner)
}

// admit implements §4.5.1. waiter is non-nil only for a solicitation this
// node itself originated via SolicitWait/SolicitDirect, in which case the
// eventual aggregate is delivered there instead of over the wire (there
// is no neighbor to send it to: the "source" is the sentinel NoNeighbor).
// replyOwner is the raw connection m was decoded off, if any; see
// finalizeSolicit.
func (n *Node) admit(source uint64, m Message, waiter chan Aggregate, replyOwner *SocketOwner) {
	now := time.Now().Unix()
	expiry := m.Timestamp + int64(m.TTLSeconds)

	if now > m.Timestamp+2*int64(m.TTLSeconds) {
		n.mu.Lock()
		delete(n.seenCache, m.ID)
		n.mu.Unlock()
		n.events.OnExpired(n.uid, m, true)
		return
	}
	if expiry < now {
		n.events.OnExpired(n.uid, m, false)
		return
	}

	n.mu.Lock()
	if _, ok := n.seenCache[m.ID]; ok {
		n.mu.Unlock()
		n.events.OnDuplicate(n.uid, m)
		return
	}
	entry := &seenEntry{
		firstSeenAt:       now,
		msgTimestamp:      m.Timestamp,
		ttlSeconds:        m.TTLSeconds,
		sourceNeighborUID: source,
		replyOwner:        replyOwner,
		direct:            m.DirectReply,
		originUID:         m.OriginUID,
		verb:              m.Verb,
		waiter:            waiter,
	}
	n.seenCache[m.ID] = entry
	n.mu.Unlock()

	n.events.OnAdmitted(n.uid, m)
	n.performVerb(entry, m)
	n.forward(source, m)
}

func (n *Node) neighborSnapshot(exclude uint64) []Neighbor {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Neighbor, 0, len(n.neighbors))
	for uid, nb := range n.neighbors {
		if uid == exclude {
			continue
		}
		out = append(out, nb)
	}
	return out
}

func (n *Node) forward(source uint64, m Message) {
	for _, nb := range n.neighborSnapshot(source) {
		if err := nb.Forward(n.uid, m); err != nil {
			n.logger.Debug("forward failed", zap.Uint64("to_uid", nb.UID()), zap.Error(err))
		}
	}
}

func (n *Node) verb(name string) (Verb, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.verbs[name]
	return v, ok
}

func (n *Node) performVerb(entry *seenEntry, m Message) {
	v, ok := n.verb(m.Verb)
	if !ok {
		if m.Kind == KindSolicit {
			n.logger.Warn("unregistered verb solicited", zap.String("verb", m.Verb))
		}
		return
	}

	switch m.Kind {
	case KindCommand:
		v.Handler(n, m)
	case KindSolicit:
		local, hasLocal := v.Handler(n, m)

		n.mu.Lock()
		entry.hasLocal = hasLocal
		entry.aggregate = local
		neighborCount := len(n.neighbors)
		outstanding := make(map[uint64]bool, neighborCount)
		for uid := range n.neighbors {
			if uid != entry.sourceNeighborUID {
				outstanding[uid] = true
			}
		}
		entry.outstanding = outstanding
		n.mu.Unlock()

		if len(outstanding) == 0 {
			n.finalizeSolicit(m.ID, entry, false)
			return
		}

		deadline := time.Duration(m.TTLSeconds) * time.Second
		entry.timer = time.AfterFunc(deadline, func() {
			select {
			case n.mailbox <- solicitTimeoutMsg{id: m.ID}:
			case <-n.done:
			}
		})
	}
}

type solicitTimeoutMsg struct{ id uuid.UUID }

func (n *Node) handleSolicitTimeout(id uuid.UUID) {
	n.mu.Lock()
	entry, ok := n.seenCache[id]
	n.mu.Unlock()
	if !ok {
		return
	}
	n.finalizeSolicit(id, entry, true)
}

func (n *Node) handleReply(fromUID uint64, m Message) {
	n.mu.Lock()
	entry, ok := n.seenCache[m.SolicitationID]
	if !ok || entry.outstanding == nil || entry.finalized {
		n.mu.Unlock()
		return
	}

	v, hasVerb := n.verbs[entry.verb]
	if hasVerb {
		entry.aggregate = v.Aggregate(entry.aggregate, entry.hasLocal, [][]byte{m.Payload})
		entry.hasLocal = true
	}
	delete(entry.outstanding, fromUID)
	done := len(entry.outstanding) == 0
	n.mu.Unlock()

	if done {
		n.finalizeSolicit(m.SolicitationID, entry, false)
	}
}

// finalizeSolicit emits the folded reply upstream (or delivers it to a
// local waiter) exactly once per solicitation id.
func (n *Node) finalizeSolicit(id uuid.UUID, entry *seenEntry, timedOut bool) {
	n.mu.Lock()
	if entry.finalized {
		n.mu.Unlock()
		return
	}
	entry.finalized = true
	payload := entry.aggregate
	waiter := entry.waiter
	source := entry.sourceNeighborUID
	origin := entry.originUID
	direct := entry.direct
	replyOwner := entry.replyOwner
	timer := entry.timer
	entry.outstanding = nil
	n.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	if waiter != nil {
		waiter <- Aggregate{Payload: payload, Partial: timedOut}
		return
	}
	if source == NoNeighbor && replyOwner == nil {
		// Locally originated but no waiter registered (should not
		// happen outside tests that call admit directly); nothing to
		// deliver to.
		return
	}

	solicitation := Message{ID: id, Verb: entry.verb, Timestamp: entry.msgTimestamp, TTLSeconds: entry.ttlSeconds}
	reply := NewReply(n.uid, solicitation, payload)

	if target := n.replyTarget(source, origin, direct); target != nil {
		if err := target.Forward(n.uid, reply); err != nil {
			n.logger.Debug("reply forward failed", zap.Error(err))
		}
		return
	}

	if replyOwner != nil {
		// No registered Neighbor answers for source (an accepted
		// connection this process never dialed out on itself, or a
		// proxy added to a different local node than the one that
		// admitted this solicitation) — reply straight back on the
		// physical connection the SOLICIT arrived on rather than
		// dropping it, addressed to the solicitation's own origin uid,
		// the only far-end uid this hop can name with confidence.
		frame := Frame{SenderUID: n.uid, DestinationUID: origin, Message: reply}
		if err := replyOwner.Send(frame); err != nil {
			n.logger.Debug("reply-on-owner failed", zap.Error(err))
		}
		return
	}

	n.logger.Warn("cannot deliver reply, no route to target", zap.Uint64("source_uid", source), zap.Uint64("origin_uid", origin))
}

// replyTarget picks where an upstream REPLY goes: straight to the
// solicitation's originator when it was marked direct-reply and that
// origin is reachable from this node, otherwise up the forwarding tree to
// whichever neighbor supplied the solicitation (§4.5.3).
func (n *Node) replyTarget(source, origin uint64, direct bool) Neighbor {
	if direct && n.registry != nil {
		if local, ok := n.registry.LocalNode(origin); ok {
			return local
		}
		if proxy, ok := n.registry.Proxy(origin); ok {
			return proxy
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.neighbors[source]
}

// sweepExpired evicts hard-expired seen-cache entries even when no
// further copy of the message ever arrives to trigger admission's own
// eviction check (§4.5.1's background sweep, testable property 2).
func (n *Node) sweepExpired() {
	now := time.Now().Unix()

	n.mu.Lock()
	for id, entry := range n.seenCache {
		if now > entry.msgTimestamp+2*int64(entry.ttlSeconds) {
			delete(n.seenCache, id)
		}
	}
	n.mu.Unlock()
}
