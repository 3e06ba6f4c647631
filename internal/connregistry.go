package internal

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConnRegistry is the process-wide mapping (peer_address, peer_port) ->
// Socket Owner (§4.1). Exactly one live owner exists per peer endpoint at
// any instant; all operations are atomic with respect to each other.
//
// Note this is thread safe.
type ConnRegistry struct {
	mu    sync.Mutex
	owned map[ConnKey]*SocketOwner
	// dialing holds a lock per key currently being dialed by
	// EnsureConnection, so concurrent callers racing on the same peer
	// serialize on the dial rather than on unrelated peers (§4.4).
	dialing map[ConnKey]*sync.Mutex

	logger *zap.Logger
	events EventHook

	// fd tracks per-peer liveness from frame arrival timestamps, keyed by
	// ConnKey.String(). A Socket Owner's SHUTDOWN removes its peer's
	// arrival history, so a reconnect starts from a fresh window.
	fd *FailureDetector
}

// NewConnRegistry returns an empty registry. events may be nil, in which
// case connection lifecycle events are simply not observed. convictThreshold
// is the phi value above which PeerStatus reports a peer down; callers
// outside this package reach it through WithConvictionThreshold.
func NewConnRegistry(logger *zap.Logger, events EventHook, convictThreshold float64) *ConnRegistry {
	if events == nil {
		events = NoopEventHook{}
	}
	return &ConnRegistry{
		owned:   make(map[ConnKey]*SocketOwner),
		dialing: make(map[ConnKey]*sync.Mutex),
		logger:  logger,
		events:  events,
		fd:      NewFailureDetector(uint64(2*time.Second), 64, convictThreshold),
	}
}

// PeerStatus reports the liveness of key's most recent connection, per
// the phi-accrual arrival history recorded by RECEIVE_READY frames.
func (r *ConnRegistry) PeerStatus(key ConnKey) PeerStatus {
	return r.fd.PeerStatus(key.String())
}

// Lookup returns the live Socket Owner for key, if any.
func (r *ConnRegistry) Lookup(key ConnKey) (*SocketOwner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owned[key]
	return owner, ok
}

// Insert registers owner as the live Socket Owner for key. It fails with
// ErrDuplicateConnection if a live entry already exists.
func (r *ConnRegistry) Insert(key ConnKey, owner *SocketOwner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owned[key]; ok {
		return ErrDuplicateConnection
	}
	r.owned[key] = owner
	r.logger.Debug("connection registered", zap.String("peer", key.String()))
	r.events.OnConnectionOpened(key.String())
	return nil
}

// Remove drops key's entry, if any. It is idempotent and does not check
// that the caller is the current owner, since a Socket Owner always calls
// this exactly once during its own SHUTDOWN.
func (r *ConnRegistry) Remove(key ConnKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owned[key]; ok {
		delete(r.owned, key)
		r.logger.Debug("connection removed", zap.String("peer", key.String()))
		r.events.OnConnectionClosed(key.String())
	}
}

// Len returns the number of live connections, used by tests to verify
// dedup (S6).
func (r *ConnRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owned)
}

// dialLock returns the mutex serializing dials for key, creating it on
// first use. Callers must Unlock it once the dial (success or failure) is
// resolved.
func (r *ConnRegistry) dialLock(key ConnKey) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.dialing[key]
	if !ok {
		lock = &sync.Mutex{}
		r.dialing[key] = lock
	}
	return lock
}
