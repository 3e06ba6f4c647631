package internal

import (
	"fmt"
	"net"

	"go.uber.org/zap"
)

// EnsureConnection returns the live Socket Owner for key, dialing a new
// TCP connection if none exists yet (§4.4). Concurrent callers racing on
// the same key serialize on the registry's per-key dial lock so at most
// one dial happens and only one owner is ever inserted, per the
// exactly-once connection invariant of §4.1.
func EnsureConnection(registry *ConnRegistry, key ConnKey, outbox FrameHandler, logger *zap.Logger) (*SocketOwner, error) {
	if owner, ok := registry.Lookup(key); ok && !owner.Closed() {
		return owner, nil
	}

	lock := registry.dialLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Re-check: another goroutine may have completed the dial while we
	// waited for the lock.
	if owner, ok := registry.Lookup(key); ok && !owner.Closed() {
		return owner, nil
	}

	conn, err := net.Dial("tcp", key.String())
	if err != nil {
		logger.Debug("dial failed", zap.String("peer", key.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	owner := newSocketOwner(key, conn, registry, outbox, logger)
	if err := registry.Insert(key, owner); err != nil {
		owner.Shutdown()
		return nil, err
	}
	return owner, nil
}

// AdoptConnection wraps an inbound connection accepted by a Listener as a
// new Socket Owner keyed by its remote address, per §4.4's symmetric
// treatment of inbound and outbound sockets.
func AdoptConnection(registry *ConnRegistry, conn net.Conn, outbox FrameHandler, logger *zap.Logger) (*SocketOwner, error) {
	addr, port, err := splitHostPort(conn.RemoteAddr())
	if err != nil {
		conn.Close()
		return nil, err
	}

	key := NewConnKey(addr, port)
	owner := newSocketOwner(key, conn, registry, outbox, logger)
	if err := registry.Insert(key, owner); err != nil {
		// A live entry already exists for this remote address and
		// port. Keep the existing owner and drop this one; the peer
		// will observe a hangup and retry if needed.
		owner.Shutdown()
		return nil, err
	}
	return owner, nil
}

func splitHostPort(addr net.Addr) (string, int, error) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return "", 0, fmt.Errorf("%w: unsupported remote address type %T", ErrUnsupportedProtocol, addr)
	}
	return tcpAddr.IP.String(), tcpAddr.Port, nil
}

// Listener accepts inbound connections on a TCP port and adopts each one
// into the registry, forwarding decoded frames to outbox.
type Listener struct {
	ln       net.Listener
	registry *ConnRegistry
	outbox   FrameHandler
	logger   *zap.Logger
}

// Listen opens a TCP listener on port and starts its accept loop.
func Listen(port int, registry *ConnRegistry, outbox FrameHandler, logger *zap.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	l := &Listener{ln: ln, registry: registry, outbox: outbox, logger: logger}
	go l.acceptLoop()
	return l, nil
}

// Addr returns the listener's bound address, useful for tests that bind
// to port 0.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting new connections. Already-adopted Socket Owners
// are unaffected.
func (l *Listener) Close() error {
	return l.ln.Close()
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !isEOF(err) {
				l.logger.Debug("accept loop stopping", zap.Error(err))
			}
			return
		}

		if _, err := AdoptConnection(l.registry, conn, l.outbox, l.logger); err != nil {
			l.logger.Debug("failed to adopt inbound connection", zap.Error(err))
		}
	}
}
