package internal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// FrameHandler is a Socket Owner's outbox: the destination for frames
// decoded off the wire. It may be a callback into the router (C6), a test
// channel wrapper, or any other continuation.
type FrameHandler func(owner *SocketOwner, frame Frame)

const (
	stateOpen int32 = iota
	stateClosing
	stateClosed
)

type sendMsg struct {
	frame  Frame
	result chan error
}

type receiveReadyMsg struct{}

type shutdownMsg struct{}

// SocketOwner is the exclusive, single-threaded owner of one TCP stream
// (§4.2). All socket I/O happens inside its mailbox-processing goroutine;
// no other goroutine may touch the connection directly.
type SocketOwner struct {
	key      ConnKey
	conn     net.Conn
	outbox   FrameHandler
	registry *ConnRegistry
	logger   *zap.Logger

	// readerMu serializes access to reader between the owner's mailbox
	// loop and its Readiness Monitor; bufio.Reader is not safe for
	// concurrent use. The monitor bounds every Peek it makes with a read
	// deadline (internal/readiness.go) set while holding this lock, so it
	// never holds readerMu for longer than one poll interval even when
	// the peer never sends another byte — the owner's mailbox goroutine
	// is guaranteed to get the lock, and make progress on a send or
	// shutdown, within that bound rather than waiting on the network
	// indefinitely.
	readerMu sync.Mutex
	reader   *bufio.Reader

	mailbox chan interface{}
	state   int32
	once    sync.Once
	done    chan struct{}

	monitorDone chan struct{}
}

// newSocketOwner wraps conn as a new Socket Owner and starts its mailbox
// loop and Readiness Monitor. Callers must have already inserted (or be
// about to insert) the owner into registry under key.
func newSocketOwner(key ConnKey, conn net.Conn, registry *ConnRegistry, outbox FrameHandler, logger *zap.Logger) *SocketOwner {
	o := &SocketOwner{
		key:         key,
		conn:        conn,
		outbox:      outbox,
		registry:    registry,
		logger:      logger,
		// Sized to hold the largest frame handleReceiveReady accepts, so a
		// complete frame always fits in the buffer and can be decoded.
		reader:      bufio.NewReaderSize(conn, lenPrefixSize+MaxFramePayload+256),
		mailbox:     make(chan interface{}, 64),
		done:        make(chan struct{}),
		monitorDone: make(chan struct{}),
	}
	go o.run()
	go newReadinessMonitor(o).run()
	return o
}

// Send enqueues a frame for transmission and blocks until it has been
// written (or the attempt has failed). This is the only way to write to
// the socket; the write itself always happens on the owner's mailbox
// goroutine.
func (o *SocketOwner) Send(frame Frame) error {
	if atomic.LoadInt32(&o.state) == stateClosed {
		return ErrClosed
	}

	result := make(chan error, 1)
	select {
	case o.mailbox <- sendMsg{frame: frame, result: result}:
	case <-o.done:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-o.done:
		return ErrClosed
	}
}

// Shutdown requests an orderly teardown and waits for the mailbox loop to
// exit. It is idempotent: a second call observes the same CLOSED state as
// the first (testable property 7).
func (o *SocketOwner) Shutdown() {
	select {
	case o.mailbox <- shutdownMsg{}:
	case <-o.done:
	}
	<-o.done
}

// Closed reports whether the owner has finished tearing down.
func (o *SocketOwner) Closed() bool {
	return atomic.LoadInt32(&o.state) == stateClosed
}

// PeerKey returns the connection registry key this owner is registered
// under.
func (o *SocketOwner) PeerKey() ConnKey {
	return o.key
}

func (o *SocketOwner) postReceiveReady() {
	select {
	case o.mailbox <- receiveReadyMsg{}:
	case <-o.done:
	}
}

func (o *SocketOwner) postShutdown() {
	select {
	case o.mailbox <- shutdownMsg{}:
	case <-o.done:
	}
}

// run is the mailbox-processing goroutine: the single thread that ever
// touches o.conn for writes or decodes frames from o.reader.
func (o *SocketOwner) run() {
	defer close(o.done)

	for {
		msg := <-o.mailbox
		switch m := msg.(type) {
		case sendMsg:
			m.result <- o.handleSend(m.frame)
		case receiveReadyMsg:
			o.handleReceiveReady()
		case shutdownMsg:
			o.handleShutdown()
			return
		}

		if atomic.LoadInt32(&o.state) == stateClosed {
			return
		}
	}
}

func (o *SocketOwner) handleSend(frame Frame) error {
	if atomic.LoadInt32(&o.state) != stateOpen {
		return ErrClosed
	}

	b := EncodeFrame(frame)
	if _, err := o.conn.Write(b); err != nil {
		o.logger.Error("failed to write frame", zap.String("peer", o.key.String()), zap.Error(err))
		o.handleShutdown()
		return err
	}
	return nil
}

// handleReceiveReady implements the listen-check of §4.2: it must confirm
// a fully-buffered frame is present before decoding, since Readiness
// Monitor events may outnumber available frames (a prior decode may have
// already drained the buffer that a queued event was reporting on).
func (o *SocketOwner) handleReceiveReady() {
	if atomic.LoadInt32(&o.state) != stateOpen {
		return
	}

	o.readerMu.Lock()
	defer o.readerMu.Unlock()

	if o.reader.Buffered() < lenPrefixSize {
		return
	}
	prefix, err := o.reader.Peek(lenPrefixSize)
	if err != nil {
		// Buffered() said enough bytes were present; Peek should not
		// fail here, but treat it defensively as "not yet".
		return
	}
	bodyLen := binary.BigEndian.Uint32(prefix)
	if bodyLen > MaxFramePayload+256 {
		o.logger.Error("frame length prefix implausibly large; shutting down", zap.String("peer", o.key.String()))
		o.handleShutdown()
		return
	}
	if o.reader.Buffered() < lenPrefixSize+int(bodyLen) {
		// Not all of this frame has arrived yet; wait for the next
		// RECEIVE_READY rather than blocking here.
		return
	}

	full := make([]byte, lenPrefixSize+int(bodyLen))
	if _, err := io.ReadFull(o.reader, full); err != nil {
		o.logger.Error("failed to read buffered frame", zap.Error(err))
		o.handleShutdown()
		return
	}

	frame, err := DecodeFrame(full[lenPrefixSize:])
	if err != nil {
		o.logger.Error("failed to decode frame; shutting down", zap.String("peer", o.key.String()), zap.Error(err))
		o.handleShutdown()
		return
	}

	o.registry.fd.Report(o.key.String())

	if o.outbox != nil {
		o.outbox(o, frame)
	}

	// Another full frame may already be buffered; re-post so it is
	// picked up on this actor's next mailbox turn instead of being
	// missed until some later, unrelated RECEIVE_READY arrives.
	if o.reader.Buffered() >= lenPrefixSize {
		o.postReceiveReady()
	}
}

func (o *SocketOwner) handleShutdown() {
	o.once.Do(func() {
		atomic.StoreInt32(&o.state, stateClosing)
		o.conn.Close()
		o.registry.Remove(o.key)
		o.registry.fd.RemovePeer(o.key.String())
		atomic.StoreInt32(&o.state, stateClosed)
		o.logger.Debug("socket owner shut down", zap.String("peer", o.key.String()))
	})
}

// isEOF reports whether err represents a clean peer hangup.
func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
