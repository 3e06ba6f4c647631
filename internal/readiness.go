package internal

import (
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

var (
	// readinessPollInterval bounds each of the monitor's Peek calls with a
	// read deadline, so it never holds readerMu for longer than this even
	// when the peer never sends another byte. The Socket Owner's mailbox
	// goroutine can therefore always acquire the lock (for a send or a
	// shutdown) within one poll interval instead of waiting on the
	// network indefinitely. Variable rather than a const so tests can
	// shrink it instead of running for real minutes.
	readinessPollInterval = 200 * time.Millisecond

	// readinessIdleTimeout is the cumulative silence, spanning any number
	// of poll intervals, after which a connection that produced no error
	// and no data is treated as a half-open peer and torn down (§4.3's
	// "timeout with no error and no success").
	readinessIdleTimeout = 90 * time.Second
)

// readinessMonitor is the dedicated goroutine of §4.3: its only job is to
// block until its Socket Owner's stream has more buffered data (or has
// hung up, or has gone quiet for too long) and post the corresponding
// mailbox event. It never decodes.
type readinessMonitor struct {
	owner *SocketOwner
}

func newReadinessMonitor(owner *SocketOwner) *readinessMonitor {
	return &readinessMonitor{owner: owner}
}

// run polls the stream for readability without ever holding readerMu
// across an unbounded block: each Peek carries a short read deadline, set
// on the underlying connection before the call and cleared again before
// the lock is released, so a decode running later on the owner's mailbox
// goroutine is never bound by a stale deadline.
//
// Peek asks for one byte more than is already buffered rather than a
// flat Peek(1): once a partial frame is sitting in the buffer waiting on
// the rest of its bytes, Peek(1) alone would keep succeeding immediately
// on already-buffered data every iteration, spinning the monitor at 100%
// CPU until the remainder arrives. Asking for buffered+1 forces a real
// read of new bytes off the wire, so the call actually blocks (up to the
// deadline) until either more data or an error/hangup is available.
func (m *readinessMonitor) run() {
	defer close(m.owner.monitorDone)

	var idleSince time.Time

	for {
		select {
		case <-m.owner.done:
			return
		default:
		}

		m.owner.readerMu.Lock()
		buffered := m.owner.reader.Buffered()
		want := buffered + 1
		if size := m.owner.reader.Size(); want > size {
			want = size
		}
		if want <= buffered {
			// The buffer is already full; there is nothing new to wait
			// on until the owner drains it. Release the lock and back off instead of
			// spinning on a Peek that would return instantly.
			m.owner.readerMu.Unlock()
			time.Sleep(readinessPollInterval)
			continue
		}
		m.owner.conn.SetReadDeadline(time.Now().Add(readinessPollInterval))
		_, err := m.owner.reader.Peek(want)
		m.owner.conn.SetReadDeadline(time.Time{})
		m.owner.readerMu.Unlock()

		switch {
		case err == nil:
			idleSince = time.Time{}
			m.owner.postReceiveReady()

		case isReadTimeout(err):
			if idleSince.IsZero() {
				idleSince = time.Now()
				continue
			}
			if time.Since(idleSince) >= readinessIdleTimeout {
				m.owner.logger.Debug("readiness monitor idle timeout; treating peer as gone",
					zap.String("peer", m.owner.key.String()))
				m.owner.postShutdown()
				return
			}

		case isEOF(err):
			m.owner.postShutdown()
			return

		default:
			m.owner.logger.Debug("readiness monitor read error", zap.Error(err))
		}
	}
}

// isReadTimeout reports whether err came from the read deadline set
// above expiring with no data and no hangup, distinct from a genuine I/O
// error or EOF.
func isReadTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
