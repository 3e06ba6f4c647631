package internal

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// withShortReadinessTimings temporarily shrinks the monitor's poll interval
// and idle timeout so tests exercise the timeout path in milliseconds
// instead of real minutes.
func withShortReadinessTimings(t *testing.T, poll, idle time.Duration) {
	t.Helper()
	origPoll, origIdle := readinessPollInterval, readinessIdleTimeout
	readinessPollInterval, readinessIdleTimeout = poll, idle
	t.Cleanup(func() {
		readinessPollInterval, readinessIdleTimeout = origPoll, origIdle
	})
}

// TestReadinessMonitor_IdlePeer_DoesNotBlockSendOrShutdown is a regression
// test for the monitor holding readerMu across an unbounded Peek: with a
// peer that has connected but gone silent, Send and Shutdown on the owner
// must both complete well within a poll interval or two, never hanging
// until the peer speaks again.
func TestReadinessMonitor_IdlePeer_DoesNotBlockSendOrShutdown(t *testing.T) {
	withShortReadinessTimings(t, 10*time.Millisecond, time.Hour)

	registry := NewConnRegistry(zap.NewNop(), nil, 8.0)
	ln, err := Listen(0, registry, func(_ *SocketOwner, _ Frame) {}, zap.NewNop())
	require.NoError(t, err)
	defer ln.Close()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	key := NewConnKey("127.0.0.1", tcpAddr.Port)

	owner, err := EnsureConnection(registry, key, func(_ *SocketOwner, _ Frame) {}, zap.NewNop())
	require.NoError(t, err)

	// Let the monitor spin through a few idle poll cycles before touching
	// the owner, so any lock starvation would already have manifested.
	time.Sleep(50 * time.Millisecond)

	frame := Frame{DestinationUID: 1, Message: NewCommand(1, CountAliveVerb, nil, time.Second)}
	done := make(chan error, 1)
	go func() { done <- owner.Send(frame) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send blocked on an idle peer; readiness monitor is holding readerMu")
	}

	shutdownDone := make(chan struct{})
	go func() {
		owner.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-time.After(time.Second):
		t.Fatal("Shutdown blocked on an idle peer; readiness monitor is holding readerMu")
	}
}

// TestReadinessMonitor_ExtendedSilence_ShutsDownConnection exercises §4.3's
// "timeout with no error and no success" outcome: a connection that never
// sends anything, and never errors, is torn down once cumulative silence
// crosses the idle timeout.
func TestReadinessMonitor_ExtendedSilence_ShutsDownConnection(t *testing.T) {
	withShortReadinessTimings(t, 5*time.Millisecond, 30*time.Millisecond)

	registry := NewConnRegistry(zap.NewNop(), nil, 8.0)
	ln, err := Listen(0, registry, func(_ *SocketOwner, _ Frame) {}, zap.NewNop())
	require.NoError(t, err)
	defer ln.Close()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	key := NewConnKey("127.0.0.1", tcpAddr.Port)

	owner, err := EnsureConnection(registry, key, func(_ *SocketOwner, _ Frame) {}, zap.NewNop())
	require.NoError(t, err)

	require.Eventually(t, owner.Closed, time.Second, 5*time.Millisecond,
		"owner should be shut down once the peer stays silent past the idle timeout")

	_, stillRegistered := registry.Lookup(key)
	assert.False(t, stillRegistered, "shut-down owner must be removed from the registry")
}

// TestReadinessMonitor_PartialFrame_DeliveredOnceRestArrives guards against
// the busy-spin fix (Peek(buffered+1) instead of Peek(1)) breaking the
// eventual delivery of a frame that arrives in two writes: a partial buffer
// must not be mistaken for a complete one, and must be decoded exactly once
// after the remainder shows up.
func TestReadinessMonitor_PartialFrame_DeliveredOnceRestArrives(t *testing.T) {
	withShortReadinessTimings(t, 5*time.Millisecond, time.Hour)

	registry := NewConnRegistry(zap.NewNop(), nil, 8.0)
	received := make(chan Frame, 4)
	ln, err := Listen(0, registry, func(_ *SocketOwner, f Frame) {
		received <- f
	}, zap.NewNop())
	require.NoError(t, err)
	defer ln.Close()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	conn, err := net.Dial("tcp", tcpAddr.String())
	require.NoError(t, err)
	defer conn.Close()

	frame := Frame{DestinationUID: 7, Message: NewCommand(1, CountAliveVerb, []byte("hello"), time.Second)}
	encoded := EncodeFrame(frame)
	require.Greater(t, len(encoded), 1)

	// Write the length prefix and a single byte of the body, then wait
	// across several poll intervals before completing the write: a
	// busy-spinning or over-eager monitor would either peg the CPU or
	// misfire a delivery on the still-incomplete buffer.
	split := lenPrefixSize + 1
	_, err = conn.Write(encoded[:split])
	require.NoError(t, err)

	select {
	case got := <-received:
		t.Fatalf("frame delivered before it was fully written: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}

	_, err = conn.Write(encoded[split:])
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, frame.Message.ID, got.Message.ID)
		assert.Equal(t, []byte("hello"), got.Message.Payload)
	case <-time.After(time.Second):
		t.Fatal("frame never delivered after the remainder arrived")
	}

	select {
	case got := <-received:
		t.Fatalf("frame delivered more than once: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}
