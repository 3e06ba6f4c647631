package internal

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConnRegistry_Insert_RejectsDuplicateKey(t *testing.T) {
	registry := NewConnRegistry(zap.NewNop(), nil, 8.0)
	key := NewConnKey("127.0.0.1", 9100)

	conn1, conn2 := net.Pipe()
	defer conn1.Close()
	defer conn2.Close()

	owner := newSocketOwner(key, conn1, registry, func(_ *SocketOwner, _ Frame) {}, zap.NewNop())
	defer owner.Shutdown()
	require.NoError(t, registry.Insert(key, owner))

	other := newSocketOwner(key, conn2, registry, func(_ *SocketOwner, _ Frame) {}, zap.NewNop())
	defer other.Shutdown()
	err := registry.Insert(key, other)
	assert.ErrorIs(t, err, ErrDuplicateConnection)
}

func TestConnRegistry_Events_FireOnOpenAndClose(t *testing.T) {
	hook := &recordingHook{}
	registry := NewConnRegistry(zap.NewNop(), hook, 8.0)
	key := NewConnKey("127.0.0.1", 9101)

	conn1, conn2 := net.Pipe()
	defer conn2.Close()

	owner := newSocketOwner(key, conn1, registry, func(_ *SocketOwner, _ Frame) {}, zap.NewNop())
	require.NoError(t, registry.Insert(key, owner))
	owner.Shutdown()

	deadline := time.After(time.Second)
	for {
		if _, ok := registry.Lookup(key); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("owner never removed itself from the registry")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestConnRegistry_DialLock_ReturnsSameMutexForSameKey(t *testing.T) {
	registry := NewConnRegistry(zap.NewNop(), nil, 8.0)
	key := NewConnKey("127.0.0.1", 9102)

	a := registry.dialLock(key)
	b := registry.dialLock(key)
	assert.Same(t, a, b)
}

func TestConnRegistry_PeerStatus_UnknownPeerBootstrapsUp(t *testing.T) {
	registry := NewConnRegistry(zap.NewNop(), nil, 8.0)
	key := NewConnKey("127.0.0.1", 9103)
	assert.Equal(t, PeerStatusUp, registry.PeerStatus(key))
}
