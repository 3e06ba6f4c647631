package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNodeRegistry_RegisterLocal_PanicsOnDuplicateUID(t *testing.T) {
	r := NewNodeRegistry(zap.NewNop())
	a := NewNode(1, time.Second, r, nil, zap.NewNop())
	b := NewNode(1, time.Second, r, nil, zap.NewNop())
	defer a.Shutdown()
	defer b.Shutdown()

	r.RegisterLocal(a)
	assert.Panics(t, func() { r.RegisterLocal(b) })
}

func TestNodeRegistry_Route_AnonymousUID_FansOutToEveryLocal(t *testing.T) {
	r := NewNodeRegistry(zap.NewNop())
	a := NewNode(1, time.Second, r, nil, zap.NewNop())
	b := NewNode(2, time.Second, r, nil, zap.NewNop())
	defer a.Shutdown()
	defer b.Shutdown()
	r.RegisterLocal(a)
	r.RegisterLocal(b)

	m := NewCommand(99, CountAliveVerb, nil, time.Second)
	r.Route(AnonymousUID, NoNeighbor, m, nil)

	deadline := time.After(time.Second)
	for a.SeenCount() == 0 || b.SeenCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("anonymous broadcast did not reach every local node")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestNodeRegistry_Route_UnknownDestination_DoesNotPanic(t *testing.T) {
	r := NewNodeRegistry(zap.NewNop())
	m := NewCommand(1, CountAliveVerb, nil, time.Second)
	assert.NotPanics(t, func() { r.Route(12345, NoNeighbor, m, nil) })
}

func TestNodeRegistry_LocalNode_AndProxy_Lookup(t *testing.T) {
	r := NewNodeRegistry(zap.NewNop())
	a := NewNode(1, time.Second, r, nil, zap.NewNop())
	defer a.Shutdown()
	r.RegisterLocal(a)

	found, ok := r.LocalNode(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), found.UID())

	_, ok = r.LocalNode(2)
	assert.False(t, ok)

	p := NewProxyNode(7, "127.0.0.1", 9000, NewConnRegistry(zap.NewNop(), nil, 8.0), r, zap.NewNop())
	r.RegisterProxy(p)
	foundProxy, ok := r.Proxy(7)
	require.True(t, ok)
	assert.Equal(t, uint64(7), foundProxy.UID())
}

func TestNodeRegistry_ClearProxies_DropsProxiesKeepsLocal(t *testing.T) {
	r := NewNodeRegistry(zap.NewNop())
	a := NewNode(1, time.Second, r, nil, zap.NewNop())
	defer a.Shutdown()
	r.RegisterLocal(a)

	p := NewProxyNode(7, "127.0.0.1", 9000, NewConnRegistry(zap.NewNop(), nil, 8.0), r, zap.NewNop())
	r.RegisterProxy(p)

	r.ClearProxies()

	_, ok := r.Proxy(7)
	assert.False(t, ok)

	_, ok = r.LocalNode(1)
	assert.True(t, ok)
}
