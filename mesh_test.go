package gossipmesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_RejectsUDPProtocol(t *testing.T) {
	_, err := Create(Config{PreferredProtocol: ProtocolUDP})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
}

func TestCreate_DefaultsToOneLocalNode(t *testing.T) {
	mesh, err := Create(Config{Eripa: "127.0.0.1", Ephemeral: true})
	require.NoError(t, err)
	defer mesh.Shutdown()

	assert.Len(t, mesh.LocalNodes(), 1)
	assert.Len(t, mesh.ListenAddrs(), 1)
}

func TestCreate_ExplicitZeroNodesIsAPureRelay(t *testing.T) {
	mesh, err := Create(Config{Eripa: "127.0.0.1", Ephemeral: true, NumNodesExplicitZero: true})
	require.NoError(t, err)
	defer mesh.Shutdown()

	assert.Len(t, mesh.LocalNodes(), 0)
	assert.Len(t, mesh.ListenAddrs(), 0)
}

func TestMesh_BuildGraph_WiresLocalNodesInProcess(t *testing.T) {
	mesh, err := Create(Config{Eripa: "127.0.0.1", Ephemeral: true, NumNodes: 6}, WithUIDRegime(RegimeTiny))
	require.NoError(t, err)
	defer mesh.Shutdown()

	mesh.BuildGraph(3, 5)

	for _, n := range mesh.LocalNodes() {
		assert.NotEmpty(t, n.Neighbors())
		assert.LessOrEqual(t, len(n.Neighbors()), 3)
	}
}

func TestNode_Broadcast_UsesDefaultTTLWhenUnspecified(t *testing.T) {
	mesh, err := Create(Config{Eripa: "127.0.0.1", Ephemeral: true}, WithDefaultTTL(2*time.Second))
	require.NoError(t, err)
	defer mesh.Shutdown()

	node := mesh.LocalNodes()[0]
	node.Broadcast(CountAliveVerb, nil, 0)

	deadline := time.After(time.Second)
	for node.SeenCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("broadcast with default ttl was never admitted")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestNode_RegisterVerb_CustomHandlerParticipatesInAggregate(t *testing.T) {
	mesh, err := Create(Config{Eripa: "127.0.0.1", Ephemeral: true}, WithUIDRegime(RegimeTiny))
	require.NoError(t, err)
	defer mesh.Shutdown()

	node := mesh.LocalNodes()[0]
	node.RegisterVerb(":echo", func(_ *Node, m Message) ([]byte, bool) {
		return m.Payload, true
	}, func(local []byte, hasLocal bool, replies [][]byte) []byte {
		if hasLocal {
			return local
		}
		if len(replies) > 0 {
			return replies[0]
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	agg, err := node.SolicitWait(ctx, ":echo", []byte("ping"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), agg.Payload)
}

func TestMesh_Registry_Clear_DoesNotDisturbLocalNodes(t *testing.T) {
	mesh, err := Create(Config{Eripa: "127.0.0.1", Ephemeral: true, NumNodes: 2})
	require.NoError(t, err)
	defer mesh.Shutdown()

	a, b := mesh.LocalNodes()[0], mesh.LocalNodes()[1]
	require.NoError(t, mesh.ConnectPeer(a.UID(), "127.0.0.1", 1, b.UID()+1000))

	mesh.Registry().Clear()

	assert.Len(t, mesh.LocalNodes(), 2)
	assert.Equal(t, a.UID(), mesh.LocalNodes()[0].UID())
}

func TestMesh_PeerStatus_UnobservedPeerBootstrapsUp(t *testing.T) {
	mesh, err := Create(Config{Eripa: "127.0.0.1", Ephemeral: true}, WithConvictionThreshold(0.5))
	require.NoError(t, err)
	defer mesh.Shutdown()

	assert.Equal(t, PeerStatusUp, mesh.PeerStatus("127.0.0.1", 65000))
}

func TestMesh_ConnectPeer_UnknownLocalUID(t *testing.T) {
	mesh, err := Create(Config{Eripa: "127.0.0.1", Ephemeral: true})
	require.NoError(t, err)
	defer mesh.Shutdown()

	err = mesh.ConnectPeer(999999, "127.0.0.1", 1, 1)
	assert.Error(t, err)
}
