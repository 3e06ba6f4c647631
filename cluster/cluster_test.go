package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodegossip/gossipmesh"
)

func TestCluster_Broadcast_ReachesEveryMember(t *testing.T) {
	c := NewCluster()
	members, err := c.AddNodes(4)
	require.NoError(t, err)
	require.NoError(t, c.FullyConnect())
	defer c.Shutdown()

	members[0].Node.Broadcast(":ping", []byte("hi"), 2*time.Second)

	deadline := time.After(2 * time.Second)
	for _, m := range members {
		for m.Node.SeenCount() == 0 {
			select {
			case <-deadline:
				t.Fatalf("member %d never saw the broadcast", m.Node.UID())
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
}

func TestCluster_SolicitWait_AggregatesLiveCount(t *testing.T) {
	c := NewCluster()
	members, err := c.AddNodes(3)
	require.NoError(t, err)
	require.NoError(t, c.FullyConnect())
	defer c.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	agg, err := members[0].Node.SolicitWait(ctx, gossipmesh.CountAliveVerb, nil, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, agg.Partial)
	assert.Equal(t, uint64(3), gossipmesh.DecodeCountAlive(agg.Payload))
}

func TestCluster_ConnectPeer_IsIdempotentAcrossReconnectAttempts(t *testing.T) {
	c := NewCluster()
	a, err := c.AddNode()
	require.NoError(t, err)
	b, err := c.AddNode()
	require.NoError(t, err)
	defer c.Shutdown()

	require.NoError(t, c.connect(a, b))
	require.NoError(t, c.connect(a, b))

	// ConnectPeer only registers the proxy; it dials on its first send,
	// so two connect calls with no traffic leave no live connection.
	assert.Equal(t, 0, a.Mesh.ConnectionCount())
}
