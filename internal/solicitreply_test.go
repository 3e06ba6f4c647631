package internal

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestNode_SolicitOverAcceptedConnection_RepliesOnSameSocket is a
// regression test for a SOLICIT arriving on a connection this process
// never itself dialed (no Proxy Node, no AddNeighbor call registers the
// sender as a Neighbor): the reply must still go back over the physical
// socket the request arrived on instead of being silently dropped
// because sourceNeighborUID names no known Neighbor.
func TestNode_SolicitOverAcceptedConnection_RepliesOnSameSocket(t *testing.T) {
	registry := NewNodeRegistry(zap.NewNop())
	n := newTestNode(1, registry)
	defer n.Shutdown()

	conns := NewConnRegistry(zap.NewNop(), nil, 8.0)
	ln, err := Listen(0, conns, func(owner *SocketOwner, f Frame) {
		registry.Route(f.DestinationUID, f.SenderUID, f.Message, owner)
	}, zap.NewNop())
	require.NoError(t, err)
	defer ln.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	const remoteUID = 99
	solicit := NewSolicit(remoteUID, CountAliveVerb, nil, time.Second, false)
	_, err = conn.Write(EncodeFrame(Frame{SenderUID: remoteUID, DestinationUID: 1, Message: solicit}))
	require.NoError(t, err)

	reply := readOneFrame(t, conn)
	assert.Equal(t, KindReply, reply.Message.Kind)
	assert.Equal(t, solicit.ID, reply.Message.SolicitationID)
	assert.Equal(t, remoteUID, int(reply.DestinationUID))
	assert.Equal(t, uint64(1), reply.SenderUID)
}

func readOneFrame(t *testing.T, conn net.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	prefix := make([]byte, lenPrefixSize)
	_, err := readFull(conn, prefix)
	require.NoError(t, err)
	bodyLen := binary.BigEndian.Uint32(prefix)

	body := make([]byte, bodyLen)
	_, err = readFull(conn, body)
	require.NoError(t, err)

	f, err := DecodeFrame(body)
	require.NoError(t, err)
	return f
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
