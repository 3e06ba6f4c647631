// Package discovery resolves a Mesh's initial peer set from etcd instead
// of a static all_known_addresses list, adapting the pack's sketch client
// into a working register/watch loop.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/gossipmesh/nodes/"

// NewClient dials etcd at the given endpoints.
func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// RegisterNode publishes this node's (eripa, gossip_port) under a leased
// key that expires after ttlSeconds unless refreshed, and starts a
// background keepalive for as long as ctx stays alive. The returned
// lease ID lets a caller revoke registration early via cli.Revoke.
func RegisterNode(ctx context.Context, cli *clientv3.Client, uid uint64, addr string, ttlSeconds int64) (clientv3.LeaseID, error) {
	lease, err := cli.Grant(ctx, ttlSeconds)
	if err != nil {
		return 0, fmt.Errorf("discovery: grant lease: %w", err)
	}

	key := nodeKey(uid)
	if _, err := cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, fmt.Errorf("discovery: register node: %w", err)
	}

	keepAlive, err := cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		return 0, fmt.Errorf("discovery: start keepalive: %w", err)
	}
	go drainKeepAlive(keepAlive)

	return lease.ID, nil
}

// drainKeepAlive must consume the channel etcd's client hands back or the
// keepalive loop stalls; there is nothing else to do with each response.
func drainKeepAlive(ch <-chan *clientv3.LeaseKeepAliveResponse) {
	for range ch {
	}
}

// GetPeers returns every currently registered (uid, address) pair, for
// seeding a Mesh's initial peer set at startup.
func GetPeers(ctx context.Context, cli *clientv3.Client) (map[uint64]string, error) {
	resp, err := cli.Get(ctx, keyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("discovery: get peers: %w", err)
	}

	peers := make(map[uint64]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		uid, ok := uidFromKey(string(kv.Key))
		if !ok {
			continue
		}
		peers[uid] = string(kv.Value)
	}
	return peers, nil
}

// PeerEvent is one change to the registered peer set.
type PeerEvent struct {
	UID     uint64
	Address string
	// Removed is true when the peer's lease expired or its key was
	// explicitly deleted.
	Removed bool
}

// WatchPeers streams peer set changes under the discovery prefix until
// ctx is cancelled. Callers typically feed each non-removed event into
// Mesh.ConnectPeer.
func WatchPeers(ctx context.Context, cli *clientv3.Client) <-chan PeerEvent {
	events := make(chan PeerEvent, 16)
	watch := cli.Watch(ctx, keyPrefix, clientv3.WithPrefix())

	go func() {
		defer close(events)
		for resp := range watch {
			for _, ev := range resp.Events {
				uid, ok := uidFromKey(string(ev.Kv.Key))
				if !ok {
					continue
				}
				out := PeerEvent{UID: uid, Removed: ev.Type == clientv3.EventTypeDelete}
				if !out.Removed {
					out.Address = string(ev.Kv.Value)
				}
				select {
				case events <- out:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events
}

func nodeKey(uid uint64) string {
	return fmt.Sprintf("%s%d", keyPrefix, uid)
}

func uidFromKey(key string) (uint64, bool) {
	suffix := strings.TrimPrefix(key, keyPrefix)
	if suffix == key {
		return 0, false
	}
	var uid uint64
	if _, err := fmt.Sscanf(suffix, "%d", &uid); err != nil {
		return 0, false
	}
	return uid, true
}
