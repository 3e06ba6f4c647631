package internal

import (
	"fmt"
	"math/rand"
	"net"
)

// shuffleUint64 Fisher-Yates shuffles arr in place using rng, the same
// prefix-take idiom the graph builder and cluster seeding use to pick a
// random subset deterministically from a seeded source.
func shuffleUint64(rng *rand.Rand, arr []uint64) {
	for i := len(arr) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		arr[i], arr[j] = arr[j], arr[i]
	}
}

// ConnKey canonicalizes a peer endpoint for use as a Connection Registry
// key, so that equivalent address representations collide (§4.1).
type ConnKey struct {
	addr string
	port int
}

// NewConnKey resolves addr to its canonical numeric form and pairs it with
// port. Addresses that fail to resolve fall back to their literal string,
// which still gives correct (if less canonical) dedup behaviour for the
// common case of two identical literals.
func NewConnKey(addr string, port int) ConnKey {
	canon := addr
	if ip, err := net.ResolveIPAddr("ip", addr); err == nil {
		canon = ip.IP.String()
	}
	return ConnKey{addr: canon, port: port}
}

func (k ConnKey) String() string {
	return fmt.Sprintf("%s:%d", k.addr, k.port)
}
