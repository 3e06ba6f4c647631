package internal

import (
	"encoding/binary"
)

// VerbHandler executes a verb's side effect (COMMAND) or query (SOLICIT)
// against a node's local state. For a SOLICIT it returns this node's own
// contribution to the eventual aggregate; ok is false when the verb has
// nothing to contribute (still valid for a COMMAND).
type VerbHandler func(n *Node, m Message) (payload []byte, ok bool)

// AggregateFunc folds a node's own contribution together with the
// payloads of every downstream REPLY it collected, producing the payload
// this node sends upstream in turn (§4.5.2).
type AggregateFunc func(local []byte, hasLocal bool, replies [][]byte) []byte

// Verb pairs a query handler with its aggregation rule.
type Verb struct {
	Handler   VerbHandler
	Aggregate AggregateFunc
}

// CountAliveVerb is the built-in ":count-alive" verb: every node
// contributes 1 for itself, replies are summed.
const CountAliveVerb = ":count-alive"

// ListAliveVerb is the built-in ":list-alive" verb: every node
// contributes its own UID, replies are unioned and de-duplicated.
const ListAliveVerb = ":list-alive"

func countAliveHandler(n *Node, _ Message) ([]byte, bool) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, 1)
	return buf, true
}

func countAliveAggregate(local []byte, hasLocal bool, replies [][]byte) []byte {
	var total uint64
	if hasLocal {
		total += binary.BigEndian.Uint64(local)
	}
	for _, r := range replies {
		total += binary.BigEndian.Uint64(r)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, total)
	return buf
}

func listAliveHandler(n *Node, _ Message) ([]byte, bool) {
	return encodeUIDList([]uint64{n.UID()}), true
}

func listAliveAggregate(local []byte, hasLocal bool, replies [][]byte) []byte {
	seen := make(map[uint64]bool)
	var out []uint64
	add := func(uids []uint64) {
		for _, u := range uids {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	if hasLocal {
		add(decodeUIDList(local))
	}
	for _, r := range replies {
		add(decodeUIDList(r))
	}
	return encodeUIDList(out)
}

func encodeUIDList(uids []uint64) []byte {
	buf := make([]byte, 8*len(uids))
	for i, u := range uids {
		binary.BigEndian.PutUint64(buf[i*8:], u)
	}
	return buf
}

func decodeUIDList(b []byte) []uint64 {
	n := len(b) / 8
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = binary.BigEndian.Uint64(b[i*8 : i*8+8])
	}
	return out
}

// DecodeCountAlive interprets a ":count-alive" aggregate payload.
func DecodeCountAlive(payload []byte) uint64 {
	if len(payload) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(payload)
}

// DecodeListAlive interprets a ":list-alive" aggregate payload.
func DecodeListAlive(payload []byte) []uint64 {
	return decodeUIDList(payload)
}

// defaultVerbs returns the registration table seeded with the built-in
// verbs every Gossip Node supports out of the box (§4.5.2).
func defaultVerbs() map[string]Verb {
	return map[string]Verb{
		CountAliveVerb: {Handler: countAliveHandler, Aggregate: countAliveAggregate},
		ListAliveVerb:  {Handler: listAliveHandler, Aggregate: listAliveAggregate},
	}
}
