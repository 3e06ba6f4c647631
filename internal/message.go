package internal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

// Kind identifies the role a Message plays in the propagation protocol.
type Kind uint8

const (
	// KindCommand is a fire-and-forget message; no reply is expected.
	KindCommand Kind = iota + 1
	// KindSolicit is a query message that expects an aggregated REPLY.
	KindSolicit
	// KindReply answers a prior KindSolicit, identified by SolicitationID.
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindSolicit:
		return "solicit"
	case KindReply:
		return "reply"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// NoNeighbor is used as the "source neighbor" of a message injected by the
// local API rather than received over the wire. It reuses UID 0, the
// anonymous-broadcast sentinel, since a real neighbor UID is always >= 1.
const NoNeighbor uint64 = 0

// Message is the immutable record propagated across the graph. Once
// admitted into a Gossip Node's seen cache, Timestamp and TTLSeconds must
// never change.
type Message struct {
	ID             uuid.UUID
	Kind           Kind
	Verb           string
	OriginUID      uint64
	SolicitationID uuid.UUID
	HasSolicitID   bool
	// DirectReply, set only on KindSolicit, asks intermediate nodes to
	// route their REPLY straight back to OriginUID instead of up the
	// forwarding tree (Node.SolicitDirect).
	DirectReply bool
	Timestamp   int64
	TTLSeconds  uint32
	Payload     []byte
}

// NewCommand builds a fire-and-forget message ready for admission via
// (*Node).Deliver with source NoNeighbor.
func NewCommand(originUID uint64, verb string, payload []byte, ttl time.Duration) Message {
	return Message{
		ID:         uuid.New(),
		Kind:       KindCommand,
		Verb:       verb,
		OriginUID:  originUID,
		Timestamp:  time.Now().Unix(),
		TTLSeconds: ttlSeconds(ttl),
		Payload:    payload,
	}
}

// NewSolicit builds a query message. If direct is true, replies bypass the
// forwarding tree and are addressed straight to originUID.
func NewSolicit(originUID uint64, verb string, payload []byte, ttl time.Duration, direct bool) Message {
	return Message{
		ID:          uuid.New(),
		Kind:        KindSolicit,
		Verb:        verb,
		OriginUID:   originUID,
		DirectReply: direct,
		Timestamp:   time.Now().Unix(),
		TTLSeconds:  ttlSeconds(ttl),
		Payload:     payload,
	}
}

// NewReply builds a reply to solicitation, answering with aggregate as the
// payload. TTL is inherited from the solicitation being answered so the
// reply cannot outlive the query that caused it by more than the usual
// grace band.
func NewReply(originUID uint64, solicitation Message, payload []byte) Message {
	return Message{
		ID:             uuid.New(),
		Kind:           KindReply,
		Verb:           solicitation.Verb,
		OriginUID:      originUID,
		SolicitationID: solicitation.ID,
		HasSolicitID:   true,
		Timestamp:      solicitation.Timestamp,
		TTLSeconds:     solicitation.TTLSeconds,
		Payload:        payload,
	}
}

func ttlSeconds(ttl time.Duration) uint32 {
	secs := int64(ttl / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return uint32(secs)
}

// Expiry returns the absolute Unix expiry time of m.
func (m Message) Expiry() int64 {
	return m.Timestamp + int64(m.TTLSeconds)
}

// MarshalLogObject lets zap log a Message with structured fields, the way
// the teacher's Digest/Delta types do.
func (m Message) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", m.ID.String())
	enc.AddString("kind", m.Kind.String())
	enc.AddString("verb", m.Verb)
	enc.AddUint64("origin_uid", m.OriginUID)
	enc.AddInt64("timestamp", m.Timestamp)
	enc.AddUint32("ttl_seconds", m.TTLSeconds)
	if m.HasSolicitID {
		enc.AddString("solicitation_id", m.SolicitationID.String())
	}
	return nil
}
