package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Frame is the (sender_uid, destination_uid, Message) tuple that crosses
// the wire, per SPEC_FULL.md §3.1. Each frame is prefixed on the stream
// with its own 4-byte big-endian length, which is what the Socket
// Owner's listen-check (§4.2) peeks at before invoking DecodeFrame.
//
// SenderUID names the local node that is writing this specific frame on
// this specific hop — set fresh by whoever calls Neighbor.Forward, not
// carried over from Message.OriginUID, since a forwarded message's
// origin and its immediate hop are different nodes as soon as it crosses
// more than one edge. The receiving side uses it to attribute the
// message's source neighbor for loop-suppression and upstream reply
// routing (§4.5.1, §4.5.3), including on connections a Listener accepted
// rather than one this process dialed itself, where no other signal
// identifies who is on the other end of the socket.
type Frame struct {
	SenderUID      uint64
	DestinationUID uint64
	Message        Message
}

const (
	lenPrefixSize = 4
	uuidSize      = 16

	uint8Len  = 1
	uint32Len = 4
	uint64Len = 8
)

// MaxFramePayload bounds an individual message payload to keep a
// corrupted length prefix from causing an unbounded allocation.
const MaxFramePayload = 1 << 20

func encodeUint8(buf []byte, offset int, n uint8) int {
	buf[offset] = n
	return offset + uint8Len
}

func encodeUint32(buf []byte, offset int, n uint32) int {
	binary.BigEndian.PutUint32(buf[offset:offset+uint32Len], n)
	return offset + uint32Len
}

func encodeUint64(buf []byte, offset int, n uint64) int {
	binary.BigEndian.PutUint64(buf[offset:offset+uint64Len], n)
	return offset + uint64Len
}

func encodeString(buf []byte, offset int, s string) int {
	if len(s) > 0xff {
		panic("gossipmesh: string too large to encode; cannot exceed 255 bytes")
	}
	offset = encodeUint8(buf, offset, uint8(len(s)))
	copy(buf[offset:], s)
	return offset + len(s)
}

func encodeUUID(buf []byte, offset int, id uuid.UUID) int {
	copy(buf[offset:offset+uuidSize], id[:])
	return offset + uuidSize
}

// EncodeFrame serializes f into a length-prefixed frame ready to write to
// the stream.
func EncodeFrame(f Frame) []byte {
	m := f.Message
	bodyLen := uint64Len + // sender uid
		uint64Len + // destination uid
		uuidSize + uint8Len + // id, kind
		uint8Len + len(m.Verb) + // verb string
		uint64Len + // origin uid
		uint8Len + // has_solicitation flag
		uint8Len + // direct_reply flag
		uint64Len + uint32Len + // timestamp, ttl
		uint32Len + len(m.Payload) // payload
	if m.HasSolicitID {
		bodyLen += uuidSize
	}

	buf := make([]byte, lenPrefixSize+bodyLen)
	binary.BigEndian.PutUint32(buf[0:lenPrefixSize], uint32(bodyLen))

	offset := lenPrefixSize
	offset = encodeUint64(buf, offset, f.SenderUID)
	offset = encodeUint64(buf, offset, f.DestinationUID)
	offset = encodeUUID(buf, offset, m.ID)
	offset = encodeUint8(buf, offset, uint8(m.Kind))
	offset = encodeString(buf, offset, m.Verb)
	offset = encodeUint64(buf, offset, m.OriginUID)
	if m.HasSolicitID {
		offset = encodeUint8(buf, offset, 1)
		offset = encodeUUID(buf, offset, m.SolicitationID)
	} else {
		offset = encodeUint8(buf, offset, 0)
	}
	if m.DirectReply {
		offset = encodeUint8(buf, offset, 1)
	} else {
		offset = encodeUint8(buf, offset, 0)
	}
	offset = encodeUint64(buf, offset, uint64(m.Timestamp))
	offset = encodeUint32(buf, offset, m.TTLSeconds)
	offset = encodeUint32(buf, offset, uint32(len(m.Payload)))
	copy(buf[offset:], m.Payload)

	return buf
}

// DecodeFrame decodes the body of a frame (the bytes after the 4-byte
// length prefix, which the caller has already stripped and validated).
func DecodeFrame(body []byte) (Frame, error) {
	offset := 0
	need := func(n int) error {
		if offset+n > len(body) {
			return fmt.Errorf("%w: frame truncated at offset %d", ErrDecodeFailed, offset)
		}
		return nil
	}

	if err := need(uint64Len); err != nil {
		return Frame{}, err
	}
	sender := binary.BigEndian.Uint64(body[offset : offset+uint64Len])
	offset += uint64Len

	if err := need(uint64Len); err != nil {
		return Frame{}, err
	}
	dest := binary.BigEndian.Uint64(body[offset : offset+uint64Len])
	offset += uint64Len

	if err := need(uuidSize + uint8Len); err != nil {
		return Frame{}, err
	}
	id, err := uuid.FromBytes(body[offset : offset+uuidSize])
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	offset += uuidSize
	kind := Kind(body[offset])
	offset += uint8Len

	if err := need(uint8Len); err != nil {
		return Frame{}, err
	}
	verbLen := int(body[offset])
	offset += uint8Len
	if err := need(verbLen); err != nil {
		return Frame{}, err
	}
	verb := string(body[offset : offset+verbLen])
	offset += verbLen

	if err := need(uint64Len); err != nil {
		return Frame{}, err
	}
	origin := binary.BigEndian.Uint64(body[offset : offset+uint64Len])
	offset += uint64Len

	if err := need(uint8Len); err != nil {
		return Frame{}, err
	}
	hasSolicit := body[offset] == 1
	offset += uint8Len

	var solicitID uuid.UUID
	if hasSolicit {
		if err := need(uuidSize); err != nil {
			return Frame{}, err
		}
		solicitID, err = uuid.FromBytes(body[offset : offset+uuidSize])
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		offset += uuidSize
	}

	if err := need(uint8Len); err != nil {
		return Frame{}, err
	}
	direct := body[offset] == 1
	offset += uint8Len

	if err := need(uint64Len + uint32Len + uint32Len); err != nil {
		return Frame{}, err
	}
	timestamp := int64(binary.BigEndian.Uint64(body[offset : offset+uint64Len]))
	offset += uint64Len
	ttl := binary.BigEndian.Uint32(body[offset : offset+uint32Len])
	offset += uint32Len
	payloadLen := binary.BigEndian.Uint32(body[offset : offset+uint32Len])
	offset += uint32Len

	if payloadLen > MaxFramePayload {
		return Frame{}, fmt.Errorf("%w: payload too large (%d bytes)", ErrDecodeFailed, payloadLen)
	}
	if err := need(int(payloadLen)); err != nil {
		return Frame{}, err
	}
	payload := make([]byte, payloadLen)
	copy(payload, body[offset:offset+int(payloadLen)])
	offset += int(payloadLen)

	if offset != len(body) {
		return Frame{}, fmt.Errorf("%w: %d trailing bytes", ErrDecodeFailed, len(body)-offset)
	}

	return Frame{
		SenderUID:      sender,
		DestinationUID: dest,
		Message: Message{
			ID:             id,
			Kind:           kind,
			Verb:           verb,
			OriginUID:      origin,
			SolicitationID: solicitID,
			HasSolicitID:   hasSolicit,
			DirectReply:    direct,
			Timestamp:      timestamp,
			TTLSeconds:     ttl,
			Payload:        payload,
		},
	}, nil
}
