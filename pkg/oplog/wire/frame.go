// Package wire implements the Operation Log's binary frame format
// (spec.md §6): the bytes exchanged between peers during fan-out and
// bootstrap, independent of any particular transport.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/formthefog/formation-sub001/pkg/types"
)

// MsgType is the first byte of a Frame, selecting its purpose.
type MsgType byte

const (
	MsgWrite         MsgType = 1
	MsgAck           MsgType = 2
	MsgNack          MsgType = 3
	MsgSnapshotReq   MsgType = 4
	MsgSnapshotChunk MsgType = 5
	MsgHeartbeat     MsgType = 6
)

func (t MsgType) String() string {
	switch t {
	case MsgWrite:
		return "Write"
	case MsgAck:
		return "Ack"
	case MsgNack:
		return "Nack"
	case MsgSnapshotReq:
		return "SnapshotReq"
	case MsgSnapshotChunk:
		return "SnapshotChunk"
	case MsgHeartbeat:
		return "Heartbeat"
	default:
		return fmt.Sprintf("MsgType(%d)", byte(t))
	}
}

// MaxPayloadSize bounds a single frame's payload, guarding a peer
// connection against an unbounded length prefix from a misbehaving or
// hostile sender.
const MaxPayloadSize = 16 << 20 // 16 MiB

// MaxKeySize bounds a Frame's entity key, guarding a peer connection
// against an unbounded length prefix the same way MaxPayloadSize does.
const MaxKeySize = 1 << 16 // 64 KiB

// Frame is one Operation Log protocol message (spec.md §6):
//
//	len(u32 BE) || type(u8) || topic_id(u16) || sub(u16) || seq(u64) ||
//	ts(u64) || emitter(20 bytes) || key_len(u16) || key ||
//	payload_len(u32) || payload || sig_len(u16) || signature
//
// key carries the entity key a MsgWrite frame's payload was written
// under (spec.md §4.1's (kind, key) addressing), so a peer replaying
// this frame during bootstrap catch-up or live fan-out can reconstruct
// a keyed delta without a side-channel lookup. The signature, when
// present, covers every field from Type through Payload in wire order
// (SignedFields).
type Frame struct {
	Type      MsgType
	TopicID   uint16
	Sub       uint16
	Seq       uint64
	Timestamp uint64
	Emitter   types.Address
	Key       string
	Payload   []byte
	Signature types.Signature
}

// SignedFields returns the byte sequence a Frame's Signature is computed
// over: everything but the outer length prefix and the signature itself.
func (f Frame) SignedFields() []byte {
	buf := make([]byte, 0, 1+2+2+8+8+types.AddressLength+2+len(f.Key)+4+len(f.Payload))
	buf = append(buf, byte(f.Type))
	buf = appendU16(buf, f.TopicID)
	buf = appendU16(buf, f.Sub)
	buf = appendU64(buf, f.Seq)
	buf = appendU64(buf, f.Timestamp)
	buf = append(buf, f.Emitter[:]...)
	buf = appendU16(buf, uint16(len(f.Key)))
	buf = append(buf, f.Key...)
	buf = appendU32(buf, uint32(len(f.Payload)))
	buf = append(buf, f.Payload...)
	return buf
}

// Encode writes the length-prefixed wire representation of f to w.
func (f Frame) Encode(w io.Writer) error {
	body := f.SignedFields()
	sigLen := uint16(0)
	if !f.Signature.IsZero() {
		sigLen = types.SignatureLength
	}
	total := len(body) + 2 + int(sigLen)

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(total))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	sigLenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(sigLenBuf, sigLen)
	if _, err := w.Write(sigLenBuf); err != nil {
		return fmt.Errorf("write signature length: %w", err)
	}
	if sigLen > 0 {
		if _, err := w.Write(f.Signature[:]); err != nil {
			return fmt.Errorf("write signature: %w", err)
		}
	}
	return nil
}

// Decode reads one length-prefixed Frame from r.
func Decode(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	total := binary.BigEndian.Uint32(lenBuf[:])
	if total > MaxPayloadSize {
		return Frame{}, fmt.Errorf("frame length %d exceeds max %d", total, MaxPayloadSize)
	}

	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("read frame body: %w", err)
	}

	var f Frame
	off := 0
	readU8 := func() byte { v := body[off]; off++; return v }
	readU16 := func() uint16 { v := binary.BigEndian.Uint16(body[off:]); off += 2; return v }
	readU64 := func() uint64 { v := binary.BigEndian.Uint64(body[off:]); off += 8; return v }

	if len(body) < 1+2+2+8+8+types.AddressLength+2 {
		return Frame{}, fmt.Errorf("frame body too short: %d bytes", len(body))
	}

	f.Type = MsgType(readU8())
	f.TopicID = readU16()
	f.Sub = readU16()
	f.Seq = readU64()
	f.Timestamp = readU64()
	copy(f.Emitter[:], body[off:off+types.AddressLength])
	off += types.AddressLength

	keyLen := readU16()
	if int(keyLen) > MaxKeySize {
		return Frame{}, fmt.Errorf("key length %d exceeds max %d", keyLen, MaxKeySize)
	}
	if off+int(keyLen)+4 > len(body) {
		return Frame{}, fmt.Errorf("key length %d overruns frame body", keyLen)
	}
	f.Key = string(body[off : off+int(keyLen)])
	off += int(keyLen)

	payloadLen := binary.BigEndian.Uint32(body[off:])
	off += 4
	if off+int(payloadLen) > len(body) {
		return Frame{}, fmt.Errorf("payload length %d overruns frame body", payloadLen)
	}
	f.Payload = body[off : off+int(payloadLen)]
	off += int(payloadLen)

	if off+2 > len(body) {
		return Frame{}, fmt.Errorf("frame missing signature length")
	}
	sigLen := binary.BigEndian.Uint16(body[off:])
	off += 2
	if sigLen == 0 {
		return f, nil
	}
	if sigLen != types.SignatureLength || off+int(sigLen) != len(body) {
		return Frame{}, fmt.Errorf("invalid signature length %d", sigLen)
	}
	copy(f.Signature[:], body[off:])
	return f, nil
}

func appendU16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
