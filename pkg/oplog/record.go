package oplog

import (
	"github.com/formthefog/formation-sub001/pkg/oplog/wire"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// Record is one entry read back from the log: a Write frame stripped of
// its wire envelope, addressed by (Topic, Sub, Seq) per spec.md §4.2.
// Key is the entity key the record's payload was written under, letting
// a peer turn a replayed record back into a keyed rs.Delta without a
// side-channel lookup (spec.md §4.1's (kind, key) addressing).
type Record struct {
	Topic     string
	Sub       uint16
	Seq       uint64
	Timestamp int64
	Emitter   types.Address
	Key       string
	Payload   []byte
	Signature types.Signature
}

func recordFromFrame(topic string, f wire.Frame) Record {
	return Record{
		Topic:     topic,
		Sub:       f.Sub,
		Seq:       f.Seq,
		Timestamp: int64(f.Timestamp),
		Emitter:   f.Emitter,
		Key:       f.Key,
		Payload:   f.Payload,
		Signature: f.Signature,
	}
}

func (r Record) toFrame(topicID uint16) wire.Frame {
	return wire.Frame{
		Type:      wire.MsgWrite,
		TopicID:   topicID,
		Sub:       r.Sub,
		Seq:       r.Seq,
		Timestamp: uint64(r.Timestamp),
		Emitter:   r.Emitter,
		Key:       r.Key,
		Payload:   r.Payload,
		Signature: r.Signature,
	}
}
