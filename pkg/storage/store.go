package storage

import (
	"github.com/formthefog/formation-sub001/pkg/types"
)

// Store defines the durable persistence interface the Replicated Store and
// Operation Log are built on. A single implementation (BoltStore) backs
// both: one bucket per EntityKind holds that kind's registers, and a
// separate watermark bucket tracks each Operation Log topic's committed
// compaction sequence number, which oplog.Log.Compact reads.
type Store interface {
	// Registers
	PutRegister(kind types.EntityKind, key string, reg types.Register) error
	GetRegister(kind types.EntityKind, key string) (types.Register, bool, error)
	ListRegisters(kind types.EntityKind) (map[string]types.Register, error)
	DeleteRegister(kind types.EntityKind, key string) error

	// Watermarks (committed Operation Log compaction sequence per topic,
	// read by oplog.Log.Compact)
	GetWatermark(topic string) (uint64, error)
	SetWatermark(topic string, seq uint64) error

	Close() error
}
