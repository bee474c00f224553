/*
Package storage provides BoltDB-backed persistence for the Replicated
Store's registers and the Operation Log's per-topic watermarks.

The storage package implements the Store interface using BoltDB (bbolt) as
the underlying database, providing ACID transactions. Each EntityKind
(account, instance, node, dns_record, cidr, peer) gets its own bucket; a
register is stored as opaque JSON keyed by its entity ID. A separate
watermark bucket tracks, per Operation Log topic, the sequence number
compacted into that topic's latest snapshot — the bound at or below which
oplog.Log.Compact drops records.

# Architecture

Formation uses BoltDB for embedded, transactional storage with no external
database dependency:

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/formation.db             │          │
	│  │  - Format: B+tree with MVCC                 │          │
	│  │  - Transactions: ACID with fsync            │          │
	│  │  - One bucket per EntityKind + watermarks   │          │
	│  └──────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────────┘

BoltStore performs no CRDT merge logic itself — pkg/rs resolves ordering via
types.Register.Dominates before calling PutRegister, so storage stays a
pure key/value layer that pkg/rs, pkg/oplog's bootstrap snapshotting, and
pkg/reconciler can all share.
*/
package storage
