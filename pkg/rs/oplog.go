package rs

import "github.com/formthefog/formation-sub001/pkg/types"

// WriteAheadLog is the write-ahead dependency ApplyLocal durably records
// through before applying a local mutation in memory (spec.md §4.1: "write
// in-memory delta to the Operation Log (write-ahead)... fsync before
// acknowledging"). pkg/oplog's Log type satisfies this interface; RS
// depends only on the narrow slice of OL's contract it actually needs, so
// the two packages can be built and tested independently.
type WriteAheadLog interface {
	// Write durably appends payload to (topic, sub), addressed by key and
	// attributed to emitter/sig, and returns its assigned sequence
	// number. It must not return until payload is fsynced (spec.md
	// §3.3's OL durability invariant), and the record it appends is the
	// one pkg/oplog's fan-out manager replicates to peers — the write
	// path every client-submitted op takes, as opposed to WriteLocal's
	// node-private records.
	Write(topic string, sub uint16, key string, payload []byte, emitter types.Address, sig types.Signature) (seq uint64, err error)
}

// noopLog is the zero-value write-ahead log used when RS is constructed
// without one (tests exercising CRDT semantics in isolation from OL).
type noopLog struct{}

func (noopLog) Write(topic string, sub uint16, key string, payload []byte, emitter types.Address, sig types.Signature) (uint64, error) {
	return 0, nil
}
