package rs

import "github.com/formthefog/formation-sub001/pkg/types"

// SignedOp is a client-submitted write, already signed over
// identity.CanonicalRegisterHash(Kind, Key, Value, Actor). ApplyLocal
// assigns the HybridClock; the caller never supplies one (spec.md §4.1).
type SignedOp struct {
	Kind      types.EntityKind
	Key       string
	Value     []byte
	Actor     types.Address
	Sig       types.Signature
	Tombstone bool
}

// Delta is the unit ApplyLocal returns and MergeRemote consumes: one
// entity's fully-formed, clock-stamped register (spec.md §4.1).
type Delta struct {
	Kind     types.EntityKind
	Key      string
	Register types.Register

	// NoOp is set when ApplyLocal resolved a StalePrecondition: the
	// submitted op did not dominate the existing register, so RS returned
	// the current value unchanged rather than applying anything
	// (spec.md §7: preconditions are treated as success, not an error).
	NoOp bool
}

// CompactState is the full snapshot RS can produce and re-ingest
// (spec.md §4.1's snapshot/ingest_snapshot pair, used by OL bootstrap).
type CompactState struct {
	Entities   map[types.EntityKind]map[string]types.Register
	Watermarks map[string]uint64
}

// SnapshotProof authenticates a CompactState as having come from a node
// entitled to produce one (spec.md §4.1 "ingest_snapshot(state, proof)").
type SnapshotProof struct {
	Signer types.Address
	Sig    types.Signature
}
