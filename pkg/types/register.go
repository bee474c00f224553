package types

import "encoding/json"

// Register is a Byzantine-tolerant last-writer-wins register: the CRDT unit
// of every entry in the Replicated Store (spec.md §3.2). A register's value
// is only ever accepted if Sig verifies over (Kind, Key, Value, Actor) for
// an address authorized to write Key (Clock is assigned after signing and
// is not covered) (spec.md §3.3's "authenticated writes"
// invariant) — RS, not Register itself, enforces that check, since it needs
// the ACL and the entity's key to do so.
type Register struct {
	Value     json.RawMessage `json:"value"`
	Clock     HybridClock     `json:"clock"`
	Actor     Address         `json:"actor"`
	Sig       Signature       `json:"sig"`
	Tombstone bool            `json:"tombstone,omitempty"`
}

// Dominates reports whether r is strictly newer than other under the total
// order spec.md §4.1 defines: compare (Clock, Actor) lexicographically,
// with ties on Actor broken by the lexicographically greater Value winning
// (the equivocation rule, spec.md §4.1 and §8 S3). Two registers from the
// same actor at the same clock never legitimately differ unless one is a
// forged equivocation, so the value comparison only matters in that case.
func (r Register) Dominates(other Register) bool {
	switch r.Clock.Compare(other.Clock) {
	case 1:
		return true
	case -1:
		return false
	}
	if r.Actor != other.Actor {
		// Same clock, different actor: address order decides (spec.md §3.3).
		return other.Actor.Less(r.Actor)
	}
	// Equivocation: same (clock, actor), different value. Higher value wins
	// deterministically (spec.md §4.1's Byzantine-tolerance clause).
	return string(r.Value) > string(other.Value)
}

// Equivocates reports whether r and other carry the same (Clock, Actor) but
// different Value — the signature of a compromised or malicious key
// (spec.md glossary, "Equivocation").
func (r Register) Equivocates(other Register) bool {
	return r.Clock == other.Clock && r.Actor == other.Actor && string(r.Value) != string(other.Value)
}
