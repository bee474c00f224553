/*
Package rs implements the Replicated Store: the Byzantine-fault-tolerant
CRDT state store at the core of Formation's control plane (spec.md §4.1).

Every entity (Account, Instance, Node, DNSRecord, CIDR, Peer) is held as a
last-writer-wins Register keyed by a hybrid logical clock and the
signing actor's address (pkg/types). RS exposes five operations, the same
on every replica regardless of where a write originated:

  - Read          — local, pure, never blocks.
  - ApplyLocal    — validate signature, check ACL, assign clock, write
                    ahead to the Operation Log, apply.
  - MergeRemote   — fold a peer-originated delta in; idempotent, and
                    quarantines rather than rejects an invalid signature.
  - Snapshot      — capture every register, for OL bootstrap.
  - IngestSnapshot — re-merge a whole snapshot through the same ordering
                    MergeRemote uses, so concurrent live deltas during
                    ingest are never lost.

# Byzantine tolerance

A register is only ever accepted if its signature verifies for the
actor it claims (pkg/identity.CanonicalRegisterHash), and the ACL
(acl.go) restricts which actor may write which key. A malicious peer can
forge neither another actor's signature nor a write outside the keys its
own address owns; it can still publish adversarial-but-validly-signed
writes for keys it owns, which RS accepts per spec.md §4.1 — that is a
policy question for the entity's owner, not a protocol violation.
Equivocation — two different signed values under the same (clock, actor)
— is detected and reported (events.EventEquivocation) but resolved
deterministically (the lexicographically greater value wins) rather than
blocking convergence.

# Locking

spec.md §5 calls for "a single writer lock per entity type, held only at
millisecond scale". RS keeps one sync.Mutex per EntityKind rather than a
single store-wide lock, so a burst of Instance writes never blocks a
concurrent Node heartbeat.
*/
package rs
