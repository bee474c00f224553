/*
Package reconciler implements the periodic idempotent pass spec.md §3.3
requires for the two cross-entity invariants RS's per-key CRDT model
cannot enforce on its own, because they span two entity kinds:

  - Ownership <-> authorization coherence: an Instance's owner_address
    must appear in that account's owned_instance_ids, and vice versa.
  - DNS well-formedness: every DNSRecord either resolves to at least
    one IP belonging to a live Instance or Node, or its
    verification_status is Pending.

Accounts and Instances hold independent CRDT entries joined only by
this pass rather than by any pointer the storage layer enforces
(spec.md's "cyclic and cross-entity references" design note) — a
reference cycle at the data level would otherwise force the CRDT model
into cycles it isn't built for.

# Why a reconciler and not a synchronous check

ApplyLocal validates one key's signature and ACL in isolation; it has
no way to see, atomically, that a just-accepted Instance write also
requires an Account write. Reconciler repairs land a full cycle later,
which is acceptable because the corrective write is itself just an
ordinary signed CRDT op — a transient read of `read(i-1).owner` right
after an ownership transfer can observe the pre-repair state without
ever observing data loss.

# Corrective op signing

Every repair is a normal rs.SignedOp, signed under the reconciler's own
node identity (pkg/identity), applied through Store.ApplyLocal exactly
like a client write. rs.DefaultAuthorizer.Reconcilers is the allowlist
that makes this possible: a reconciler can touch Account and DNSRecord
fields it doesn't own, nothing else.

# Adapted from

Warren's pkg/reconciler/reconciler.go: the ticker-driven run loop,
Start/Stop lifecycle, and per-cycle metrics/logging shape are kept
directly; Warren's own reconciliation targets (node heartbeat timeout,
container health, scheduler replacement) belonged to its container
orchestration model and have no analogue here — node liveness and DNS
target health are Operation Log / pkg/health concerns in this system,
not reconciler ones.
*/
package reconciler
