/*
Package node wires a single Formation process together: storage, the
Replicated Store, the Operation Log, the identity keystore, the Geo
Resolver's DNS server, health probers, the reconciler, and the HTTP
control-plane ingress, in the dependency order spec.md §2 fixes.

# Architecture

A Formation node has no leader and no consensus round: RS's hybrid
logical clock and signed last-writer-wins registers make every replica
independently authoritative for reads, and the Operation Log's per-topic
fan-out is how writes reach peers.

	┌─────────────────────────── NODE ────────────────────────────┐
	│                                                                │
	│  ┌───────────────────────────────────────────────┐           │
	│  │         HTTP control-plane API (pkg/api)       │           │
	│  │  JSON envelope, keccak256-signed writes        │           │
	│  └──────────────────────┬──────────────────────────┘         │
	│                         │                                     │
	│  ┌──────────────────────▼──────────────────────────┐         │
	│  │        Replicated Store (pkg/rs)                 │         │
	│  │  signed CRDT registers, per-kind locks, ACL       │         │
	│  └────────┬───────────────────────────┬──────────────┘       │
	│           │                           │                       │
	│  ┌────────▼──────────┐      ┌─────────▼─────────────┐        │
	│  │ Operation Log      │      │ Geo Resolver           │       │
	│  │ (pkg/oplog)         │      │ (pkg/georesolver)      │       │
	│  │ write-ahead, fan-out│      │ authoritative DNS      │       │
	│  └─────────────────────┘      └────────────────────────┘      │
	│                                                                │
	│  ┌─────────────────────┐     ┌─────────────────────────┐     │
	│  │ Reconciler            │     │ Health probers           │   │
	│  │ (pkg/reconciler)       │     │ (pkg/health)             │   │
	│  │ ownership + DNS repair │     │ one per discovered target │  │
	│  └─────────────────────┘     └─────────────────────────┘     │
	└────────────────────────────────────────────────────────────────┘

# Relationship to warren's pkg/manager

This package is adapted from warren's pkg/manager.Manager: the same
struct-of-subsystems construction and the same reverse-order Shutdown
discipline, but the subsystems themselves are different. warren's Manager
wires Raft, an FSM, a certificate authority, ACME, an ingress proxy, and
a join-token RPC flow for a container-orchestration cluster; none of
that has an analogue here, since spec.md names a static `peers` list for
fan-out targets rather than dynamic cluster membership, and RS's CRDT
clock replaces Raft's consensus round entirely. What's kept is the shape:
one constructor building every dependency up front, one Start bringing
listeners up in order, one Shutdown tearing them down in reverse, and a
Ready method the HTTP health server polls.

# Identity

Every node has one secp256k1 keypair, sealed at OperatorKeyPath under an
AES-256-GCM passphrase-derived key (pkg/identity.Keystore). It signs the
node's own reconciler writes and health-probe writes, and its address is
the only entry in this node's rs.DefaultAuthorizer.Reconcilers
allowlist — spec.md §3.3's "reconciler ops are signed by the local node
key" invariant.
*/
package node
