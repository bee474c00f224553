/*
Package types defines the core data structures shared by the Replicated
Store, Operation Log, and Geo Resolver.

It holds three kinds of type:

  - Identity primitives (Address, Signature) used everywhere an actor or
    a proof of authorship is needed.
  - The CRDT primitives (HybridClock, Register) that give every entry in
    the Replicated Store its last-writer-wins, signature-pinned semantics.
  - The closed set of domain entities (Account, Instance, Node, DNSRecord,
    CIDR, Peer) enumerated by EntityKind.

All types are JSON-serializable; the Replicated Store persists a
Register's Value as opaque JSON and only the entity-specific code in
pkg/rs knows how to interpret it for a given EntityKind.
*/
package types
