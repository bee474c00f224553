/*
Package identity provides the secp256k1 signing primitives that authenticate
every write in Formation: Replicated Store operations, Operation Log frames,
and HTTP ingress requests all carry a recoverable signature over a canonical
hash, and the signer's Address is recovered from it rather than carried
alongside (spec.md §3.1).

# Addressing

An Address is the low 20 bytes of the Keccak-256 hash of an uncompressed
public key, the same scheme Ethereum uses. A Signature is 65 bytes, R||S||V,
where V is the recovery id needed to reconstruct the public key from the
hash and signature alone:

	addr := Keccak256(pubkey.Uncompressed()[1:])[12:32]

# Canonical hashes

CanonicalRegisterHash and CanonicalRequestHash fix the exact byte layout
that producers sign and consumers re-derive, so a JSON field reordering
never changes what gets hashed. Both live here rather than in pkg/rs or
pkg/api because they're the one piece of those packages' formats that
signer and verifier must agree on byte-for-byte. Operation Log frames
carry the register signature unchanged. CanonicalOpHash hashes an
Operation Log frame's fields the same way; no package in this module
calls it.

# Keystore

Keystore seals an operator's private key at rest under a passphrase-derived
AES-256-GCM key, the same construction the teacher used for its cluster
encryption key. A node with no existing keystore file generates and seals a
fresh key pair on first boot (OpenOrGenerate).

This package deliberately does not provide certificate issuance or mTLS:
Formation's transport is either plain HTTP with request-level signatures
(ingress) or the custom Operation Log framing (replication), and spec.md's
external collaborators (VM manager, wireguard daemon) are not RPC clients of
this control plane, so there is no certificate-bearing peer to serve.
*/
package identity
