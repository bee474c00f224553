/*
Package api implements the JSON control-plane ingress spec.md §6 defines:
a single HTTP port serving `/<entity>/list`, `/<entity>/:id/get`,
`/<entity>/create`, `/<entity>/update`, and `/<entity>/delete` for every
entity kind the Replicated Store holds, plus a `/health`, `/ready`, and
`/metrics` side-channel.

# Envelope

Every response is the discriminated union §6 fixes:

	{"Success": {"Some": <value>}}
	{"Success": {"List": [<value>, ...]}}
	{"Failure": {"reason": "<msg>"}}

# Authentication

Mutating routes (create/update/delete) require `X-Signature` (hex),
`X-Recovery-ID` (0 or 1), and `X-Timestamp` (unix seconds) headers, with
the signature covering `keccak256(method || path || body || timestamp)`
and a timestamp within ±300s of the receiving node's clock
(identity.CanonicalRequestHash, identity.RecoverAddress). list and get
are unauthenticated reads, matching §6's "unauthenticated reads are
permitted for non-sensitive list endpoints" — extended here to get,
since both are pure and "always safe to retry" per §7.

The entity's CRDT key travels inside the signed body rather than the
URL for create/update/delete, since §6's route list gives only
`:id/get` a path parameter; entities.go extracts it per entity kind
(account -> address, instance -> instance_id, node -> node_id,
dns_record -> fqdn, cidr -> cidr_id, peer -> peer_pubkey), falling back
to a generic "id" field for delete's minimal body.

# Error mapping

server.go's respondToWrite maps RS's ApplyLocal errors onto spec.md
§7's taxonomy: ErrInvalidSignature/ErrMalformedPayload/ErrUnknownEntityKind
-> 400, ErrNotAuthorized -> 403, oplog.ErrBusy -> 503 with Retry-After,
anything else -> 500. A StalePrecondition never reaches this mapping:
ApplyLocal already resolves it to a successful no-op Delta per §7.

# Adapted from

warren's pkg/api/health.go supplies the net/http + http.ServeMux shape
for HealthServer (no framework, matching the teacher's own choice for
plain JSON endpoints) and the liveness/readiness split; its Raft/leader
readiness check is replaced here by ReadyChecker, since this system has
no leader concept. warren's gRPC server.go (30+ RPC methods over mTLS,
backed by Raft proposals) and interceptor.go (ReadOnlyInterceptor for a
Unix-socket gRPC listener) have no analogue: spec.md's HTTP ingress is
plain signed JSON, not gRPC, and there is no CLI-local control socket in
this system's external interfaces (§6) — both were dropped rather than
adapted, since no SPEC_FULL.md component exercises a gRPC transport.
*/
package api
