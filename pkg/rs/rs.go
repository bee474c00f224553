package rs

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/formthefog/formation-sub001/pkg/events"
	"github.com/formthefog/formation-sub001/pkg/identity"
	"github.com/formthefog/formation-sub001/pkg/storage"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// topicFor returns the Operation Log topic a kind's writes are recorded
// under (spec.md §4.2's topic set, extended with a dedicated CIDR topic
// the distilled spec's enumerated set omitted).
func topicFor(kind types.EntityKind) string {
	switch kind {
	case types.EntityAccount:
		return "account-updates"
	case types.EntityInstance:
		return "instance-updates"
	case types.EntityNode:
		return "node-updates"
	case types.EntityDNSRecord:
		return "dns-updates"
	case types.EntityCIDR:
		return "cidr-updates"
	case types.EntityPeer:
		return "peer-updates"
	default:
		return string(kind)
	}
}

// allKinds is the closed entity set Snapshot walks (spec.md §3.2).
var allKinds = []types.EntityKind{
	types.EntityAccount,
	types.EntityInstance,
	types.EntityNode,
	types.EntityDNSRecord,
	types.EntityCIDR,
	types.EntityPeer,
}

func isKnownKind(kind types.EntityKind) bool {
	for _, k := range allKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Option configures a Store at construction.
type Option func(*Store)

// WithAuthorizer overrides the default per-entity ACL rules.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Store) { s.authz = a }
}

// WithWriteAheadLog wires the Operation Log ApplyLocal writes through
// before applying locally.
func WithWriteAheadLog(log WriteAheadLog) Option {
	return func(s *Store) { s.log = log }
}

// WithClockSource overrides the HLC's wall-clock reader (tests only).
func WithClockSource(now clockSource) Option {
	return func(s *Store) { s.clockNow = now }
}

// Store is the Replicated Store: the Byzantine-tolerant CRDT state store
// spec.md §4.1 specifies. It exposes Read, ApplyLocal, MergeRemote,
// Snapshot, and IngestSnapshot, the same five operations in every replica
// regardless of which node originated a given write.
type Store struct {
	db       storage.Store
	authz    Authorizer
	log      WriteAheadLog
	events   *events.Broker
	selfAddr types.Address

	clockNow clockSource
	clock    *hlc

	// One lock per entity kind (spec.md §5: "RS in-memory map single
	// writer lock per entity type"), so concurrent writers to different
	// kinds never contend.
	locksMu sync.Mutex
	locks   map[types.EntityKind]*sync.Mutex
}

// New constructs a Store over db, owned by the node identified by
// selfAddr (used to attribute reconciler-issued corrective writes).
func New(db storage.Store, broker *events.Broker, selfAddr types.Address, opts ...Option) *Store {
	s := &Store{
		db:       db,
		authz:    DefaultAuthorizer{},
		log:      noopLog{},
		events:   broker,
		selfAddr: selfAddr,
		locks:    make(map[types.EntityKind]*sync.Mutex, len(allKinds)),
	}
	for _, k := range allKinds {
		s.locks[k] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = newHLC(selfAddr, s.clockNow)
	return s
}

func (s *Store) lockFor(kind types.EntityKind) *sync.Mutex {
	s.locksMu.Lock()
	lock, ok := s.locks[kind]
	s.locksMu.Unlock()
	if !ok {
		// Unknown kind: give it its own lock rather than panicking; the
		// caller's own kind validation (bucketForKind) will reject it.
		s.locksMu.Lock()
		lock = &sync.Mutex{}
		s.locks[kind] = lock
		s.locksMu.Unlock()
	}
	return lock
}

// Read returns the current value at (kind, key), or found=false if no
// live (non-tombstoned) register exists there. Read is pure, local, and
// never blocks on the network or the Operation Log (spec.md §4.1).
func (s *Store) Read(kind types.EntityKind, key string) (json.RawMessage, bool, error) {
	reg, found, err := s.db.GetRegister(kind, key)
	if err != nil {
		return nil, false, err
	}
	if !found || reg.Tombstone {
		return nil, false, nil
	}
	return reg.Value, true, nil
}

// ApplyLocal validates, authorizes, clock-stamps, write-ahead logs, and
// applies a client-submitted write. It returns the four client-visible
// errors spec.md §4.1 enumerates (ErrInvalidSignature, ErrNotAuthorized,
// and malformed-payload / durable-I/O variants); a StalePrecondition is
// not an error at all — it resolves to a NoOp Delta carrying the winning
// existing register (spec.md §7: preconditions succeed, they don't fail).
func (s *Store) ApplyLocal(op SignedOp) (Delta, error) {
	if !isKnownKind(op.Kind) {
		return Delta{}, fmt.Errorf("%w: %s", ErrUnknownEntityKind, op.Kind)
	}

	hash := identity.CanonicalRegisterHash(string(op.Kind), op.Key, op.Value, op.Actor)
	if !identity.Verify(hash, op.Sig, op.Actor) {
		return Delta{}, ErrInvalidSignature
	}

	lock := s.lockFor(op.Kind)
	lock.Lock()
	defer lock.Unlock()

	if err := s.authz.Authorize(s.db, op.Kind, op.Key, op.Actor); err != nil {
		return Delta{}, err
	}

	existing, found, err := s.db.GetRegister(op.Kind, op.Key)
	if err != nil {
		return Delta{}, fmt.Errorf("read existing register: %w", err)
	}

	reg := types.Register{
		Value:     append(json.RawMessage(nil), op.Value...),
		Clock:     s.clock.next(),
		Actor:     op.Actor,
		Sig:       op.Sig,
		Tombstone: op.Tombstone,
	}

	if found && !reg.Dominates(existing) {
		// StalePrecondition: the caller's write doesn't win the CRDT
		// order against what's already there. Treat as success and hand
		// back the value that actually stands (spec.md §7).
		return Delta{Kind: op.Kind, Key: op.Key, Register: existing, NoOp: true}, nil
	}

	payload, err := json.Marshal(reg)
	if err != nil {
		return Delta{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := s.log.Write(topicFor(op.Kind), 0, op.Key, payload, op.Actor, op.Sig); err != nil {
		// Wrapped with %w so the API layer's errors.Is(err, oplog.ErrBusy)
		// backpressure mapping to 503 still matches through this call;
		// any other failure here is durable I/O fatal per spec.md §4.1,
		// and the caller (the HTTP ingress handler, via pkg/node) is
		// responsible for taking the node read-only and stopping ingress
		// on it.
		return Delta{}, fmt.Errorf("write-ahead log fsync failed: %w", err)
	}

	if err := s.db.PutRegister(op.Kind, op.Key, reg); err != nil {
		return Delta{}, fmt.Errorf("write-ahead log fsync failed: %w", err)
	}

	s.events.Publish(&events.Event{
		Type:    events.EventRegisterApplied,
		Message: fmt.Sprintf("applied %s/%s", op.Kind, op.Key),
		Metadata: map[string]string{
			"kind": string(op.Kind),
			"key":  op.Key,
		},
	})

	return Delta{Kind: op.Kind, Key: op.Key, Register: reg}, nil
}

// MergeRemote folds a peer-originated delta into local state. It is
// idempotent and never returns an error for a validly-signed input: an
// invalid signature is quarantined (logged and counted, never applied or
// re-propagated) rather than rejected back to the caller, since the
// caller here is OL's fan-out receive loop, not a client awaiting a
// response (spec.md §4.1).
func (s *Store) MergeRemote(d Delta) error {
	if !isKnownKind(d.Kind) {
		s.quarantine(d, "unknown entity kind")
		return nil
	}

	hash := identity.CanonicalRegisterHash(string(d.Kind), d.Key, d.Register.Value, d.Register.Actor)
	if !identity.Verify(hash, d.Register.Sig, d.Register.Actor) {
		s.quarantine(d, "invalid signature")
		return nil
	}

	lock := s.lockFor(d.Kind)
	lock.Lock()
	defer lock.Unlock()

	if err := s.authz.Authorize(s.db, d.Kind, d.Key, d.Register.Actor); err != nil {
		s.quarantine(d, "not authorized")
		return nil
	}

	s.clock.observe(d.Register.Clock)

	existing, exists, err := s.db.GetRegister(d.Kind, d.Key)
	if err != nil {
		return fmt.Errorf("read existing register: %w", err)
	}

	if exists {
		if existing.Equivocates(d.Register) {
			s.events.Publish(&events.Event{
				Type:    events.EventEquivocation,
				Message: fmt.Sprintf("equivocation on %s/%s", d.Kind, d.Key),
				Metadata: map[string]string{
					"kind":  string(d.Kind),
					"key":   d.Key,
					"actor": d.Register.Actor.String(),
				},
			})
		}
		if !d.Register.Dominates(existing) {
			// Already have an equal-or-newer register: idempotent no-op.
			return nil
		}
	}

	if err := s.db.PutRegister(d.Kind, d.Key, d.Register); err != nil {
		return fmt.Errorf("write-ahead log fsync failed: %w", err)
	}

	s.events.Publish(&events.Event{
		Type:    events.EventRegisterMerged,
		Message: fmt.Sprintf("merged %s/%s", d.Kind, d.Key),
		Metadata: map[string]string{
			"kind": string(d.Kind),
			"key":  d.Key,
		},
	})
	return nil
}

func (s *Store) quarantine(d Delta, reason string) {
	s.events.Publish(&events.Event{
		Type:    events.EventQuarantine,
		Message: fmt.Sprintf("quarantined delta for %s/%s: %s", d.Kind, d.Key, reason),
		Metadata: map[string]string{
			"kind":   string(d.Kind),
			"key":    d.Key,
			"reason": reason,
		},
	})
}

// Snapshot captures every register currently held, for OL bootstrap
// catch-up and cross-node reconciliation (spec.md §4.1, §4.2 step 1).
func (s *Store) Snapshot() (CompactState, error) {
	cs := CompactState{
		Entities: make(map[types.EntityKind]map[string]types.Register, len(allKinds)),
	}
	for _, kind := range allKinds {
		regs, err := s.db.ListRegisters(kind)
		if err != nil {
			return CompactState{}, fmt.Errorf("list %s registers: %w", kind, err)
		}
		cs.Entities[kind] = regs
	}
	return cs, nil
}

// IngestSnapshot merges an entire CompactState, one register at a time
// through the same Dominates ordering MergeRemote uses, so it tolerates
// concurrent live deltas arriving mid-ingest without losing either side
// (spec.md §4.1).
func (s *Store) IngestSnapshot(cs CompactState, proof SnapshotProof) error {
	for kind, regs := range cs.Entities {
		for key, reg := range regs {
			if err := s.MergeRemote(Delta{Kind: kind, Key: key, Register: reg}); err != nil {
				return fmt.Errorf("ingest %s/%s: %w", kind, key, err)
			}
		}
	}
	return nil
}
