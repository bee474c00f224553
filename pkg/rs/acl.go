package rs

import (
	"encoding/json"
	"fmt"

	"github.com/formthefog/formation-sub001/pkg/storage"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// Authorizer decides whether actor may write (kind, key), given whatever
// register currently occupies that key (spec.md §3.2's per-entity
// ownership column). Implementations read through store rather than
// taking the existing register directly, since some checks (Peer, CIDR)
// need to consult a different entity kind than the one being written.
type Authorizer interface {
	Authorize(store storage.Store, kind types.EntityKind, key string, actor types.Address) error
}

// DefaultAuthorizer implements the ownership rules spec.md §3.2 lists per
// entity: Account (self), Instance (owner or an authorized owner/manager),
// Node (its own key only), DNS Record (owner of the referenced instance,
// or the record's own current owner), CIDR/Peer (network operator keys,
// modeled here as the AdminID of any live CIDR marked Admin; Peer records
// are not consulted).
//
// Reconcilers is the set of node addresses trusted to emit the
// corrective ops spec.md §3.3 describes ("an asynchronous reconciler
// repairs divergence on detection... signed by the local node key and
// only touch fields the node is authorized to write"): pkg/node populates
// it at construction with the local node's own address only. It widens
// Account and DNSRecord authorization just enough for pkg/reconciler to
// fix ownership-mirror and well-formedness divergence it detects on
// entities it doesn't itself own, without granting reconcilers write
// access to any other entity kind.
type DefaultAuthorizer struct {
	Reconcilers map[types.Address]bool
}

func (a DefaultAuthorizer) Authorize(store storage.Store, kind types.EntityKind, key string, actor types.Address) error {
	switch kind {
	case types.EntityAccount:
		return authorizeAccount(key, actor, a.Reconcilers)
	case types.EntityInstance:
		return authorizeInstance(store, key, actor)
	case types.EntityNode:
		return authorizeNode(store, key, actor)
	case types.EntityDNSRecord:
		return authorizeDNSRecord(store, key, actor, a.Reconcilers)
	case types.EntityCIDR, types.EntityPeer:
		return authorizeNetworkOperator(store, actor)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEntityKind, kind)
	}
}

// authorizeAccount requires the key (the account's address, hex-encoded)
// to match the writing actor, or actor to be a trusted reconciler
// correcting the ownership mirror.
func authorizeAccount(key string, actor types.Address, reconcilers map[types.Address]bool) error {
	addr, err := types.ParseAddress(key)
	if err != nil {
		return fmt.Errorf("%w: account key is not an address: %v", ErrMalformedPayload, err)
	}
	if addr == actor || reconcilers[actor] {
		return nil
	}
	return ErrNotAuthorized
}

func authorizeInstance(store storage.Store, key string, actor types.Address) error {
	existing, found, err := store.GetRegister(types.EntityInstance, key)
	if err != nil {
		return err
	}
	if !found {
		// First write creates the instance; the creating actor becomes owner.
		return nil
	}
	var inst types.Instance
	if err := json.Unmarshal(existing.Value, &inst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if inst.OwnerAddress == actor {
		return nil
	}
	switch inst.AuthorizedUsers[actor] {
	case types.RoleOwner, types.RoleManager:
		return nil
	}
	return ErrNotAuthorized
}

// authorizeNode requires the actor to be the node's own key: the first
// write establishes ownership, and every later write must come from the
// same address (spec.md §3.2: "Node's own key only").
func authorizeNode(store storage.Store, key string, actor types.Address) error {
	existing, found, err := store.GetRegister(types.EntityNode, key)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var node types.Node
	if err := json.Unmarshal(existing.Value, &node); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if node.OwnerAddress != actor {
		return ErrNotAuthorized
	}
	return nil
}

// authorizeDNSRecord allows the record's current owner, or (on first
// write) whoever signs it, or a trusted reconciler; it does not itself
// verify the owner actually controls the referenced instance —
// pkg/reconciler's DNS well-formedness pass repairs any divergence it
// finds (spec.md §3.3's "ownership ↔ authorization coherence" invariant).
func authorizeDNSRecord(store storage.Store, key string, actor types.Address, reconcilers map[types.Address]bool) error {
	existing, found, err := store.GetRegister(types.EntityDNSRecord, key)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var rec types.DNSRecord
	if err := json.Unmarshal(existing.Value, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if rec.OwnerAddress == actor || reconcilers[actor] {
		return nil
	}
	return ErrNotAuthorized
}

// authorizeNetworkOperator allows any actor already recorded as the admin
// of some CIDR allocation, or any actor at all if no CIDR has ever been
// admin-flagged yet (the bootstrap case: the first signed CIDR write
// establishes the network operator key).
func authorizeNetworkOperator(store storage.Store, actor types.Address) error {
	cidrs, err := store.ListRegisters(types.EntityCIDR)
	if err != nil {
		return err
	}
	sawAdmin := false
	for _, reg := range cidrs {
		if reg.Tombstone {
			continue
		}
		var c types.CIDR
		if err := json.Unmarshal(reg.Value, &c); err != nil {
			continue
		}
		if !c.Admin {
			continue
		}
		sawAdmin = true
		if c.AdminID == actor {
			return nil
		}
	}
	if !sawAdmin {
		return nil
	}
	return ErrNotAuthorized
}
