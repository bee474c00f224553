package reconciler

import (
	"encoding/json"
	"fmt"

	"github.com/formthefog/formation-sub001/pkg/types"
)

// reconcileOwnership enforces spec.md §3.3's "ownership <-> authorization
// coherence" invariant: an Instance's owner_address must appear in that
// account's owned_instance_ids, and vice versa. Accounts and Instances
// are independent CRDT entries joined only by this idempotent pass
// (spec.md's "cyclic and cross-entity references" note) rather than by
// any pointer the storage layer enforces.
func (r *Reconciler) reconcileOwnership() error {
	instanceRegs, err := r.store.ListRegisters(types.EntityInstance)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}
	accountRegs, err := r.store.ListRegisters(types.EntityAccount)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	instances := make(map[string]types.Instance, len(instanceRegs))
	for id, reg := range instanceRegs {
		if reg.Tombstone {
			continue
		}
		var inst types.Instance
		if err := json.Unmarshal(reg.Value, &inst); err != nil {
			r.logger.Warn().Err(err).Str("instance_id", id).Msg("skipping malformed instance register")
			continue
		}
		instances[id] = inst
	}

	accounts := make(map[string]types.Account, len(accountRegs))
	for addr, reg := range accountRegs {
		if reg.Tombstone {
			continue
		}
		var acc types.Account
		if err := json.Unmarshal(reg.Value, &acc); err != nil {
			r.logger.Warn().Err(err).Str("account", addr).Msg("skipping malformed account register")
			continue
		}
		accounts[addr] = acc
	}

	// Instance -> Account direction: every live instance's owner must
	// list it. Repair by adding the missing ID to the owner's account.
	for instanceID, inst := range instances {
		ownerKey := inst.OwnerAddress.String()
		acc, ok := accounts[ownerKey]
		if !ok {
			continue // the owner's account hasn't replicated here yet; retry next cycle
		}
		if containsString(acc.OwnedInstanceIDs, instanceID) {
			continue
		}
		acc.OwnedInstanceIDs = append(acc.OwnedInstanceIDs, instanceID)
		if err := r.applyAccount(ownerKey, acc, "instance_owner_mirror"); err != nil {
			r.logger.Error().Err(err).Str("account", ownerKey).Str("instance_id", instanceID).Msg("failed to add instance to account's owned list")
			continue
		}
		accounts[ownerKey] = acc
	}

	// Account -> Instance direction: every ID an account claims to own
	// must exist and still be owned by that account. Repair by dropping
	// stale IDs (the instance was transferred, deleted, or never existed).
	for addr, acc := range accounts {
		var kept []string
		changed := false
		for _, instanceID := range acc.OwnedInstanceIDs {
			inst, exists := instances[instanceID]
			if exists && inst.OwnerAddress.String() == addr {
				kept = append(kept, instanceID)
				continue
			}
			changed = true
		}
		if !changed {
			continue
		}
		acc.OwnedInstanceIDs = kept
		if err := r.applyAccount(addr, acc, "stale_owned_instance"); err != nil {
			r.logger.Error().Err(err).Str("account", addr).Msg("failed to drop stale owned instance ids")
		}
	}

	return nil
}

func (r *Reconciler) applyAccount(addr string, acc types.Account, reason string) error {
	value, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", addr, err)
	}
	return r.writeBack(types.EntityAccount, addr, value, reason)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
