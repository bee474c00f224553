package reconciler

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/formthefog/formation-sub001/pkg/types"
)

// reconcileDNSWellFormedness enforces spec.md §3.3's DNS well-formedness
// invariant: every fqdn either resolves to at least one IP belonging to
// a live Instance or Node record, or its verification_status is Pending.
// A record that loses its last live backing IP (the instance stopped,
// the node went away, ownership moved) is downgraded to Pending rather
// than left serving a dangling answer.
func (r *Reconciler) reconcileDNSWellFormedness() error {
	dnsRegs, err := r.store.ListRegisters(types.EntityDNSRecord)
	if err != nil {
		return fmt.Errorf("list dns records: %w", err)
	}
	instanceRegs, err := r.store.ListRegisters(types.EntityInstance)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}
	nodeRegs, err := r.store.ListRegisters(types.EntityNode)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	liveIPs := make(map[string]bool)
	for _, reg := range instanceRegs {
		if reg.Tombstone {
			continue
		}
		var inst types.Instance
		if err := json.Unmarshal(reg.Value, &inst); err != nil {
			continue
		}
		if inst.Status == types.InstanceStarted && inst.FormnetIP != nil {
			liveIPs[inst.FormnetIP.String()] = true
		}
	}
	for _, reg := range nodeRegs {
		if reg.Tombstone {
			continue
		}
		var node types.Node
		if err := json.Unmarshal(reg.Value, &node); err != nil {
			continue
		}
		if host := hostOf(node.PublicEndpoint); host != "" {
			liveIPs[host] = true
		}
	}

	for fqdn, reg := range dnsRegs {
		if reg.Tombstone {
			continue
		}
		var rec types.DNSRecord
		if err := json.Unmarshal(reg.Value, &rec); err != nil {
			r.logger.Warn().Err(err).Str("fqdn", fqdn).Msg("skipping malformed dns record")
			continue
		}
		if rec.VerificationStatus == types.VerificationPending {
			continue // already the safe state; nothing to repair
		}
		if hasLiveTarget(rec.Targets, liveIPs) {
			continue
		}

		rec.VerificationStatus = types.VerificationPending
		value, err := json.Marshal(rec)
		if err != nil {
			r.logger.Error().Err(err).Str("fqdn", fqdn).Msg("failed to encode corrected dns record")
			continue
		}
		if err := r.writeBack(types.EntityDNSRecord, fqdn, value, "dns_no_live_target"); err != nil {
			r.logger.Error().Err(err).Str("fqdn", fqdn).Msg("failed to downgrade dns record to pending")
		}
	}

	return nil
}

func hasLiveTarget(targets []types.DNSTarget, liveIPs map[string]bool) bool {
	for _, t := range targets {
		if t.IP != nil && liveIPs[t.IP.String()] {
			return true
		}
	}
	return false
}

// hostOf extracts the host portion of a "host:port" endpoint, or returns
// the whole string if it carries no port.
func hostOf(endpoint string) string {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint
	}
	return host
}
