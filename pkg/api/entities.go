package api

import (
	"encoding/json"
	"fmt"

	"github.com/formthefog/formation-sub001/pkg/types"
)

// entityKinds is the closed set of URL path segments the ingress routes,
// one per types.EntityKind (spec.md §3.2, §6).
var entityKinds = map[string]types.EntityKind{
	"account":    types.EntityAccount,
	"instance":   types.EntityInstance,
	"node":       types.EntityNode,
	"dns_record": types.EntityDNSRecord,
	"cidr":       types.EntityCIDR,
	"peer":       types.EntityPeer,
}

func parseEntityKind(segment string) (types.EntityKind, bool) {
	kind, ok := entityKinds[segment]
	return kind, ok
}

// entityKey extracts the CRDT key (the field each entity is keyed on in
// RS, per spec.md §3.2) from a create/update/delete request body. The key
// travels inside the signed body rather than the URL, matching §6's route
// list (only :id/get carries a path parameter).
func entityKey(kind types.EntityKind, body []byte) (string, error) {
	var probe struct {
		Address    string `json:"address"`
		InstanceID string `json:"instance_id"`
		NodeID     string `json:"node_id"`
		FQDN       string `json:"fqdn"`
		CIDRID     string `json:"cidr_id"`
		PeerPubKey string `json:"peer_pubkey"`
		ID         string `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", fmt.Errorf("malformed body: %w", err)
	}

	var key string
	switch kind {
	case types.EntityAccount:
		key = probe.Address
	case types.EntityInstance:
		key = probe.InstanceID
	case types.EntityNode:
		key = probe.NodeID
	case types.EntityDNSRecord:
		key = probe.FQDN
	case types.EntityCIDR:
		key = probe.CIDRID
	case types.EntityPeer:
		key = probe.PeerPubKey
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	if key == "" {
		key = probe.ID
	}
	if key == "" {
		return "", fmt.Errorf("body is missing the %s entity's key field", kind)
	}
	return key, nil
}
