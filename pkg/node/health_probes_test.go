package node

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/identity"
	"github.com/formthefog/formation-sub001/pkg/rs"
	"github.com/formthefog/formation-sub001/pkg/types"
)

type noopRSWriter struct{}

func (noopRSWriter) Read(kind types.EntityKind, key string) (json.RawMessage, bool, error) {
	return nil, false, nil
}

func (noopRSWriter) ApplyLocal(op rs.SignedOp) (rs.Delta, error) { return rs.Delta{}, nil }

func newTestSupervisor(t *testing.T) *probeSupervisor {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	return newProbeSupervisor(noopRSWriter{}, kp, 80, 0, zerolog.Nop())
}

func TestReconcileStartsOneProberPerTarget(t *testing.T) {
	p := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	records := []types.DNSRecord{{
		FQDN: "app.example.com",
		Targets: []types.DNSTarget{
			{IP: net.ParseIP("10.0.0.1")},
			{IP: net.ParseIP("10.0.0.2")},
		},
	}}

	p.reconcile(ctx, func() ([]types.DNSRecord, error) { return records, nil })

	if len(p.running) != 2 {
		t.Fatalf("running probes = %d, want 2", len(p.running))
	}
}

func TestReconcileRetiresDroppedTargets(t *testing.T) {
	p := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := []types.DNSRecord{{
		FQDN:    "app.example.com",
		Targets: []types.DNSTarget{{IP: net.ParseIP("10.0.0.1")}, {IP: net.ParseIP("10.0.0.2")}},
	}}
	p.reconcile(ctx, func() ([]types.DNSRecord, error) { return first, nil })

	key := probeKey("app.example.com", net.ParseIP("10.0.0.2"))
	if _, ok := p.running[key]; !ok {
		t.Fatal("expected a probe for 10.0.0.2 after first reconcile")
	}

	second := []types.DNSRecord{{
		FQDN:    "app.example.com",
		Targets: []types.DNSTarget{{IP: net.ParseIP("10.0.0.1")}},
	}}
	p.reconcile(ctx, func() ([]types.DNSRecord, error) { return second, nil })

	if _, ok := p.running[key]; ok {
		t.Fatal("expected the dropped target's probe to be retired")
	}
	if len(p.running) != 1 {
		t.Fatalf("running probes = %d, want 1", len(p.running))
	}
}

func TestReconcileIsIdempotentForUnchangedTargets(t *testing.T) {
	p := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	records := []types.DNSRecord{{
		FQDN:    "app.example.com",
		Targets: []types.DNSTarget{{IP: net.ParseIP("10.0.0.1")}},
	}}
	p.reconcile(ctx, func() ([]types.DNSRecord, error) { return records, nil })
	key := probeKey("app.example.com", net.ParseIP("10.0.0.1"))
	if _, ok := p.running[key]; !ok {
		t.Fatal("expected the target's probe to be running")
	}

	p.reconcile(ctx, func() ([]types.DNSRecord, error) { return records, nil })

	if len(p.running) != 1 {
		t.Fatalf("running probes after a repeat reconcile = %d, want 1 (idempotent)", len(p.running))
	}
}

func TestStopAllCancelsEveryRunningProbe(t *testing.T) {
	p := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	records := []types.DNSRecord{{
		FQDN:    "app.example.com",
		Targets: []types.DNSTarget{{IP: net.ParseIP("10.0.0.1")}},
	}}
	p.reconcile(ctx, func() ([]types.DNSRecord, error) { return records, nil })

	p.stopAll()

	if len(p.running) != 0 {
		t.Fatalf("running probes after stopAll = %d, want 0", len(p.running))
	}
}
