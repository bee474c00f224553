package health

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/identity"
	"github.com/formthefog/formation-sub001/pkg/rs"
	"github.com/formthefog/formation-sub001/pkg/types"
)

func flogNop() zerolog.Logger { return zerolog.Nop() }

type fakeRSWriter struct {
	record  types.DNSRecord
	applied []rs.SignedOp
}

func (f *fakeRSWriter) Read(kind types.EntityKind, key string) (json.RawMessage, bool, error) {
	if kind != types.EntityDNSRecord || key != f.record.FQDN {
		return nil, false, nil
	}
	raw, err := json.Marshal(f.record)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (f *fakeRSWriter) ApplyLocal(op rs.SignedOp) (rs.Delta, error) {
	f.applied = append(f.applied, op)
	var updated types.DNSRecord
	if err := json.Unmarshal(op.Value, &updated); err != nil {
		return rs.Delta{}, err
	}
	f.record = updated
	return rs.Delta{}, nil
}

// alwaysUnhealthy is a Checker stub that always reports unhealthy, for
// exercising the downward health-state transition deterministically.
type alwaysUnhealthy struct{}

func (alwaysUnhealthy) Check(ctx context.Context) Result {
	return Result{Healthy: false, Message: "forced unhealthy", CheckedAt: time.Now()}
}
func (alwaysUnhealthy) Type() CheckType { return CheckTypeTCP }

func TestProberWritesHealthTransitionToRS(t *testing.T) {
	ip := net.ParseIP("203.0.113.10")
	store := &fakeRSWriter{record: types.DNSRecord{
		FQDN:    "app.example.com",
		Targets: []types.DNSTarget{{IP: ip, Health: types.HealthHealthy}},
	}}
	key, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	p := NewProber(store, key, "app.example.com", ip, alwaysUnhealthy{}, Config{Retries: 1})
	logger := flogNop()
	p.tick(context.Background(), logger)

	if len(store.applied) != 1 {
		t.Fatalf("ApplyLocal called %d times, want 1", len(store.applied))
	}
	if store.record.Targets[0].Health != types.HealthUnhealthy {
		t.Fatalf("target health = %s, want Unhealthy", store.record.Targets[0].Health)
	}
	if store.applied[0].Actor != key.Address {
		t.Fatalf("ApplyLocal actor = %v, want signer's address %v", store.applied[0].Actor, key.Address)
	}
}

func TestProberDoesNotWriteWithoutTransition(t *testing.T) {
	ip := net.ParseIP("203.0.113.10")
	store := &fakeRSWriter{record: types.DNSRecord{
		FQDN:    "app.example.com",
		Targets: []types.DNSTarget{{IP: ip, Health: types.HealthHealthy}},
	}}
	key, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	healthyChecker := checkerFunc(func(ctx context.Context) Result {
		return Result{Healthy: true, Message: "ok", CheckedAt: time.Now()}
	})
	p := NewProber(store, key, "app.example.com", ip, healthyChecker, Config{Retries: 3})
	p.tick(context.Background(), flogNop())

	if len(store.applied) != 0 {
		t.Fatalf("ApplyLocal called %d times, want 0 (status stayed healthy)", len(store.applied))
	}
}

func TestProberRespectsRetriesBeforeTransition(t *testing.T) {
	ip := net.ParseIP("203.0.113.10")
	store := &fakeRSWriter{record: types.DNSRecord{
		FQDN:    "app.example.com",
		Targets: []types.DNSTarget{{IP: ip, Health: types.HealthHealthy}},
	}}
	key, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	p := NewProber(store, key, "app.example.com", ip, alwaysUnhealthy{}, Config{Retries: 2})
	p.tick(context.Background(), flogNop())
	if len(store.applied) != 0 {
		t.Fatalf("ApplyLocal called after 1 failure with Retries=2, want 0 calls")
	}
	p.tick(context.Background(), flogNop())
	if len(store.applied) != 1 {
		t.Fatalf("ApplyLocal called %d times after 2nd failure, want 1", len(store.applied))
	}
}

type checkerFunc func(ctx context.Context) Result

func (f checkerFunc) Check(ctx context.Context) Result { return f(ctx) }
func (f checkerFunc) Type() CheckType                  { return CheckTypeHTTP }
