package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/flog"
	"github.com/formthefog/formation-sub001/pkg/identity"
	"github.com/formthefog/formation-sub001/pkg/rs"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// RSWriter is the subset of *rs.Store a Prober needs: read the current
// DNSRecord and post a freshly signed replacement. A Prober is the
// external health-check collaborator spec.md documents at the RS
// boundary (spec.md Open Question #3): it writes like any other client,
// through ApplyLocal, under its own node identity.
type RSWriter interface {
	Read(kind types.EntityKind, key string) (json.RawMessage, bool, error)
	ApplyLocal(op rs.SignedOp) (rs.Delta, error)
}

// Prober runs a Checker against one DNS target on an interval, tracks
// hysteresis via Status, and on every health-state transition writes the
// new state back into the Replicated Store as a signed DNSRecord update.
type Prober struct {
	FQDN    string
	IP      net.IP
	Checker Checker
	Config  Config

	store  RSWriter
	signer *identity.KeyPair
	status *Status
}

// NewProber constructs a Prober that authenticates its RS writes as
// signer and targets the DNSRecord at fqdn.
func NewProber(store RSWriter, signer *identity.KeyPair, fqdn string, ip net.IP, checker Checker, config Config) *Prober {
	return &Prober{
		FQDN:    fqdn,
		IP:      ip,
		Checker: checker,
		Config:  config,
		store:   store,
		signer:  signer,
		status:  NewStatus(),
	}
}

// Run executes the check loop until ctx is canceled. It honors
// StartPeriod before the first check and otherwise runs one check per
// Config.Interval.
func (p *Prober) Run(ctx context.Context) {
	logger := flog.WithComponent("health").With().Str("fqdn", p.FQDN).Str("ip", p.IP.String()).Logger()

	if p.Config.StartPeriod > 0 {
		select {
		case <-time.After(p.Config.StartPeriod):
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(p.Config.Interval)
	defer ticker.Stop()

	for {
		p.tick(ctx, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Prober) tick(ctx context.Context, logger zerolog.Logger) {
	checkCtx, cancel := context.WithTimeout(ctx, p.Config.Timeout)
	result := p.Checker.Check(checkCtx)
	cancel()

	before := p.status.Healthy
	p.status.Update(result, p.Config)

	if p.status.Healthy == before {
		return
	}

	state := types.HealthHealthy
	if !p.status.Healthy {
		state = types.HealthUnhealthy
	}

	if err := p.writeState(state); err != nil {
		logger.Warn().Err(err).Msg("failed to record health transition in replicated store")
		return
	}
	logger.Info().Str("state", string(state)).Str("message", result.Message).Msg("health state transition recorded")
}

// writeState reads the current DNSRecord, replaces this prober's target
// entry with the new health state, and posts the update as a signed
// ApplyLocal write under the prober's own node identity.
func (p *Prober) writeState(state types.HealthState) error {
	raw, found, err := p.store.Read(types.EntityDNSRecord, p.FQDN)
	if err != nil {
		return fmt.Errorf("read dns record %s: %w", p.FQDN, err)
	}
	if !found {
		return fmt.Errorf("dns record %s not found", p.FQDN)
	}

	var record types.DNSRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("decode dns record %s: %w", p.FQDN, err)
	}

	updated := false
	for i, t := range record.Targets {
		if t.IP.Equal(p.IP) {
			record.Targets[i].Health = state
			record.Targets[i].UpdatedAt = time.Now()
			updated = true
		}
	}
	if !updated {
		return fmt.Errorf("target %s not present in dns record %s", p.IP, p.FQDN)
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode dns record %s: %w", p.FQDN, err)
	}

	actor := p.signer.Address
	hash := identity.CanonicalRegisterHash(string(types.EntityDNSRecord), p.FQDN, value, actor)
	sig, err := p.signer.Sign(hash)
	if err != nil {
		return fmt.Errorf("sign dns record update: %w", err)
	}

	_, err = p.store.ApplyLocal(rs.SignedOp{
		Kind:  types.EntityDNSRecord,
		Key:   p.FQDN,
		Value: value,
		Actor: actor,
		Sig:   sig,
	})
	return err
}
