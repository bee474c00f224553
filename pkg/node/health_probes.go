package node

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/health"
	"github.com/formthefog/formation-sub001/pkg/identity"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// discoverFunc lists the live DNS records a node should be probing.
// Supplied by Node.reconcileDNSTargets so probeSupervisor doesn't need
// to depend on pkg/rs's enumeration surface directly.
type discoverFunc func() ([]types.DNSRecord, error)

// probeSupervisor keeps one health.Prober running per (fqdn, ip) target
// it discovers in RS's dns_record registers, starting new ones and
// retiring stale ones as records change. There is no analogue of this in
// warren (container health checks are per-service, fixed at creation);
// this is grounded directly in spec.md §4.3's health-filtering
// requirement and pkg/health.Prober's own doc comment describing it as
// "the external health-check collaborator."
type probeSupervisor struct {
	store health.RSWriter
	kp    *identity.KeyPair
	port  int
	scan  time.Duration
	log   zerolog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func newProbeSupervisor(store health.RSWriter, kp *identity.KeyPair, port int, scan time.Duration, log zerolog.Logger) *probeSupervisor {
	return &probeSupervisor{
		store:   store,
		kp:      kp,
		port:    port,
		scan:    scan,
		log:     log.With().Str("subsystem", "probe_supervisor").Logger(),
		running: make(map[string]context.CancelFunc),
	}
}

func (p *probeSupervisor) start(ctx context.Context, discover discoverFunc) {
	go p.loop(ctx, discover)
}

func (p *probeSupervisor) loop(ctx context.Context, discover discoverFunc) {
	p.reconcile(ctx, discover)
	ticker := time.NewTicker(p.scan)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.stopAll()
			return
		case <-ticker.C:
			p.reconcile(ctx, discover)
		}
	}
}

func (p *probeSupervisor) reconcile(ctx context.Context, discover discoverFunc) {
	records, err := discover()
	if err != nil {
		p.log.Warn().Err(err).Msg("discover dns targets failed")
		return
	}

	wanted := make(map[string]struct {
		fqdn string
		ip   net.IP
	}, len(records))
	for _, rec := range records {
		for _, target := range rec.Targets {
			if target.IP == nil {
				continue
			}
			wanted[probeKey(rec.FQDN, target.IP)] = struct {
				fqdn string
				ip   net.IP
			}{rec.FQDN, target.IP}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for key, cancel := range p.running {
		if _, ok := wanted[key]; !ok {
			cancel()
			delete(p.running, key)
		}
	}
	for key, w := range wanted {
		if _, ok := p.running[key]; ok {
			continue
		}
		probeCtx, cancel := context.WithCancel(ctx)
		p.running[key] = cancel
		checker := health.NewTCPChecker(fmt.Sprintf("%s:%d", w.ip, p.port))
		prober := health.NewProber(p.store, p.kp, w.fqdn, w.ip, checker, health.DefaultConfig())
		go prober.Run(probeCtx)
	}
}

func (p *probeSupervisor) stopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, cancel := range p.running {
		cancel()
		delete(p.running, key)
	}
}

func probeKey(fqdn string, ip net.IP) string {
	return fqdn + "|" + ip.String()
}
