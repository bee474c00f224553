package reconciler

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/events"
	"github.com/formthefog/formation-sub001/pkg/flog"
	"github.com/formthefog/formation-sub001/pkg/identity"
	"github.com/formthefog/formation-sub001/pkg/metrics"
	"github.com/formthefog/formation-sub001/pkg/rs"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// DefaultInterval is the time between reconciliation cycles.
const DefaultInterval = 10 * time.Second

// ListStore lets the reconciler walk every live register of a kind
// without going through RS's per-key Read.
type ListStore interface {
	ListRegisters(kind types.EntityKind) (map[string]types.Register, error)
}

// Store is the subset of *rs.Store the reconciler needs: enumerate
// entities, then post corrective writes exactly like any other
// authenticated client, signed under the reconciler's own node identity
// (spec.md §3.3: "reconciler ops are signed by the local node key").
type Store interface {
	ListStore
	Read(kind types.EntityKind, key string) (json.RawMessage, bool, error)
	ApplyLocal(op rs.SignedOp) (rs.Delta, error)
}

// Reconciler is the periodic idempotent pass that maintains the two
// cross-entity invariants spec.md §3.3 names: Account<->Instance
// ownership mirroring, and DNS well-formedness.
type Reconciler struct {
	store    Store
	signer   *identity.KeyPair
	broker   *events.Broker
	logger   zerolog.Logger
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Reconciler that signs its corrective writes as signer
// (a node address the Replicated Store's ACL must trust via
// rs.DefaultAuthorizer.Reconcilers).
func New(store Store, signer *identity.KeyPair, broker *events.Broker, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		store:    store,
		signer:   signer,
		broker:   broker,
		logger:   flog.WithComponent("reconciler"),
		interval: interval,
	}
}

// Start begins the reconciliation loop in a background goroutine.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh != nil {
		return
	}
	r.stopCh = make(chan struct{})
	r.wg.Add(1)
	go r.run()
}

// Stop halts the reconciliation loop and waits for the current cycle
// (if any) to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	stopCh := r.stopCh
	r.stopCh = nil
	r.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	r.wg.Wait()
}

func (r *Reconciler) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// reconcile runs one pass of every invariant check. Each check is
// independent and a failure in one does not block the others.
func (r *Reconciler) reconcile() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	if err := r.reconcileOwnership(); err != nil {
		r.logger.Error().Err(err).Msg("ownership reconciliation failed")
	}
	if err := r.reconcileDNSWellFormedness(); err != nil {
		r.logger.Error().Err(err).Msg("dns well-formedness reconciliation failed")
	}
}

// writeBack signs value under the reconciler's own identity and applies
// it through Store.ApplyLocal, recording the repair in both metrics and
// the event broker.
func (r *Reconciler) writeBack(kind types.EntityKind, key string, value []byte, reason string) error {
	actor := r.signer.Address
	hash := identity.CanonicalRegisterHash(string(kind), key, value, actor)
	sig, err := r.signer.Sign(hash)
	if err != nil {
		return fmt.Errorf("sign corrective op for %s/%s: %w", kind, key, err)
	}
	if _, err := r.store.ApplyLocal(rs.SignedOp{Kind: kind, Key: key, Value: value, Actor: actor, Sig: sig}); err != nil {
		return fmt.Errorf("apply corrective op for %s/%s: %w", kind, key, err)
	}

	metrics.ReconciliationRepairsTotal.WithLabelValues(reason).Inc()
	r.logger.Info().Str("kind", string(kind)).Str("key", key).Str("reason", reason).Msg("reconciler repaired divergence")
	if r.broker != nil {
		r.broker.Publish(&events.Event{
			Type:     events.EventReconcileRepair,
			Message:  fmt.Sprintf("repaired %s/%s: %s", kind, key, reason),
			Metadata: map[string]string{"kind": string(kind), "key": key, "reason": reason},
		})
	}
	return nil
}
