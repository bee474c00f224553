package node

import (
	"time"

	"github.com/formthefog/formation-sub001/pkg/metrics"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// registerLister is the subset of controlPlaneStore a MetricsCollector
// needs: list every register of a kind, same surface ListRegisters gives
// pkg/api and pkg/reconciler.
type registerLister interface {
	ListRegisters(kind types.EntityKind) (map[string]types.Register, error)
}

// MetricsCollector periodically counts live (non-tombstoned) RS entities
// by kind and publishes them to metrics.RSEntitiesTotal, the Formation
// equivalent of warren's metrics_collector.go, which counted Raft peers,
// nodes, services, containers, secrets, and volumes — none of which
// Formation has. Ticker-driven polling, same as warren's collector,
// since RS keeps no push-based entity-count signal of its own.
type MetricsCollector struct {
	store    registerLister
	interval time.Duration
	stopCh   chan struct{}
}

// NewMetricsCollector constructs a collector polling store every interval.
func NewMetricsCollector(store registerLister, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MetricsCollector{store: store, interval: interval, stopCh: make(chan struct{})}
}

// Start launches the collection loop, collecting once immediately and
// then on every tick.
func (c *MetricsCollector) Start() {
	c.collect()
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()
}

// Stop halts the collection loop.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

var entityKinds = []types.EntityKind{
	types.EntityAccount,
	types.EntityInstance,
	types.EntityNode,
	types.EntityDNSRecord,
	types.EntityCIDR,
	types.EntityPeer,
}

func (c *MetricsCollector) collect() {
	for _, kind := range entityKinds {
		regs, err := c.store.ListRegisters(kind)
		if err != nil {
			continue
		}
		live := 0
		for _, reg := range regs {
			if !reg.Tombstone {
				live++
			}
		}
		metrics.RSEntitiesTotal.WithLabelValues(string(kind)).Set(float64(live))
	}
}
