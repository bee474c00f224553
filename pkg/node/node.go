// Package node wires the Replicated Store, Operation Log, Geo Resolver,
// identity keystore, health probers, reconciler, and HTTP ingress into one
// running process, adapted from warren's pkg/manager.Manager: the same
// struct-of-subsystems shape and the same construct-in-dependency-order,
// tear-down-in-reverse-order discipline, but wiring Formation's three
// core subsystems (spec.md §2) instead of Raft, containerd, and ingress
// proxying.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/api"
	"github.com/formthefog/formation-sub001/pkg/events"
	"github.com/formthefog/formation-sub001/pkg/flog"
	"github.com/formthefog/formation-sub001/pkg/georesolver"
	"github.com/formthefog/formation-sub001/pkg/identity"
	"github.com/formthefog/formation-sub001/pkg/oplog"
	"github.com/formthefog/formation-sub001/pkg/reconciler"
	"github.com/formthefog/formation-sub001/pkg/rs"
	"github.com/formthefog/formation-sub001/pkg/storage"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// Config holds everything pkg/config's loader populates from spec.md
// §6's option table.
type Config struct {
	ListenAddr         string // HTTP control-plane ingress
	PeerListenAddr     string // binary wire-protocol ingress for OL bootstrap + fan-out
	HealthAddr         string // /health, /ready, /metrics
	DNSAddr            string
	Peers              []string // oplog fan-out targets
	DataDir            string
	OperatorKeyPath    string
	OperatorPassphrase string
	GeoDatabase        string // path to the geo_database CSV; "" disables ranking
	DNSZones           []string
	HeartbeatInterval  time.Duration
	OpLogRetention     time.Duration
	DistanceWeighting  georesolver.Weighting
	HealthCheckPort    int
	ReconcileInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:7880"
	}
	if c.HealthAddr == "" {
		c.HealthAddr = "127.0.0.1:7881"
	}
	if c.PeerListenAddr == "" {
		c.PeerListenAddr = "0.0.0.0:7882"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HealthCheckPort <= 0 {
		c.HealthCheckPort = 80
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = reconciler.DefaultInterval
	}
	if c.DistanceWeighting == "" {
		c.DistanceWeighting = georesolver.WeightingLinear
	}
	if c.OpLogRetention <= 0 {
		c.OpLogRetention = time.Hour
	}
	return c
}

// Node is the process-wide wiring point: the Formation analogue of
// warren's Manager, minus Raft (RS's CRDT clock replaces consensus) and
// minus containerd (there is nothing here to schedule).
type Node struct {
	cfg    Config
	logger zerolog.Logger

	db           *storage.BoltStore
	events       *events.Broker
	log          *oplog.Log
	fanout       *oplog.FanOut
	peerListener *oplog.PeerListener
	store        *rs.Store
	cpStore      controlPlaneStore
	identity     *identity.KeyPair

	geodb      *georesolver.GeoDB
	resolver   *georesolver.Resolver
	dnsServer  *georesolver.Server
	probes     *probeSupervisor
	recon      *reconciler.Reconciler
	apiServer  *api.Server
	healthSrv  *api.HealthServer
	metricsCol *MetricsCollector

	mu            sync.Mutex
	probeCancel   context.CancelFunc
	dnsCancel     context.CancelFunc
	compactCancel context.CancelFunc
	peerCancel    context.CancelFunc
	apiCancel     context.CancelFunc
	healthServer  *http.Server
	wg            sync.WaitGroup

	bootstrapped bool
}

// New constructs every subsystem in the dependency order spec.md §2
// fixes (RS depends on nothing here but storage; OL depends on RS's
// write-ahead hook; GR depends on RS reads; the reconciler and health
// probers depend on RS writes; the API depends on all of it) but starts
// none of them — call Start to bring the node up.
func New(cfg Config) (*Node, error) {
	cfg = cfg.withDefaults()
	logger := flog.WithComponent("node")

	db, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	ks, err := keystoreFor(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	kp, err := ks.OpenOrGenerate(cfg.OperatorKeyPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load operator identity: %w", err)
	}

	broker := events.NewBroker()

	olOpts := []oplog.Option{}
	log := oplog.New(cfg.DataDir, db, broker, olOpts...)

	// Trust this node's own address, and only it, for reconciler and
	// health-prober corrective writes; the peer list holds network
	// addresses, not identities, so no other node's address is added here
	// (spec.md §3.3's "reconciler ops are signed by the local node key").
	authz := rs.DefaultAuthorizer{Reconcilers: map[types.Address]bool{kp.Address: true}}

	store := rs.New(db, broker, kp.Address, rs.WithAuthorizer(authz), rs.WithWriteAheadLog(log))
	cpStore := controlPlaneStore{rs: store, db: db}

	var peers []oplog.Peer
	for _, addr := range cfg.Peers {
		peers = append(peers, oplog.Peer{Addr: addr})
	}
	fanout := oplog.NewFanOut(log, broker, logger, replicatedTopics, peers)

	var geodb *georesolver.GeoDB
	if cfg.GeoDatabase != "" {
		geodb, err = georesolver.LoadGeoDB(cfg.GeoDatabase)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load geo database: %w", err)
		}
	}
	resolver := georesolver.NewResolver(cpStore, geodb, georesolver.Config{
		Zones:     cfg.DNSZones,
		Weighting: cfg.DistanceWeighting,
	})
	dnsServer := georesolver.NewServer(resolver, georesolver.ServerConfig{ListenAddr: cfg.DNSAddr})

	recon := reconciler.New(cpStore, kp, broker, cfg.ReconcileInterval)

	apiServer := api.NewServer(cpStore)

	n := &Node{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		events:     broker,
		log:        log,
		fanout:     fanout,
		store:      store,
		cpStore:    cpStore,
		identity:   kp,
		geodb:      geodb,
		resolver:   resolver,
		dnsServer:  dnsServer,
		recon:      recon,
		apiServer:  apiServer,
		metricsCol: NewMetricsCollector(cpStore, 15*time.Second),
	}
	n.probes = newProbeSupervisor(cpStore, kp, cfg.HealthCheckPort, cfg.HeartbeatInterval, logger)
	n.healthSrv = api.NewHealthServer(n)
	n.peerListener = oplog.NewPeerListener(log, logger, n.snapshotFor, n.applyFanOutRecord)
	return n, nil
}

// replicatedTopics is the closed OL topic set pkg/rs.topicFor writes
// into (spec.md §4.2); the fan-out manager replicates all of them to
// every configured peer.
var replicatedTopics = []string{
	"account-updates",
	"instance-updates",
	"node-updates",
	"dns-updates",
	"cidr-updates",
	"peer-updates",
}

func keystoreFor(cfg Config) (*identity.Keystore, error) {
	if cfg.OperatorPassphrase != "" {
		return identity.NewKeystoreFromPassphrase(cfg.OperatorPassphrase)
	}
	return identity.NewKeystoreFromPassphrase("formation-default-operator-passphrase")
}

// Start brings every subsystem up in dependency order: OL fan-out first
// (so RS's writes have somewhere to replicate to from the moment the
// API accepts them), then the DNS server, then health probes and the
// reconciler, then the control-plane API last (spec.md §2's data-flow
// order runs ingress -> RS -> OL -> peers -> GR, but a listener should
// never accept a write before its downstream plumbing exists).
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events.Start()
	n.fanout.Start(ctx)

	peerCtx, peerCancel := context.WithCancel(ctx)
	n.peerCancel = peerCancel
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.peerListener.Serve(peerCtx, n.cfg.PeerListenAddr); err != nil {
			n.logger.Error().Err(err).Msg("peer listener exited")
		}
	}()

	if len(n.cfg.Peers) == 0 {
		// No peers to catch up against: this node originates the
		// cluster's history, so it is trivially caught up (spec.md
		// §4.2's bootstrap sequence only applies to a joining node).
		n.log.MarkBootstrapComplete()
	} else {
		bootCtx, bootCancel := context.WithTimeout(ctx, 30*time.Second)
		go func() {
			defer bootCancel()
			boot := oplog.NewBootstrapper(n.log, n.events, n.logger, n.applySnapshot, n.applyRecord)
			if err := boot.Run(bootCtx, n.cfg.Peers[0], replicatedTopics); err != nil {
				n.logger.Warn().Err(err).Str("peer", n.cfg.Peers[0]).Msg("bootstrap against peer failed")
			}
		}()
	}

	dnsCtx, dnsCancel := context.WithCancel(ctx)
	n.dnsCancel = dnsCancel
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.dnsServer.Start(dnsCtx); err != nil {
			n.logger.Error().Err(err).Msg("dns server exited")
		}
	}()

	probeCtx, probeCancel := context.WithCancel(ctx)
	n.probes.start(probeCtx, n.reconcileDNSTargets)
	n.probeCancel = probeCancel

	n.recon.Start()
	n.metricsCol.Start()

	compactCtx, compactCancel := context.WithCancel(ctx)
	n.compactCancel = compactCancel
	n.wg.Add(1)
	go n.runCompaction(compactCtx)

	healthHTTP := &http.Server{Addr: n.cfg.HealthAddr, Handler: n.healthSrv.Handler()}
	n.healthServer = healthHTTP
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := healthHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error().Err(err).Msg("health server exited")
		}
	}()

	apiCtx, apiCancel := context.WithCancel(ctx)
	n.apiCancel = apiCancel
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.apiServer.Serve(apiCtx, n.cfg.ListenAddr); err != nil {
			n.logger.Error().Err(err).Msg("api server exited")
		}
	}()

	n.bootstrapped = true
	n.logger.Info().Str("listen", n.cfg.ListenAddr).Str("peer_listen", n.cfg.PeerListenAddr).Str("dns", n.cfg.DNSAddr).Msg("node started")
	return nil
}

// topicKinds reverses pkg/rs's unexported topicFor mapping so the node
// orchestrator can turn a bootstrap snapshot's topic name back into the
// entity kind it holds.
var topicKinds = map[string]types.EntityKind{
	"account-updates":  types.EntityAccount,
	"instance-updates": types.EntityInstance,
	"node-updates":     types.EntityNode,
	"dns-updates":      types.EntityDNSRecord,
	"cidr-updates":     types.EntityCIDR,
	"peer-updates":     types.EntityPeer,
}

// applySnapshot ingests one topic's snapshot chunk during bootstrap
// (spec.md §4.2 step (i)): the payload is a JSON map of entity key to
// its current register, merged in through the same MergeRemote path
// peer fan-out deltas take.
func (n *Node) applySnapshot(topic string, payload []byte) error {
	kind, ok := topicKinds[topic]
	if !ok {
		return fmt.Errorf("snapshot for unknown topic %s", topic)
	}
	var entries map[string]types.Register
	if err := json.Unmarshal(payload, &entries); err != nil {
		return fmt.Errorf("decode snapshot for topic %s: %w", topic, err)
	}
	for key, reg := range entries {
		if err := n.store.MergeRemote(rs.Delta{Kind: kind, Key: key, Register: reg}); err != nil {
			return fmt.Errorf("merge snapshot entry %s/%s: %w", kind, key, err)
		}
	}
	return nil
}

// applyRecord replays one backlog record from a bootstrap peer's catch-up
// stream, or one live record pushed over a peer's fan-out connection
// (spec.md §4.2 step (iv)): both arrive as an oplog.Record carrying the
// entity key its payload was written under, so both unmarshal straight
// into a types.Register and merge through the same MergeRemote path
// applySnapshot uses.
func (n *Node) applyRecord(rec oplog.Record) error {
	kind, ok := topicKinds[rec.Topic]
	if !ok {
		return fmt.Errorf("record on unknown topic %s", rec.Topic)
	}
	var reg types.Register
	if err := json.Unmarshal(rec.Payload, &reg); err != nil {
		return fmt.Errorf("decode record payload for %s/%s: %w", rec.Topic, rec.Key, err)
	}
	if err := n.store.MergeRemote(rs.Delta{Kind: kind, Key: rec.Key, Register: reg}); err != nil {
		return fmt.Errorf("merge record %s/%s: %w", kind, rec.Key, err)
	}
	return nil
}

// applyFanOutRecord adapts oplog.PeerListener's onRecord callback, which
// carries the topic alongside the record, to applyRecord's signature.
func (n *Node) applyFanOutRecord(topic string, rec oplog.Record) error {
	rec.Topic = topic
	return n.applyRecord(rec)
}

// snapshotFor answers a peer's bootstrap snapshot request for topic
// (spec.md §4.2 step 1): every register of topic's entity kind,
// tombstones included, JSON-encoded as a single chunk, alongside the Operation Log watermark
// the snapshot is consistent as of.
func (n *Node) snapshotFor(topic string) ([][]byte, uint64, error) {
	kind, ok := topicKinds[topic]
	if !ok {
		return nil, 0, fmt.Errorf("snapshot requested for unknown topic %s", topic)
	}
	watermark, err := n.log.LatestSeq(topic)
	if err != nil {
		return nil, 0, fmt.Errorf("read watermark for topic %s: %w", topic, err)
	}
	regs, err := n.cpStore.ListRegisters(kind)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s registers: %w", kind, err)
	}
	if len(regs) == 0 {
		return nil, watermark, nil
	}
	chunk, err := json.Marshal(regs)
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s snapshot: %w", kind, err)
	}
	return [][]byte{chunk}, watermark, nil
}

// runCompaction periodically rewrites every topic's segment to drop
// records already covered by its persisted watermark, at OpLogRetention's
// interval (spec.md §6's op_log_retention), the orchestrator-driven
// compaction pass oplog.Log.Compact's doc comment calls for.
func (n *Node) runCompaction(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.OpLogRetention)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, topic := range replicatedTopics {
				if err := n.log.Compact(topic); err != nil {
					n.logger.Warn().Err(err).Str("topic", topic).Msg("oplog compaction failed")
				}
			}
		}
	}
}

// reconcileDNSTargets lists every live dns_record register, letting the
// probe supervisor discover what to probe without pkg/health depending
// on pkg/rs's enumeration surface directly.
func (n *Node) reconcileDNSTargets() ([]types.DNSRecord, error) {
	regs, err := n.cpStore.ListRegisters(types.EntityDNSRecord)
	if err != nil {
		return nil, err
	}
	out := make([]types.DNSRecord, 0, len(regs))
	for _, reg := range regs {
		if reg.Tombstone {
			continue
		}
		var rec types.DNSRecord
		if err := json.Unmarshal(reg.Value, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Shutdown tears every subsystem down in the reverse of Start's layering,
// the same discipline warren's Manager.Shutdown follows: the HTTP API and
// the workers Start brings up after the DNS server (reconciler, metrics
// collector, probes, compaction, health server) stop first, then the DNS
// server, then the OL fan-out and peer listener, then the event broker;
// the Operation Log and storage close last.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.apiCancel != nil {
		n.apiCancel()
	}
	n.recon.Stop()
	n.metricsCol.Stop()
	if n.probeCancel != nil {
		n.probeCancel()
	}
	if n.compactCancel != nil {
		n.compactCancel()
	}
	if n.healthServer != nil {
		_ = n.healthServer.Shutdown(ctx)
	}
	if n.dnsServer != nil {
		_ = n.dnsServer.Stop()
	}
	if n.dnsCancel != nil {
		n.dnsCancel()
	}
	n.fanout.Stop()
	if n.peerCancel != nil {
		n.peerCancel()
	}
	n.events.Stop()
	n.wg.Wait()
	if err := n.log.Close(); err != nil {
		n.logger.Warn().Err(err).Msg("oplog close")
	}
	if err := n.db.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	n.logger.Info().Msg("node stopped")
	return nil
}

// Ready implements api.ReadyChecker: the node is ready once every
// subsystem has been constructed and Start has run past bootstrap, with
// no leader concept the way warren's IsLeader gate requires (spec.md §9:
// "ready here means past bootstrap_complete").
func (n *Node) Ready() (bool, map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	checks := map[string]string{
		"oplog_bootstrap": "complete",
	}
	if !n.log.BootstrapComplete() {
		checks["oplog_bootstrap"] = "catching up"
	}
	if !n.bootstrapped {
		checks["node"] = "starting"
		return false, checks
	}
	checks["node"] = "ready"
	return n.log.BootstrapComplete(), checks
}

// Address returns this node's identity address, used to seed
// rs.DefaultAuthorizer.Reconcilers for peers learning about this node.
func (n *Node) Address() types.Address { return n.identity.Address }
