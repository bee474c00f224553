package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/formthefog/formation-sub001/pkg/config"
	"github.com/formthefog/formation-sub001/pkg/flog"
	"github.com/formthefog/formation-sub001/pkg/georesolver"
	"github.com/formthefog/formation-sub001/pkg/node"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a Formation node (RS + OL + GR + API + DNS)",
	Long: `serve brings up every Formation subsystem in one process: the
replicated store, the operation log's fan-out and bootstrap, the
GeoDNS resolver and its UDP/TCP listener, the reconciler and health
probers, and the HTTP control-plane API, then blocks until an
interrupt or termination signal is received.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to formation.yaml (defaults merge with env overrides when omitted)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %v", err)
	}

	logger := flog.WithComponent("formation")
	logger.Info().
		Str("listen", cfg.ListenAddr).
		Str("peer_listen", cfg.PeerListenAddr).
		Str("dns", cfg.DNSAddr).
		Str("data_dir", cfg.DataDir).
		Int("peers", len(cfg.Peers)).
		Msg("starting Formation node")

	n, err := node.New(node.Config{
		ListenAddr:         cfg.ListenAddr,
		PeerListenAddr:     cfg.PeerListenAddr,
		HealthAddr:         cfg.HealthAddr,
		DNSAddr:            cfg.DNSAddr,
		Peers:              cfg.Peers,
		DataDir:            cfg.DataDir,
		OperatorKeyPath:    cfg.OperatorKeyPath,
		OperatorPassphrase: cfg.OperatorPassphrase,
		GeoDatabase:        cfg.GeoDatabase,
		DNSZones:           cfg.DNSZones,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		OpLogRetention:     cfg.OpLogRetention,
		DistanceWeighting:  georesolver.Weighting(cfg.DistanceWeighting),
		HealthCheckPort:    cfg.HealthCheckPort,
		ReconcileInterval:  cfg.ReconcileInterval,
	})
	if err != nil {
		return fmt.Errorf("construct node: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %v", err)
	}
	logger.Info().Str("address", n.Address().String()).Msg("node running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := n.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown node: %v", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
