package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stormstack/control-plane/pkg/api"
	"github.com/stormstack/control-plane/pkg/authbroker"
	"github.com/stormstack/control-plane/pkg/autoscaler"
	"github.com/stormstack/control-plane/pkg/clusterview"
	"github.com/stormstack/control-plane/pkg/config"
	"github.com/stormstack/control-plane/pkg/distributor"
	"github.com/stormstack/control-plane/pkg/engineclient"
	"github.com/stormstack/control-plane/pkg/events"
	"github.com/stormstack/control-plane/pkg/log"
	"github.com/stormstack/control-plane/pkg/matches"
	"github.com/stormstack/control-plane/pkg/modules"
	"github.com/stormstack/control-plane/pkg/nodes"
	"github.com/stormstack/control-plane/pkg/router"
	"github.com/stormstack/control-plane/pkg/scheduler"
	"github.com/stormstack/control-plane/pkg/statestore"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "controlplane",
	Short: "StormStack control plane",
	Long: `The control plane tracks engine nodes and player matches, schedules
new matches onto capacity, distributes game modules to the nodes that need
them, and exposes a JSON admin surface and Prometheus metrics.`,
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"controlplane version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("config", "", "Optional YAML config overlay file")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg := config.Load()
	overlay, err := config.LoadOverlayFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config overlay %q: %w", configPath, err)
	}
	cfg = overlay.Apply(cfg)

	logger := log.WithComponent("bootstrap")

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to build state store: %w", err)
	}
	defer closeStore()

	grace := time.Duration(float64(cfg.NodeTTL) * cfg.NodeGraceFactor)
	nodeRegistry := nodes.NewRegistryWithGrace(store, cfg.NodeTTL, grace)
	matchRegistry := matches.NewRegistry(store)
	moduleRegistry := modules.NewRegistry(store)
	sched := scheduler.NewScheduler(nodeRegistry, matchRegistry)

	dial := func(address string) *engineclient.Client {
		return engineclient.New(address, cfg.EngineConnectTimeout, cfg.EngineReadTimeout)
	}
	dist := distributor.NewDistributor(nodeRegistry, moduleRegistry, dial)

	broker := authbroker.NewBroker(authbroker.Config{
		AuthServiceURL: cfg.AuthServiceURL,
		ClientID:       cfg.ControlPlaneToken,
		ConnectTimeout: cfg.AuthConnectTimeout,
		ReadTimeout:    cfg.AuthReadTimeout,
	})

	rtr := router.New(nodeRegistry, matchRegistry, sched, dist, broker, dial)

	scaler := autoscaler.New(autoscaler.Config{
		Interval:           cfg.AutoscalerInterval,
		ScaleUpThreshold:   cfg.AutoscalerScaleUpThreshold,
		ScaleDownThreshold: cfg.AutoscalerScaleDownThreshold,
		MinNodes:           cfg.AutoscalerMinNodes,
		MaxNodes:           cfg.AutoscalerMaxNodes,
		CooldownSeconds:    int(cfg.AutoscalerCooldown.Seconds()),
	}, nodeRegistry, sched)

	view := clusterview.New(nodeRegistry, matchRegistry, scaler)

	eventBroker := events.NewBroker()
	eventBroker.Start()
	defer eventBroker.Stop()

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	go rtr.RunOrphanSweeper(bgCtx, eventBroker)
	go nodeRegistry.RunGraceSweeper(bgCtx, eventBroker, cfg.NodeSweepInterval)

	scaler.Start(bgCtx)
	defer scaler.Stop()

	limiter := api.NewRateLimiter(50, 100)
	server := api.NewServer(api.Deps{
		Nodes:       nodeRegistry,
		Router:      rtr,
		Modules:     moduleRegistry,
		Distributor: dist,
		View:        view,
		Events:      eventBroker,
	}, limiter)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin HTTP server error: %w", err)
		}
	}()
	logger.Info().Str("addr", cfg.HTTPAddr).Str("storeBackend", cfg.StoreBackend).Msg("control plane started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during HTTP server shutdown")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

// buildStore constructs the configured Shared State Store backend and a
// matching close function.
func buildStore(cfg config.Config) (statestore.Store, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		store := statestore.NewRedisStore(cfg.RedisHosts)
		return store, func() { _ = store.Close() }, nil
	case "bolt":
		store, err := statestore.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "memory", "":
		store := statestore.NewMemoryStore()
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
