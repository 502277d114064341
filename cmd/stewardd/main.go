package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steward-sh/steward/pkg/config"
	"github.com/steward-sh/steward/pkg/controller"
	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/external"
	"github.com/steward-sh/steward/pkg/health"
	"github.com/steward-sh/steward/pkg/launcher"
	"github.com/steward-sh/steward/pkg/lifecycle"
	"github.com/steward-sh/steward/pkg/log"
	"github.com/steward-sh/steward/pkg/matcher"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/planner"
	"github.com/steward-sh/steward/pkg/queue"
	"github.com/steward-sh/steward/pkg/registry"
	"github.com/steward-sh/steward/pkg/store"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
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
	Use:     "stewardd",
	Short:   "steward - two-level container-workload orchestrator core",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"stewardd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("node-id", "node-1", "Unique node ID, used for leader election")
	runCmd.Flags().String("bind-addr", "127.0.0.1:7946", "Address for leader-election (Raft) communication")
	runCmd.Flags().String("data-dir", "./steward-data", "Data directory for instance state and leader-election logs")
	runCmd.Flags().String("store", "bolt", "Instance store backend: bolt or memory")
	runCmd.Flags().String("resource-manager-addr", "", "gRPC address of the external resource manager; empty runs against an in-process fake")
	runCmd.Flags().String("artifacts-dir", "./steward-data/artifacts", "Destination directory for resolved deployment artifacts")
	runCmd.Flags().String("config", "", "Path to a YAML configuration file (defaults applied when empty)")
	runCmd.Flags().StringSlice("accepted-roles", []string{"*"}, "Offer resource roles this cluster's specs may consume")
	runCmd.Flags().String("env-prefix", "STEWARD_", "Prefix applied to automatically-generated environment variables")
	runCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	runCmd.Flags().Bool("log-json", false, "Emit logs as JSON instead of the human-readable console writer")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestrator core as a long-lived daemon",
	Long: `Run starts every actor of the deployment/runtime-reconciliation core in
this process: the instance tracker, launch queue, health and readiness
engine, lifecycle sweeper, launcher and the deployment planner/executor,
wired against an external resource manager over gRPC (or an in-process
fake when --resource-manager-addr is empty).`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	nodeID, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	storeKind, _ := cmd.Flags().GetString("store")
	resourceManagerAddr, _ := cmd.Flags().GetString("resource-manager-addr")
	artifactsDir, _ := cmd.Flags().GetString("artifacts-dir")
	configPath, _ := cmd.Flags().GetString("config")
	acceptedRoles, _ := cmd.Flags().GetStringSlice("accepted-roles")
	envPrefix, _ := cmd.Flags().GetString("env-prefix")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON, Output: os.Stderr})

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if !cmd.Flags().Changed("accepted-roles") && len(cfg.DefaultAcceptedResourceRoles) > 0 {
		acceptedRoles = cfg.DefaultAcceptedResourceRoles
	}
	if !cmd.Flags().Changed("env-prefix") && cfg.EnvVarsPrefix != nil {
		envPrefix = *cfg.EnvVarsPrefix
	}

	repo, err := openStore(storeKind, dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	tr := tracker.New(repo, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tr.Start(ctx); err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}
	defer tr.Stop()

	q := queue.New()

	var reg *registry.Registry
	lookup := func(p pathid.Path) (*types.RunSpec, bool) {
		if reg == nil {
			return nil, false
		}
		return reg.Lookup(p)
	}

	elector, err := external.NewRaftElector(external.RaftElectorConfig{
		NodeID:   nodeID,
		BindAddr: bindAddr,
		DataDir:  dataDir,
	})
	if err != nil {
		return fmt.Errorf("start leader elector: %w", err)
	}
	defer elector.Shutdown()

	rm, err := resolveResourceManager(resourceManagerAddr)
	if err != nil {
		return fmt.Errorf("connect resource manager: %w", err)
	}
	kill := external.NewKillService(rm, broker)

	h := health.NewEngine(tr, broker, lookup)
	h.Start(ctx)
	defer h.Stop()

	lc := lifecycle.NewController(lifecycle.Config{
		ExpungeInitialDelay: cfg.TaskLostExpungeInitialDelay,
		ExpungeInterval:     cfg.TaskLostExpungeInterval,
	}, tr)
	lc.Start(ctx)
	defer lc.Stop()

	m := matcher.New(envPrefix)
	ln := launcher.New(tr, q, rm, m, lookup, acceptedRoles)

	resolver := controller.NewArtifactResolver(artifactsDir)

	executor := planner.NewExecutor(planner.Collaborators{
		Tracker:   tr,
		Queue:     q,
		Health:    h,
		Kill:      kill,
		Broker:    broker,
		Lookup:    lookup,
		Artifacts: resolver,
	})
	reg = registry.New(executor)

	errCh := make(chan error, 1)
	go func() {
		if err := ln.Start(ctx); err != nil {
			errCh <- fmt.Errorf("launcher: %w", err)
		}
	}()
	defer ln.Stop()

	fmt.Fprintf(os.Stderr, "stewardd running: node=%s store=%s data-dir=%s\n", nodeID, storeKind, dataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Fprintln(os.Stderr, "stewardd: received shutdown signal")
	case <-elector.LeadershipLost():
		fmt.Fprintln(os.Stderr, "stewardd: lost leadership")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "stewardd: %v\n", err)
	}

	return nil
}

func openStore(kind, dataDir string) (store.Repository, error) {
	switch kind {
	case "memory":
		return store.NewMemoryStore(), nil
	case "bolt", "":
		return store.NewBoltStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}

func resolveResourceManager(addr string) (external.ResourceManager, error) {
	if addr == "" {
		return external.NewFakeResourceManager(), nil
	}
	conn, err := external.Dial(addr)
	if err != nil {
		return nil, err
	}
	return external.NewGRPCResourceManager(conn), nil
}
