package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maruhq/maru/internal/config"
	"github.com/maruhq/maru/pkg/agent"
	"github.com/maruhq/maru/pkg/api"
	"github.com/maruhq/maru/pkg/client"
	"github.com/maruhq/maru/pkg/events"
	"github.com/maruhq/maru/pkg/log"
	"github.com/maruhq/maru/pkg/manager"
	"github.com/maruhq/maru/pkg/reconciler"
	"github.com/maruhq/maru/pkg/runtime"
	"github.com/maruhq/maru/pkg/scheduler"
	"github.com/maruhq/maru/pkg/store"
	"github.com/maruhq/maru/pkg/types"
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
	Use:   "maru",
	Short: "Maru - a lightweight container orchestrator",
	Long: `Maru is a small single-master container orchestrator: declare
deployments of container images and the control plane keeps the declared
replica counts running across registered worker nodes.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Maru version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control plane",
	Long: `Start the master: the API server, the reconciler, and the node
liveness sweep. State is held in memory; agents re-register and users
re-apply after a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := config.Viper()
		_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
		_ = v.BindPFlag("server.strategy", cmd.Flags().Lookup("scheduler"))
		_ = v.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))

		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		initLogging(cfg)

		strategy, err := scheduler.ParseStrategy(cfg.Server.Strategy)
		if err != nil {
			return err
		}

		st := store.New()
		broker := events.NewBroker()
		broker.Start()
		go logEvents(broker)

		mgr := manager.NewManager(st, broker, manager.Config{
			HeartbeatTimeout: cfg.Controller.HeartbeatTimeout,
			EvictionTimeout:  cfg.Controller.EvictionTimeout,
			SweepInterval:    cfg.Controller.ReconcileInterval,
		})
		mgr.Start()

		collector := manager.NewMetricsCollector(mgr)
		collector.Start()

		recon := reconciler.NewReconciler(st, strategy, broker, cfg.Controller.ReconcileInterval)
		recon.Start()

		apiServer := api.NewServer(mgr)
		errCh := make(chan error, 1)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			if err := apiServer.Start(addr); err != nil {
				errCh <- err
			}
		}()

		log.Logger.Info().
			Int("port", cfg.Server.Port).
			Str("strategy", strategy.Name()).
			Msg("control plane started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down")
		case err := <-errCh:
			log.Errorf("API server error", err)
		}

		recon.Stop()
		collector.Stop()
		mgr.Stop()
		broker.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown API server: %w", err)
		}
		log.Info("shutdown complete")
		return nil
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Start a worker agent",
	Long: `Start the worker agent: register this host with the master, send
heartbeats, and run containers for the pods bound to this node.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := config.Viper()
		_ = v.BindPFlag("agent.name", cmd.Flags().Lookup("name"))
		_ = v.BindPFlag("agent.master", cmd.Flags().Lookup("master"))
		_ = v.BindPFlag("agent.port", cmd.Flags().Lookup("port"))
		_ = v.BindPFlag("agent.address", cmd.Flags().Lookup("address"))
		_ = v.BindPFlag("agent.cpu_millis", cmd.Flags().Lookup("cpu"))
		_ = v.BindPFlag("agent.memory_mb", cmd.Flags().Lookup("memory"))
		_ = v.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))

		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		initLogging(cfg)

		if cfg.Agent.Name == "" {
			return fmt.Errorf("--name is required")
		}

		address := cfg.Agent.Address
		if address == "" {
			hostname, err := os.Hostname()
			if err != nil {
				address = "localhost"
			} else {
				address = hostname
			}
		}

		rt, err := runtime.NewDockerRuntime()
		if err != nil {
			return fmt.Errorf("initialize container runtime (is the Docker daemon running?): %w", err)
		}
		defer rt.Close()

		a := agent.New(agent.Config{
			NodeName: cfg.Agent.Name,
			Address:  address,
			Port:     cfg.Agent.Port,
			Capacity: types.Resources{
				CPUMillis: cfg.Agent.CPUMillis,
				MemoryMB:  cfg.Agent.MemoryMB,
			},
			HeartbeatInterval: cfg.Agent.HeartbeatInterval,
			SyncInterval:      cfg.Agent.SyncInterval,
		}, client.NewClient(cfg.Agent.Master), rt)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Logger.Info().Str("node", cfg.Agent.Name).Str("master", cfg.Agent.Master).Msg("agent starting")
		if err := a.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		log.Info("agent stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "API listen port")
	serveCmd.Flags().String("scheduler", "first-fit", "Scheduling strategy (first-fit, best-fit, least-allocated, balanced)")
	serveCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")

	agentCmd.Flags().String("name", "", "Unique node name")
	agentCmd.Flags().String("master", "http://localhost:8080", "Master API URL")
	agentCmd.Flags().Int("port", 8081, "Port advertised to the master")
	agentCmd.Flags().String("address", "", "Address advertised to the master (defaults to hostname)")
	agentCmd.Flags().Uint64("cpu", 4000, "CPU capacity in millicores")
	agentCmd.Flags().Uint64("memory", 8192, "Memory capacity in MB")
	agentCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = agentCmd.MarkFlagRequired("name")
}

func initLogging(cfg *config.Config) {
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.Format == "json",
	})
}

// logEvents consumes the broker and mirrors cluster events into the log.
func logEvents(broker *events.Broker) {
	sub := broker.Subscribe()
	logger := log.WithComponent("events")
	for event := range sub {
		logger.Info().
			Str("type", string(event.Type)).
			Fields(map[string]any{"meta": event.Metadata}).
			Msg(event.Message)
	}
}
