package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/internal/telemetry"
	"github.com/dcwire/aircore/pkg/api"
	"github.com/dcwire/aircore/pkg/config"
	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/core"
)

var (
	startForeground bool
	startPidFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the aircore host",
	Long: `Start the aircore host with the specified configuration.

By default, the host runs in the foreground. Use --pid-file when running
under a supervisor that wants a PID to track.

Examples:
  # Start with default config location
  aircored start

  # Start with custom config file
  aircored start --config /etc/aircore/config.yaml

  # Start with environment variable overrides
  AIRCORE_LOGGING_LEVEL=DEBUG aircored start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&startForeground, "foreground", "f", true, "Run in foreground")
	startCmd.Flags().StringVar(&startPidFile, "pid-file", "", "Path to PID file (default: none)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profilingShutdown, err := telemetry.InitProfiling(cfg.Profiling, "aircored", Version)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()
	if telemetry.IsProfilingEnabled() {
		logger.Info("profiling enabled", "server", cfg.Profiling.Server)
	}

	logger.Info("aircore host starting", "nick", cfg.Identity.Nick, "cid", cfg.Identity.CID)

	st := core.New()
	// Peer transfer sockets are out of this module's scope (see
	// pkg/connmgr's package doc); aircored drives the content index,
	// queue, upload manager and hub registry against the fake in-memory
	// connection manager until a transport-owning host wires a real one
	// through this same core.State.Initialize signature.
	connMgr := connmgr.NewFake()
	if err := st.Initialize(ctx, cfg, connMgr); err != nil {
		return fmt.Errorf("failed to initialize core: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := st.Shutdown(shutdownCtx); err != nil {
			logger.Error("core shutdown error", logger.Err(err))
		}
	}()

	if startPidFile != "" {
		if err := os.WriteFile(startPidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(startPidFile) }()
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.NewServer(cfg.API, st)
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		go func() {
			if err := apiServer.ListenAndServe(ctx); err != nil {
				logger.Error("api server error", logger.Err(err))
			}
		}()
		logger.Info("api server enabled", "listen", cfg.API.Listen)
	} else {
		logger.Info("api server disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("aircore host is running. Press Ctrl+C to stop.")
	<-sigChan
	signal.Stop(sigChan)
	logger.Info("shutdown signal received, initiating graceful shutdown")
	cancel()

	return nil
}
