// Command profiler-analyzer is the standalone frontend analyzer of
// spec.md §6: "run" (default, opens the UI — here, starts the IPC server
// and blocks), "register"/"unregister" (platform-dependent collector
// registration). Flags: "--config-path". Exit codes: 0 normal, 1 generic
// failure, 2 registration failure.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hollowcore/profiler/internal/config"
	"github.com/hollowcore/profiler/internal/ipctransport"
	"github.com/hollowcore/profiler/internal/logging"
	"github.com/hollowcore/profiler/internal/metadatacache"
	"github.com/hollowcore/profiler/internal/registration"
	"github.com/hollowcore/profiler/internal/store"
)

const (
	exitOK                  = 0
	exitGenericFailure      = 1
	exitRegistrationFailure = 2
)

func main() {
	var configPath string

	log := logging.New(nil)

	run := &cobra.Command{
		Use:   "run",
		Short: "start the analyzer and accept collector connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyzer(cmd.Context(), configPath, log)
		},
	}

	root := &cobra.Command{
		Use:   "profiler-analyzer",
		Short: "Call-level profiler frontend analyzer",
		// "run" is the default when no subcommand is given (spec.md §6:
		// "run (default — open UI)").
		RunE: run.RunE,
	}
	root.PersistentFlags().StringVar(&configPath, "config-path", "", "path to the analyzer's TOML configuration file")

	root.AddCommand(run)
	root.AddCommand(&cobra.Command{
		Use:   "register",
		Short: "register this machine's collector with the platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			if err := registration.Register(exe); err != nil {
				log.Err().Err(err).Log("registration failed")
				os.Exit(exitRegistrationFailure)
			}
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "unregister",
		Short: "remove this machine's collector registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := registration.Unregister(); err != nil {
				log.Err().Err(err).Log("unregistration failed")
				os.Exit(exitRegistrationFailure)
			}
			return nil
		},
	})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		log.Err().Err(err).Log("fatal error")
		os.Exit(exitGenericFailure)
	}
	os.Exit(exitOK)
}

func runAnalyzer(ctx context.Context, configPath string, log *logging.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cache := metadatacache.Open(cfg.MetadataCachePath, log)
	defer cache.Close()
	if cache.Degraded() {
		log.Warning().Log("metadata cache running in degraded (non-persistent) mode")
	}

	hierarchy := store.New()

	srv, err := ipctransport.Listen(cfg.Listen, func(id uint32, session ipctransport.Session) {
		log.Info().Log(fmt.Sprintf("collector session %d connected", id))
		_ = session // wired to the protocol codec by the frontend's message loop (I)
	})
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	defer srv.Shutdown()

	log.Info().Log(fmt.Sprintf("analyzer listening on %s", srv.Addr()))
	_ = hierarchy // the store accumulates statistics_update deltas as sessions report them

	<-ctx.Done()
	log.Info().Log("shutting down")
	return nil
}
