package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/helioscrm/agentgate/internal/config"
	"github.com/helioscrm/agentgate/internal/logger"
	"github.com/helioscrm/agentgate/internal/metrics"
	"github.com/helioscrm/agentgate/internal/observability"
	"github.com/helioscrm/agentgate/internal/tracing"
	"github.com/helioscrm/agentgate/pkg/confirm"
	"github.com/helioscrm/agentgate/pkg/dispatch"
	"github.com/helioscrm/agentgate/pkg/policy"
)

var serveContracts string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch service in the foreground",
	Long: `Load the tool contracts, open the invocation store, and keep the
confirmation sweeper and metrics endpoint running until interrupted.
Tool calls execute against a dry-run executor that echoes its
arguments; embedding applications wire their own executor through the
dispatch package instead.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveContracts, "contracts", "", "path to the tool contracts JSON file (required)")
	serveCmd.MarkFlagRequired("contracts")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()

	if err := observability.InitAuditLogger(cfg.Audit.File); err != nil {
		return fmt.Errorf("failed to initialize audit log: %w", err)
	}
	defer observability.GetAuditLogger().Close()

	if err := tracing.InitOpenTelemetry("agentgate"); err != nil {
		log.Warn().Err(err).Msg("OpenTelemetry initialization failed, continuing without tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracing.ShutdownOpenTelemetry(shutdownCtx)
	}()

	reg, err := loadRegistry(serveContracts)
	if err != nil {
		return err
	}
	log.Info().Int("tools", reg.Len()).Msg("Tool contracts loaded")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := policy.NewEngine(cfg.Policy.EngineConfig(), cfg.Policy.Capabilities())
	m := metrics.NewMetrics()

	dispatcher, err := dispatch.New(dispatch.Options{
		Registry:        reg,
		Policy:          engine,
		Store:           store,
		Executor:        &echoExecutor{},
		Metrics:         m,
		ConfirmationTTL: cfg.Confirmation.TTL,
		DefaultTimeout:  cfg.Dispatch.DefaultTimeout,
	})
	if err != nil {
		return err
	}

	workflow, err := confirm.NewWorkflow(confirm.Options{Dispatcher: dispatcher, Metrics: m})
	if err != nil {
		return err
	}

	sweeper, err := confirm.NewSweeper(workflow, cfg.Confirmation.SweepSchedule)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Policy thresholds and capabilities follow the config file.
	watcher, err := config.NewWatcher(config.NewLoader(cfgFile), func(updated *config.Config) {
		engine.SetOverrides(updated.Policy.EngineConfig(), updated.Policy.Capabilities())
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable, policy hot-reload disabled")
	} else {
		defer watcher.Stop()
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			log.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint listening")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	log.Info().Str("store", cfg.Store.Backend).Msg("agentgate running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// echoExecutor is the dry-run executor behind serve. It performs no
// side effects; it reports what would have been executed.
type echoExecutor struct{}

func (echoExecutor) Execute(ctx context.Context, toolName string, args map[string]interface{}, invCtx dispatch.Context) (interface{}, error) {
	log.Info().
		Str("tool", toolName).
		Str("session", invCtx.SessionID).
		Str("ticket", invCtx.TicketID).
		Msg("Dry-run execution")
	return map[string]interface{}{"dry_run": true, "tool": toolName, "args": args}, nil
}
