package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helioscrm/agentgate/internal/config"
	"github.com/helioscrm/agentgate/pkg/confirm"
	"github.com/helioscrm/agentgate/pkg/dispatch"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire stale pending confirmations once",
	Long: `Run one expiry pass over the configured invocation store. Every
pending confirmation past its deadline is marked EXPIRED and its
invocation denied. The serve command does this continuously; sweep
exists for cron-driven and one-off use.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	workflow, err := confirm.NewWorkflow(confirm.Options{Store: store})
	if err != nil {
		return err
	}

	expired, err := workflow.ExpireStale(cmd.Context())
	if err != nil {
		return err
	}

	for _, inv := range expired {
		fmt.Fprintf(cmd.OutOrStdout(), "expired %s (%s)\n", inv.ID, inv.ToolName)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "expired %d pending confirmation(s)\n", len(expired))
	return nil
}

// openStore builds the invocation store the config selects
func openStore(cfg *config.Config) (dispatch.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return dispatch.NewMemoryStore(), nil
	case "sqlite":
		return dispatch.NewSQLiteStore(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
