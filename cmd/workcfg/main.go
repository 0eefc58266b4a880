package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tallyflow/workcfg/internal/config"
	"github.com/tallyflow/workcfg/internal/db"
	"github.com/tallyflow/workcfg/internal/notify"
	"github.com/tallyflow/workcfg/internal/reconcile"
	"github.com/tallyflow/workcfg/internal/reingest"
	"gorm.io/gorm"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "workcfg.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workcfg",
		Short: "workcfg: work-tracking configuration reconciler",
		Long: "workcfg reconciles a tenant's desired work-tracking configuration against the store,\n" +
			"refusing removals that saved filters or review rooms still depend on.",
		SilenceUsage: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newReingestCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "workcfg %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}

	return cfg, gormDB, nil
}

// newReconciler wires the reconciler collaborators described by cfg.
// A nil reg skips metrics.
func newReconciler(cfg *config.Config, gormDB *gorm.DB, log *slog.Logger, reg prometheus.Registerer) (*reconcile.Reconciler, error) {
	opts := reconcile.Options{
		Logger:           log,
		Trigger:          reingest.NewCursorTrigger(gormDB),
		Timeout:          cfg.Reconcile.Timeout,
		VetoRemovedSteps: cfg.Reconcile.VetoRemovedSteps,
	}
	if reg != nil {
		opts.Metrics = reconcile.NewMetrics(reg)
	}

	var notifiers notify.Multi
	if cfg.Notify.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlack(cfg.Notify.SlackWebhookURL))
	}
	if cfg.Notify.DiscordWebhookID != "" {
		d, err := notify.NewDiscord(cfg.Notify.DiscordWebhookID, cfg.Notify.DiscordWebhookToken)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, d)
	}
	if len(notifiers) > 0 {
		opts.Notifier = notifiers
	}
	return reconcile.New(gormDB, opts), nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
