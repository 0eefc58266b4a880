package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tallyflow/workcfg/internal/models"
	"github.com/tallyflow/workcfg/internal/reingest"
)

func newReingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reingest",
		Short: "Ingestion cursor commands",
	}

	cmd.AddCommand(newReingestDueCmd())
	return cmd
}

func newReingestDueCmd() *cobra.Command {
	var (
		configPath string
		advance    bool
	)

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List datasources due for ingestion",
		Long:  "Lists enabled datasources whose ingestion cursor is cleared or in the past. With --advance, moves each cursor to its next scheduled run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReingestDue(cmd, configPath, advance)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to workcfg config file")
	cmd.Flags().BoolVar(&advance, "advance", false, "advance the cursor of every listed datasource")
	return cmd
}

func runReingestDue(cmd *cobra.Command, configPath string, advance bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	s := reingest.NewScheduler(gormDB, cfg.Reingest.DefaultSchedule, newLogger(cmd))
	now := time.Now()

	list := func(_ context.Context, ds models.Datasource) error {
		state := "cursor cleared"
		if ds.NextRunAt != nil {
			state = "due since " + ds.NextRunAt.Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%-20s %-20s %s\n", ds.TenantID, ds.DatasourceID, state)
		return nil
	}

	if advance {
		n, err := s.Poll(context.Background(), now, list)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Advanced %d datasource(s)\n", n)
		return nil
	}

	due, err := s.Due(context.Background(), now)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		fmt.Fprintln(out, "No datasources due.")
		return nil
	}
	for _, ds := range due {
		list(context.Background(), ds)
	}
	return nil
}
