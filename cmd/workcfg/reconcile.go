package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tallyflow/workcfg/internal/desired"
	"github.com/tallyflow/workcfg/internal/notify"
	"github.com/tallyflow/workcfg/internal/reconcile"
)

func newReconcileCmd() *cobra.Command {
	var (
		configPath string
		tenant     string
		datasource string
		file       string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply a desired configuration to a datasource",
		Long: `Reads a desired configuration (JSON or YAML) and reconciles the datasource against it.

Removals still referenced by saved filters or review rooms block the whole run
and nothing is changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, configPath, tenant, datasource, file, asJSON)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to workcfg config file")
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "tenant id (required)")
	cmd.Flags().StringVarP(&datasource, "datasource", "d", "", "datasource id (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "desired configuration file (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("datasource")
	cmd.MarkFlagRequired("file")
	return cmd
}

func runReconcile(cmd *cobra.Command, configPath, tenant, datasource, file string, asJSON bool) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	payload, err := desired.Parse(data)
	if err != nil {
		return err
	}

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	r, err := newReconciler(cfg, gormDB, newLogger(cmd), nil)
	if err != nil {
		return err
	}

	out, err := r.Reconcile(context.Background(), tenant, datasource, payload)
	if err != nil {
		return err
	}
	return printOutcome(cmd, tenant, datasource, out, asJSON)
}

func printOutcome(cmd *cobra.Command, tenant, datasource string, out *reconcile.Outcome, asJSON bool) error {
	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if out.Conflict != nil {
		if !asJSON {
			fmt.Fprintln(w, notify.FormatConflict(tenant, datasource, out.Conflict.Dependencies))
		}
		return fmt.Errorf("run %s blocked: %d entities still referenced", out.RunID, len(out.Conflict.Dependencies))
	}
	if asJSON {
		return nil
	}

	rm := out.Removal
	fmt.Fprintf(w, "Run %s applied to %s/%s\n", out.RunID, tenant, datasource)
	fmt.Fprintf(w, "  upserted rows:      %d\n", out.Upserted)
	fmt.Fprintf(w, "  maps archived:      %d\n", rm.MapsArchived)
	fmt.Fprintf(w, "  types removed:      %d\n", rm.TypesRemoved)
	fmt.Fprintf(w, "  work items purged:  %d\n", rm.WorkItemsPurged)
	fmt.Fprintf(w, "  snapshots purged:   %d\n", rm.SnapshotsPurged)
	fmt.Fprintf(w, "  workflows archived: %d\n", rm.WorkflowsArchived)
	if rm.ContextsArchived > 0 {
		fmt.Fprintf(w, "  contexts archived:  %d\n", rm.ContextsArchived)
	}
	fmt.Fprintf(w, "  live maps:          %d\n", len(out.Applied.WorkItemTypeMaps))
	return nil
}
