package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project management commands",
	}

	cmd.AddCommand(newProjectRemoveCmd())
	return cmd
}

func newProjectRemoveCmd() *cobra.Command {
	var (
		configPath string
		tenant     string
		datasource string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "remove <project-id>",
		Short: "Remove a project and everything that depends on it",
		Long:  "Archives the project's contexts, then removes its maps, work items and snapshots with the same dependency checks as reconcile.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			r, err := newReconciler(cfg, gormDB, newLogger(cmd), nil)
			if err != nil {
				return err
			}
			out, err := r.RemoveProject(context.Background(), tenant, datasource, args[0])
			if err != nil {
				return err
			}
			return printOutcome(cmd, tenant, datasource, out, asJSON)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to workcfg config file")
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "tenant id (required)")
	cmd.Flags().StringVarP(&datasource, "datasource", "d", "", "datasource id (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("datasource")
	return cmd
}
