package cmd

import (
	"context"
	"fmt"

	"capstan/internal/app"
	"capstan/internal/orchestrator"

	"github.com/spf13/cobra"
)

var (
	undeployDebug      bool
	undeployConfigPath string
)

// undeployCmd removes the managed workloads of the named capabilities,
// or of every declared capability when none are named.
var undeployCmd = &cobra.Command{
	Use:   "undeploy [capability...]",
	Short: "Remove deployed capabilities from the cluster",
	RunE:  runUndeploy,
}

func runUndeploy(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Options{
		ConfigPath: undeployConfigPath,
		Debug:      undeployDebug,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	orch, err := application.Orchestrator()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ids := args
	if len(ids) == 0 {
		ids = application.Store().Current().IDs()
	}

	outcomes := make([]orchestrator.Outcome, 0, len(ids))
	for _, id := range ids {
		outcomes = append(outcomes, orch.Teardown(ctx, id))
	}
	return reportOutcomes(cmd, outcomes)
}

func init() {
	rootCmd.AddCommand(undeployCmd)

	undeployCmd.Flags().BoolVar(&undeployDebug, "debug", false, "Enable debug logging")
	undeployCmd.Flags().StringVar(&undeployConfigPath, "config-path", "", "Custom configuration directory path")
}
