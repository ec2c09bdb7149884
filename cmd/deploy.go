package cmd

import (
	"context"
	"fmt"

	"capstan/internal/app"

	"github.com/spf13/cobra"
)

var (
	deployDebug      bool
	deployConfigPath string
)

// deployCmd reconciles the cluster with the manifest once: declared
// capabilities are deployed or updated, undeclared managed workloads
// are removed.
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy all capabilities declared in the manifest",
	Args:  cobra.NoArgs,
	RunE:  runDeploy,
}

func runDeploy(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Options{
		ConfigPath: deployConfigPath,
		Debug:      deployDebug,
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

	outcomes := orch.Reconcile(ctx, application.Store().Current())
	return reportOutcomes(cmd, outcomes)
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().BoolVar(&deployDebug, "debug", false, "Enable debug logging")
	deployCmd.Flags().StringVar(&deployConfigPath, "config-path", "", "Custom configuration directory path")
}
