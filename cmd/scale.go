package cmd

import (
	"context"
	"fmt"
	"strconv"

	"capstan/internal/app"

	"github.com/spf13/cobra"
)

var scaleConfigPath string

// scaleCmd sets the replica count of one capability's workload.
// Capabilities with autoscaling enabled are managed by the cluster's
// scaler; a manual override lasts until the scaler adjusts it again.
var scaleCmd = &cobra.Command{
	Use:   "scale <capability> <replicas>",
	Short: "Scale a deployed capability to a replica count",
	Args:  cobra.ExactArgs(2),
	RunE:  runScale,
}

func runScale(cmd *cobra.Command, args []string) error {
	replicas, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid replica count %q", args[1])
	}

	application, err := app.NewApplication(app.Options{
		ConfigPath: scaleConfigPath,
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

	if err := orch.Scale(ctx, args[0], int32(replicas)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scaled %s to %d replicas\n", args[0], replicas)
	return nil
}

func init() {
	rootCmd.AddCommand(scaleCmd)

	scaleCmd.Flags().StringVar(&scaleConfigPath, "config-path", "", "Custom configuration directory path")
}
