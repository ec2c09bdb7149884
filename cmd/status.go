package cmd

import (
	"context"
	"fmt"

	"capstan/internal/app"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var statusConfigPath string

// statusCmd lists the managed workloads with their replica counts and
// autoscaling bounds.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deployment status of all managed capabilities",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Options{
		ConfigPath: statusConfigPath,
		Silent:     true,
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

	statuses, err := orch.Status(ctx)
	if err != nil {
		return fmt.Errorf("reading cluster state: %w", err)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), text.FgYellow.Sprint("No managed capabilities found"))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"CAPABILITY", "IMAGE", "READY", "AUTOSCALING"})

	for _, s := range statuses {
		ready := fmt.Sprintf("%d/%d", s.ReadyReplicas, s.DesiredReplicas)
		if s.ReadyReplicas < s.DesiredReplicas {
			ready = text.FgYellow.Sprint(ready)
		} else {
			ready = text.FgGreen.Sprint(ready)
		}

		autoscaling := "off"
		if s.Autoscaled {
			autoscaling = fmt.Sprintf("%d-%d replicas", s.MinReplicas, s.MaxReplicas)
		}

		t.AppendRow(table.Row{s.ID, s.Image, ready, autoscaling})
	}

	t.Render()
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusConfigPath, "config-path", "", "Custom configuration directory path")
}
