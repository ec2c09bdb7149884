package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"capstan/internal/app"

	"github.com/spf13/cobra"
)

var (
	serveDebug      bool
	serveSilent     bool
	serveConfigPath string
)

// serveCmd starts the HTTP front door and, under the kubernetes
// topology, the reconcile manager that keeps workloads converged with
// the manifest.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the capability routing server",
	Long: `Starts the invocation router and its HTTP front door.

Under the kubernetes topology this also starts the reconcile manager:
the manifest file is watched for changes, and every declared capability
is deployed and kept converged while the server runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Options{
		ConfigPath: serveConfigPath,
		Debug:      serveDebug,
		Silent:     serveSilent,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveSilent, "silent", false, "Suppress all log output")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Custom configuration directory path")
}
