package cmd

import (
	"fmt"

	"capstan/internal/orchestrator"

	"github.com/spf13/cobra"
)

// reportOutcomes prints per-capability results and returns an error
// when any capability failed.
func reportOutcomes(cmd *cobra.Command, outcomes []orchestrator.Outcome) error {
	failed := 0
	for _, outcome := range outcomes {
		if outcome.Failed() {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: failed: %v\n", outcome.ID, outcome.Err)
			continue
		}
		if len(outcome.Changes) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: up to date\n", outcome.ID)
			continue
		}
		for _, change := range outcome.Changes {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s %s\n", outcome.ID, change.Op, change.Resource)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d capabilities failed", failed, len(outcomes))
	}
	return nil
}
