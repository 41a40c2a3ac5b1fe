package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meshforge/cadmirror/internal/models"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show mirror entity counts and run totals",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStats(cmd, rootOpts)
		},
	}
}

func showStats(cmd *cobra.Command, opts *RootOptions) error {
	client := newAPIClient(opts)

	var stats struct {
		Entities map[models.ResourceType]int `json:"entities"`
		Runs     *models.SyncTotals          `json:"runs"`
	}
	if err := client.get(cmd.Context(), "/v1/stats", nil, &stats); err != nil {
		return err
	}

	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), stats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "mirrored entities:")
	for _, t := range models.ResourceTypes {
		fmt.Fprintf(out, "  %-12s %d\n", t, stats.Entities[t])
	}
	if stats.Runs != nil {
		fmt.Fprintln(out, "sync runs:")
		fmt.Fprintf(out, "  %-12s %d\n", "total", stats.Runs.Runs)
		fmt.Fprintf(out, "  %-12s %d\n", "created", stats.Runs.Created)
		fmt.Fprintf(out, "  %-12s %d\n", "updated", stats.Runs.Updated)
		fmt.Fprintf(out, "  %-12s %d\n", "unchanged", stats.Runs.Unchanged)
		fmt.Fprintf(out, "  %-12s %d\n", "failed", stats.Runs.Failed)
	}
	return nil
}
