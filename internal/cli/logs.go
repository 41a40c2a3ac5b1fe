package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meshforge/cadmirror/internal/models"
)

// LogsOptions holds flags for the logs command.
type LogsOptions struct {
	*RootOptions
	RunID  string
	Limit  int
	Offset int
}

// NewLogsCommand creates the logs command.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "logs",
		Short:         "Show per-entity sync log entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listLogs(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "filter entries to one run")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum entries to return")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "entries to skip")

	return cmd
}

func listLogs(cmd *cobra.Command, opts *LogsOptions) error {
	client := newAPIClient(opts.RootOptions)

	query := url.Values{}
	query.Set("limit", strconv.Itoa(opts.Limit))
	query.Set("offset", strconv.Itoa(opts.Offset))
	if opts.RunID != "" {
		query.Set("run_id", opts.RunID)
	}

	var resp struct {
		Entries []*models.SyncLogEntry `json:"entries"`
		Count   int                    `json:"count"`
	}
	if err := client.get(cmd.Context(), "/v1/sync/logs", query, &resp); err != nil {
		return err
	}

	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	if len(resp.Entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no log entries")
		return nil
	}
	for _, e := range resp.Entries {
		line := fmt.Sprintf("%s  %-10s  %-9s  %s",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.EntityType,
			e.Action,
			e.EntityKey,
		)
		if e.Detail != "" {
			line += "  (" + e.Detail + ")"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
