package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meshforge/cadmirror/internal/models"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Limit int
}

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect sync runs",
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List sync runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(cmd, opts)
		},
	}
	list.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to return")

	get := &cobra.Command{
		Use:           "get <run-id>",
		Short:         "Show one sync run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getRun(cmd, opts, args[0])
		},
	}

	cancel := &cobra.Command{
		Use:           "cancel <run-id>",
		Short:         "Cancel an in-flight sync run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cancelRun(cmd, opts, args[0])
		},
	}

	cmd.AddCommand(list, get, cancel)
	return cmd
}

func listRuns(cmd *cobra.Command, opts *RunsOptions) error {
	client := newAPIClient(opts.RootOptions)

	query := url.Values{}
	query.Set("limit", strconv.Itoa(opts.Limit))

	var resp struct {
		Runs  []*models.SyncRun `json:"runs"`
		Count int               `json:"count"`
	}
	if err := client.get(cmd.Context(), "/v1/sync/runs", query, &resp); err != nil {
		return err
	}

	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	if len(resp.Runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sync runs")
		return nil
	}
	for _, run := range resp.Runs {
		printRun(cmd.OutOrStdout(), run)
	}
	return nil
}

func getRun(cmd *cobra.Command, opts *RunsOptions, runID string) error {
	client := newAPIClient(opts.RootOptions)

	var run models.SyncRun
	if err := client.get(cmd.Context(), "/v1/sync/runs/"+runID, nil, &run); err != nil {
		return err
	}

	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), &run)
	}
	printRun(cmd.OutOrStdout(), &run)
	return nil
}

func cancelRun(cmd *cobra.Command, opts *RunsOptions, runID string) error {
	client := newAPIClient(opts.RootOptions)

	var resp struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	if err := client.post(cmd.Context(), "/v1/sync/runs/"+runID+"/cancel", nil, &resp); err != nil {
		return err
	}

	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s cancelling\n", resp.RunID)
	return nil
}
