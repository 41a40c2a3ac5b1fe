package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meshforge/cadmirror/internal/models"
)

// MirrorOptions holds flags for the mirror command.
type MirrorOptions struct {
	*RootOptions
	DocumentID  string
	WorkspaceID string
	ElementID   string
	Limit       int
	Offset      int
}

// NewMirrorCommand creates the mirror command for browsing mirrored records.
func NewMirrorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MirrorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "mirror <documents|workspaces|elements|parts|features>",
		Short:         "Browse mirrored entities",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listMirror(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.DocumentID, "document", "", "filter to one document's children")
	cmd.Flags().StringVar(&opts.WorkspaceID, "workspace", "", "filter to one workspace's children")
	cmd.Flags().StringVar(&opts.ElementID, "element", "", "filter to one element's children")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum records to return")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "records to skip")

	return cmd
}

func listMirror(cmd *cobra.Command, opts *MirrorOptions, resource string) error {
	if _, ok := models.SyncScope(resource).Resource(); !ok {
		return fmt.Errorf("unknown resource type %q", resource)
	}

	client := newAPIClient(opts.RootOptions)

	query := url.Values{}
	query.Set("limit", strconv.Itoa(opts.Limit))
	query.Set("offset", strconv.Itoa(opts.Offset))
	if opts.DocumentID != "" {
		query.Set("document_id", opts.DocumentID)
	}
	if opts.WorkspaceID != "" {
		query.Set("workspace_id", opts.WorkspaceID)
	}
	if opts.ElementID != "" {
		query.Set("element_id", opts.ElementID)
	}

	var resp struct {
		Items []*models.LocalRecord `json:"items"`
		Count int                   `json:"count"`
	}
	if err := client.get(cmd.Context(), "/v1/mirror/"+resource, query, &resp); err != nil {
		return err
	}

	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	if len(resp.Items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no mirrored records")
		return nil
	}
	for _, rec := range resp.Items {
		line := fmt.Sprintf("%-40s  %s", rec.Key.String(), rec.Name)
		if rec.Kind != "" {
			line += "  [" + rec.Kind + "]"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
