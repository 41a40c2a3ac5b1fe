package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/meshforge/cadmirror/internal/models"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRun(w io.Writer, run *models.SyncRun) {
	completed := "-"
	if run.CompletedAt != nil {
		completed = run.CompletedAt.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(w, "%s  %-10s  %-16s  created=%d updated=%d unchanged=%d failed=%d  started=%s completed=%s\n",
		run.ID,
		run.Scope,
		run.Status,
		run.Counts.Created,
		run.Counts.Updated,
		run.Counts.Unchanged,
		run.Counts.Failed,
		run.StartedAt.Format("2006-01-02 15:04:05"),
		completed,
	)
	if run.Message != "" {
		fmt.Fprintf(w, "  message: %s\n", run.Message)
	}
}
