package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cimcp/cimcp/internal/app"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [paths...]",
		Short: "Index the configured repositories",
		Long:  "Run a full indexing pass, or reindex only the given paths.",
		RunE:  runIndex,
	}
	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var stats fmt.Stringer
	if len(args) > 0 {
		stats, err = a.Indexer.IndexPaths(ctx, args)
	} else {
		stats, err = a.Indexer.IndexAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	cmd.Printf("%s %s\n", successStyle.Render("✓"), stats)
	return nil
}
