package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cimcp/cimcp/internal/app"
	"github.com/cimcp/cimcp/internal/retrieval"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	cmd.Flags().Int("limit", 10, "Maximum number of hits")
	cmd.Flags().Bool("exported", false, "Only exported symbols")
	cmd.Flags().Bool("context", false, "Print the assembled context")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	exported, _ := cmd.Flags().GetBool("exported")
	withContext, _ := cmd.Flags().GetBool("context")

	a, err := app.Open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Retriever.Search(ctx, strings.Join(args, " "), retrieval.SearchOptions{
		Limit:        limit,
		ExportedOnly: exported,
		SkipContext:  !withContext,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(resp.Hits) == 0 {
		cmd.Printf("%s no results\n", warnStyle.Render("!"))
		return nil
	}
	for i, h := range resp.Hits {
		marker := " "
		if h.Expanded {
			marker = "+"
		}
		cmd.Printf("%2d.%s %-30s %-10s %s:%d (%.3f)\n",
			i+1, marker, h.Name, h.Kind, h.FilePath, h.StartLine, h.Score)
	}
	if withContext && resp.Context != "" {
		cmd.Println()
		cmd.Println(resp.Context)
	}
	return nil
}
