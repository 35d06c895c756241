package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fennec-ai/fennec/internal/search"
)

// newSearcher is swapped out in tests.
var newSearcher = func() search.Searcher {
	return search.NewDuckDuckGo(search.WithTimeout(15 * time.Second))
}

func searchCmd() *cobra.Command {
	var maxResults int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a web search directly, without the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			results, err := newSearcher().Search(cmd.Context(), query, maxResults)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no results")
				return nil
			}
			for _, result := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n  %s\n  %s\n", result.Title, result.URL, result.Snippet)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxResults, "max-results", 3, "maximum results to print")
	return cmd
}
