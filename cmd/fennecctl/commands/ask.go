package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type askResponse struct {
	Answer   string `json:"answer"`
	Searches []struct {
		Query   string `json:"query"`
		Results []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"results"`
		Error string `json:"error"`
	} `json:"searches"`
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a one-off question without creating a chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			var resp askResponse
			if err := postJSON(cmd.Context(), "/ask", map[string]string{"question": question}, &resp); err != nil {
				return err
			}

			for _, call := range resp.Searches {
				if call.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "searched %q: %s\n", call.Query, call.Error)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "searched %q (%d results)\n", call.Query, len(call.Results))
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
			return nil
		},
	}
}
