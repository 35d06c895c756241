package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func modelsCmd() *cobra.Command {
	var provider, baseURL string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models available from the configured LLM backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]string{}
			if provider != "" {
				body["provider"] = provider
			}
			if baseURL != "" {
				body["base_url"] = baseURL
			}

			var resp struct {
				Models []string `json:"models"`
			}
			if err := postJSON(cmd.Context(), "/settings/llm/models", body, &resp); err != nil {
				return err
			}
			for _, model := range resp.Models {
				fmt.Fprintln(cmd.OutOrStdout(), model)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "override the configured provider")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "override the provider base URL")
	return cmd
}
