// Package commands implements the fennecctl CLI against a running fennecd.
package commands

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	httpClient = &http.Client{Timeout: 5 * time.Minute}
)

func Execute() error {
	root := &cobra.Command{
		Use:   "fennecctl",
		Short: "Talk to a fennec control plane from the terminal",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if serverURL == "" {
				serverURL = os.Getenv("FENNEC_URL")
			}
			if serverURL == "" {
				serverURL = "http://localhost:8080"
			}
			serverURL = strings.TrimRight(serverURL, "/")
		},
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "", "fennecd base URL (default $FENNEC_URL or http://localhost:8080)")

	root.AddCommand(askCmd(), chatCmd(), chatsCmd(), modelsCmd(), searchCmd())
	return root.Execute()
}
