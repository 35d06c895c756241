package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type chatSummary struct {
	ChatID       string `json:"chat_id"`
	Status       string `json:"status"`
	Title        string `json:"title"`
	Model        string `json:"model"`
	CreatedAt    string `json:"created_at"`
	MessageCount int    `json:"message_count"`
}

func chatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List chats on the control plane",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Chats []chatSummary `json:"chats"`
			}
			if err := getJSON(cmd.Context(), "/chats", &resp); err != nil {
				return err
			}
			if len(resp.Chats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no chats")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHAT\tSTATUS\tMESSAGES\tCREATED\tTITLE")
			for _, chat := range resp.Chats {
				title := chat.Title
				if title == "" {
					title = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", chat.ChatID, chat.Status, chat.MessageCount, chat.CreatedAt, title)
			}
			return tw.Flush()
		},
	}
}
