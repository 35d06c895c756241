package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

type chatEvent struct {
	Type    string         `json:"type"`
	Source  string         `json:"source"`
	Payload map[string]any `json:"payload"`
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var created struct {
		ChatID string `json:"chat_id"`
	}
	if err := postJSON(ctx, "/chats", map[string]any{}, &created); err != nil {
		return err
	}
	fmt.Fprintf(out, "chat %s (ctrl-d to end)\n", created.ChatID)

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	go streamChat(streamCtx, created.ChatID, out)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		err := postJSON(ctx, "/chats/"+created.ChatID+"/messages", map[string]string{
			"role":    "user",
			"content": line,
		}, nil)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "send failed:", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	stopStream()
	return postJSON(ctx, "/chats/"+created.ChatID+"/cancel", map[string]any{}, nil)
}

// streamChat follows the chat's SSE feed and prints the events a terminal
// user cares about. It returns when the stream closes or ctx is cancelled.
func streamChat(ctx context.Context, chatID string, out io.Writer) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/chats/"+chatID+"/events", nil)
	if err != nil {
		return
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		fmt.Fprintln(out, "event stream unavailable:", err)
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event chatEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}
		printChatEvent(out, event)
	}
}

func printChatEvent(out io.Writer, event chatEvent) {
	switch event.Type {
	case "message.assistant":
		fmt.Fprintf(out, "\n%s\n> ", payloadString(event.Payload, "content"))
	case "search.completed":
		query := payloadString(event.Payload, "query")
		if errText := payloadString(event.Payload, "error"); errText != "" {
			fmt.Fprintf(out, "\nsearched %q: %s\n> ", query, errText)
			return
		}
		fmt.Fprintf(out, "\nsearched %q\n> ", query)
	case "chat.failed":
		fmt.Fprintf(out, "\nchat failed: %s\n> ", payloadString(event.Payload, "error"))
	}
}

func payloadString(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return value
}
