// Package agent runs the tool-calling loop that turns a question into an
// answer: ask the model, execute any web_search calls it requests, feed the
// results back, repeat until the model answers in plain text.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fennec-ai/fennec/internal/llm"
	"github.com/fennec-ai/fennec/internal/search"
)

const (
	WebSearchToolName = "web_search"

	defaultMaxRounds  = 3
	defaultMaxResults = 3
	maxGenerateTries  = 3
)

// SearchCall records one executed web search for event emission and storage.
type SearchCall struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results,omitempty"`
	Err     string          `json:"error,omitempty"`
}

// Outcome is the final answer plus every search that contributed to it.
type Outcome struct {
	Content  string
	Searches []SearchCall
}

type Agent struct {
	provider      llm.Provider
	searcher      search.Searcher
	maxRounds     int
	maxResults    int
	retryDelay    time.Duration
	searchStarted func(query string)
}

type Option func(*Agent)

func WithMaxRounds(rounds int) Option {
	return func(a *Agent) {
		if rounds > 0 {
			a.maxRounds = rounds
		}
	}
}

func WithMaxResults(max int) Option {
	return func(a *Agent) {
		if max > 0 {
			a.maxResults = max
		}
	}
}

func WithRetryDelay(delay time.Duration) Option {
	return func(a *Agent) {
		a.retryDelay = delay
	}
}

// WithSearchStarted registers a callback invoked with the query just before
// each web search runs.
func WithSearchStarted(fn func(query string)) Option {
	return func(a *Agent) {
		a.searchStarted = fn
	}
}

func New(provider llm.Provider, searcher search.Searcher, opts ...Option) *Agent {
	agent := &Agent{
		provider:   provider,
		searcher:   searcher,
		maxRounds:  defaultMaxRounds,
		maxResults: defaultMaxResults,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(agent)
		}
	}
	return agent
}

// WebSearchTool is the function definition offered to the model.
func WebSearchTool() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.FunctionDefinition{
			Name:        WebSearchToolName,
			Description: "Search the web for recent information or topics the model doesn't know about.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query to use.",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// Answer drives the conversation in history to a final assistant reply.
// Search failures are reported back to the model as tool output rather than
// aborting the answer; only LLM failures surface as errors.
func (a *Agent) Answer(ctx context.Context, history []llm.Message) (Outcome, error) {
	if len(history) == 0 {
		return Outcome{}, errors.New("empty conversation")
	}

	outcome := Outcome{}
	messages := make([]llm.Message, len(history))
	copy(messages, history)
	// No searcher means searching is disabled; the model never sees the tool.
	var tools []llm.Tool
	if a.searcher != nil {
		tools = []llm.Tool{WebSearchTool()}
	}

	for round := 0; round < a.maxRounds; round++ {
		completion, err := a.generateWithRetry(ctx, llm.Request{Messages: messages, Tools: tools})
		if err != nil {
			return outcome, err
		}
		if len(completion.ToolCalls) == 0 {
			outcome.Content = completion.Content
			return outcome, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		for _, call := range completion.ToolCalls {
			if call.Function.Name != WebSearchToolName {
				outcome.Content = fmt.Sprintf("Error: the model tried to call unknown function %q.", call.Function.Name)
				return outcome, nil
			}
			result := a.runSearch(ctx, call.Function.Arguments)
			outcome.Searches = append(outcome.Searches, result.call)
			messages = append(messages, llm.Message{
				Role:       "tool",
				Name:       WebSearchToolName,
				ToolCallID: call.ID,
				Content:    result.content,
			})
		}
	}

	// Round budget exhausted: ask once more without tools to force a
	// plain-text answer over whatever evidence was gathered.
	completion, err := a.generateWithRetry(ctx, llm.Request{Messages: messages})
	if err != nil {
		return outcome, err
	}
	outcome.Content = completion.Content
	return outcome, nil
}

type searchExecution struct {
	call    SearchCall
	content string
}

func (a *Agent) runSearch(ctx context.Context, rawArgs string) searchExecution {
	if a.searcher == nil {
		msg := "An error occurred during search: web search is disabled"
		return searchExecution{call: SearchCall{Err: msg}, content: msg}
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		msg := fmt.Sprintf("An error occurred during search: invalid arguments: %v", err)
		return searchExecution{call: SearchCall{Err: msg}, content: msg}
	}
	if a.searchStarted != nil {
		a.searchStarted(args.Query)
	}
	results, err := a.searcher.Search(ctx, args.Query, a.maxResults)
	if err != nil {
		msg := fmt.Sprintf("An error occurred during search: %v", err)
		return searchExecution{call: SearchCall{Query: args.Query, Err: err.Error()}, content: msg}
	}
	return searchExecution{
		call:    SearchCall{Query: args.Query, Results: results},
		content: search.FormatResults(results),
	}
}

func (a *Agent) generateWithRetry(ctx context.Context, req llm.Request) (llm.Completion, error) {
	var lastErr error
	for attempt := 1; attempt <= maxGenerateTries; attempt++ {
		completion, err := a.provider.Generate(ctx, req)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == maxGenerateTries {
			break
		}
		select {
		case <-ctx.Done():
			return llm.Completion{}, ctx.Err()
		case <-time.After(a.retryDelay * time.Duration(attempt)):
		}
	}
	return llm.Completion{}, lastErr
}

func isRetryable(err error) bool {
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return false
}
