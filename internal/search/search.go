// Package search implements the web_search tool against DuckDuckGo.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Result is a single web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher performs a web search and returns at most max results.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

// FormatResults renders results the way they are fed to the model:
// Title/Snippet blocks joined by newlines.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("Title: %s\nSnippet: %s", r.Title, r.Snippet))
	}
	return strings.Join(blocks, "\n")
}
