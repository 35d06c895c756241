package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/fennec-ai/fennec/internal/metrics"
)

const (
	defaultEndpoint = "https://html.duckduckgo.com/html/"
	defaultTimeout  = 15 * time.Second
	userAgent       = "Mozilla/5.0 (compatible; fennec/1.0)"
)

// DuckDuckGo queries the HTML (non-JS) DuckDuckGo endpoint and scrapes the
// result list. No API key required.
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
}

type Option func(*DuckDuckGo)

func WithEndpoint(endpoint string) Option {
	return func(d *DuckDuckGo) {
		if endpoint != "" {
			d.endpoint = endpoint
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *DuckDuckGo) {
		if timeout > 0 {
			d.client.Timeout = timeout
		}
	}
}

func NewDuckDuckGo(opts ...Option) *DuckDuckGo {
	d := &DuckDuckGo{
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query required")
	}
	if max <= 0 {
		max = 3
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("transport_error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		metrics.SearchesTotal.WithLabelValues("http_error").Inc()
		return nil, fmt.Errorf("search request failed: %s", resp.Status)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("parse_error").Inc()
		return nil, err
	}
	results := parseResults(doc, max)
	metrics.SearchesTotal.WithLabelValues("ok").Inc()
	return results, nil
}

// parseResults walks the document collecting result__a anchors (title + link)
// and the result__snippet that follows each one.
func parseResults(doc *html.Node, max int) []Result {
	results := make([]Result, 0, max)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= max && currentSnippetSet(results) {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			classes := attrValue(n, "class")
			switch {
			case hasClass(classes, "result__a"):
				if len(results) >= max {
					return
				}
				title := strings.TrimSpace(textContent(n))
				link := resolveRedirect(attrValue(n, "href"))
				if title != "" {
					results = append(results, Result{Title: title, URL: link})
				}
			case hasClass(classes, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = strings.TrimSpace(textContent(n))
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return results
}

func currentSnippetSet(results []Result) bool {
	return len(results) > 0 && results[len(results)-1].Snippet != ""
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<real-url> redirect links.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if real := parsed.Query().Get("uddg"); real != "" {
		return real
	}
	return href
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasClass(classAttr string, class string) bool {
	for _, candidate := range strings.Fields(classAttr) {
		if candidate == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		sb.WriteString(textContent(child))
	}
	return sb.String()
}
