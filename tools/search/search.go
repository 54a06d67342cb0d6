// Package search provides the web_search tool backed by the Brave Search
// API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parlorchat/parlor"
)

// Tool performs web searches via the Brave API.
type Tool struct {
	apiKey string
	client *http.Client
}

var _ parlor.Tool = (*Tool)(nil)

// New creates the search tool. Requires a Brave API key.
func New(apiKey string) *Tool {
	return &Tool{
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Tool) Definitions() []parlor.ToolDefinition {
	return []parlor.ToolDefinition{{
		Name:        "web_search",
		Description: "Search the web for current/real-time information. Use for recent events, news, prices, weather, or anything that requires up-to-date data.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query optimized for search engines"}},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (parlor.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return parlor.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	content, err := t.Search(ctx, params.Query)
	if err != nil {
		return parlor.ToolResult{Error: err.Error()}, nil
	}
	return parlor.ToolResult{Content: content}, nil
}

// Search runs one Brave query and formats the top results.
func (t *Tool) Search(ctx context.Context, query string) (string, error) {
	results, err := t.braveSearch(ctx, query, 8)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	var out strings.Builder
	for i, r := range results {
		fmt.Fprintf(&out, "[%d] %s\n%s\n%s\n\n", i+1, r.Title, r.Snippet, r.URL)
	}
	return out.String(), nil
}

type braveResult struct {
	Title   string
	URL     string
	Snippet string
}

func (t *Tool) braveSearch(ctx context.Context, query string, count int) ([]braveResult, error) {
	u := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d",
		url.QueryEscape(query), count)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &parlor.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("brave parse error: %w", err)
	}

	var results []braveResult
	for _, r := range data.Web.Results {
		results = append(results, braveResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Description,
		})
	}
	return results, nil
}
