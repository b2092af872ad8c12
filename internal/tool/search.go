package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"toolpilot/internal/domain"
)

const (
	searchTimeout      = 15 * time.Second
	fetchMaxBytes      = 100 * 1024
	fetchMaxOutput     = 10000
	userAgentString    = "toolpilot/0.1"
	defaultSearchURL   = "https://api.search.brave.com/res/v1/web/search"
	defaultSearchCount = 5
	maxSearchCount     = 20
)

// ErrSearchNotConfigured is returned by web_search when no API key is available.
var ErrSearchNotConfigured = errors.New("web search is not configured: set BRAVE_SEARCH_API_KEY or tools.search.apiKey")

// SearchConfig configures NewWebSearchTool.
type SearchConfig struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

// WebSearchTool queries the Brave Search web API. It stays registered without a key
// and reports the missing credential as an ordinary failure.
type WebSearchTool struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewWebSearchTool(cfg SearchConfig) *WebSearchTool {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultSearchURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: searchTimeout}
	}
	return &WebSearchTool{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		endpoint: cfg.Endpoint,
		client:   cfg.Client,
	}
}

func (t *WebSearchTool) Descriptor() domain.CapabilityDescriptor {
	return domain.CapabilityDescriptor{
		Name:        "web_search",
		Description: "Search the web and return the top results with title, URL and snippet.",
		InputSchema: Schema(map[string]Param{
			"query": {Type: "string", Description: "Search query"},
			"count": {Type: "integer", Description: fmt.Sprintf("Number of results (1-%d, default %d)", maxSearchCount, defaultSearchCount)},
		}, "query"),
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if t.apiKey == "" {
		return nil, ErrSearchNotConfigured
	}
	query, err := requireString(args, "query")
	if err != nil {
		return nil, err
	}
	count := ArgsInt(args, "count", defaultSearchCount)
	if count < 1 {
		count = 1
	}
	if count > maxSearchCount {
		count = maxSearchCount
	}

	endpoint := fmt.Sprintf("%s?q=%s&count=%d", t.endpoint, url.QueryEscape(query), count)
	var resp braveResponse
	err = getJSON(ctx, t.client, endpoint, map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": t.apiKey,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	if len(resp.Web.Results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}
	var b strings.Builder
	for i, r := range resp.Web.Results {
		if i >= count {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n%s", i+1, r.Title, r.URL, stripHTMLTags(r.Description))
	}
	return b.String(), nil
}

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// WebFetchTool fetches a page and returns its text with markup removed.
type WebFetchTool struct {
	client *http.Client
}

func NewWebFetchTool(client *http.Client) *WebFetchTool {
	if client == nil {
		client = &http.Client{Timeout: searchTimeout}
	}
	return &WebFetchTool{client: client}
}

func (t *WebFetchTool) Descriptor() domain.CapabilityDescriptor {
	return domain.CapabilityDescriptor{
		Name:        "web_fetch",
		Description: "Fetch a web page by URL and return its text content with HTML stripped.",
		InputSchema: Schema(map[string]Param{
			"url": {Type: "string", Description: "Full URL to fetch (http:// or https://)"},
		}, "url"),
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	rawURL, err := requireString(args, "url")
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q (only http/https allowed)", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgentString)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	text := stripHTMLTags(string(body))
	if len(text) > fetchMaxOutput {
		text = text[:fetchMaxOutput] + "\n... (truncated)"
	}
	return text, nil
}

// stripHTMLTags removes tags and blank lines. It is not an HTML parser: script and
// style bodies survive as text.
func stripHTMLTags(s string) string {
	var result strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}
	lines := strings.Split(result.String(), "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

var (
	_ Capability = (*WebSearchTool)(nil)
	_ Capability = (*WebFetchTool)(nil)
)
