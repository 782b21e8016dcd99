package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const tavilyBaseURL = "https://api.tavily.com"

// Tavily is a client for the Tavily search, extract and crawl endpoints.
// Results are returned raw; the pipeline's prompt steps do the analysis.
type Tavily struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxResults int
}

// TavilyOption configures a Tavily client.
type TavilyOption func(*Tavily)

// WithTavilyAPIKey sets the API key.
func WithTavilyAPIKey(key string) TavilyOption {
	return func(t *Tavily) { t.apiKey = key }
}

// WithBaseURL points the client at another endpoint, e.g. an httptest server.
func WithBaseURL(url string) TavilyOption {
	return func(t *Tavily) { t.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) TavilyOption {
	return func(t *Tavily) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithMaxResults sets the default number of search results.
func WithMaxResults(n int) TavilyOption {
	return func(t *Tavily) { t.maxResults = n }
}

// NewTavily creates a Tavily client.
func NewTavily(opts ...TavilyOption) *Tavily {
	t := &Tavily{
		baseURL:    tavilyBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxResults: 5,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Available reports whether an API key is configured.
func (t *Tavily) Available() bool {
	return t.apiKey != ""
}

type tavilySearchRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilySearchResponse struct {
	Results []SearchResult `json:"results"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyExtractRequest struct {
	URLs []string `json:"urls"`
}

type tavilyExtractResponse struct {
	Results       []ExtractResult `json:"results"`
	FailedResults []struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"failed_results"`
}

// ExtractResult is the raw content of one page.
type ExtractResult struct {
	URL        string `json:"url"`
	RawContent string `json:"raw_content"`
}

type tavilyCrawlRequest struct {
	URL          string `json:"url"`
	MaxDepth     int    `json:"max_depth,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type tavilyCrawlResponse struct {
	BaseURL string          `json:"base_url"`
	Results []ExtractResult `json:"results"`
}

// Search runs a web search.
func (t *Tavily) Search(ctx context.Context, query, depth string, maxResults int) ([]SearchResult, error) {
	if depth == "" {
		depth = "advanced"
	}
	if maxResults <= 0 {
		maxResults = t.maxResults
	}
	payload := tavilySearchRequest{
		Query:         query,
		SearchDepth:   depth,
		IncludeAnswer: false,
		MaxResults:    maxResults,
	}
	var resp tavilySearchResponse
	if err := t.post(ctx, "search", "/search", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		resp.Results = []SearchResult{}
	}
	return resp.Results, nil
}

// Extract fetches the raw content of urls. It fails only when no URL could
// be extracted.
func (t *Tavily) Extract(ctx context.Context, urls []string) ([]ExtractResult, error) {
	var resp tavilyExtractResponse
	if err := t.post(ctx, "extract", "/extract", tavilyExtractRequest{URLs: urls}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 && len(resp.FailedResults) > 0 {
		f := resp.FailedResults[0]
		return nil, fmt.Errorf("extract %s: %s", f.URL, f.Error)
	}
	if resp.Results == nil {
		resp.Results = []ExtractResult{}
	}
	return resp.Results, nil
}

// Crawl walks a site from url.
func (t *Tavily) Crawl(ctx context.Context, url string, maxDepth, limit int, instructions string) ([]ExtractResult, error) {
	payload := tavilyCrawlRequest{URL: url, MaxDepth: maxDepth, Limit: limit, Instructions: instructions}
	var resp tavilyCrawlResponse
	if err := t.post(ctx, "crawl", "/crawl", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		resp.Results = []ExtractResult{}
	}
	return resp.Results, nil
}

func (t *Tavily) post(ctx context.Context, tool, path string, payload, out any) error {
	if !t.Available() {
		return fmt.Errorf("tavily API key not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tavily %s request failed: %w", tool, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Tool: tool, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", tool, err)
	}
	return nil
}

// SearchTool exposes Tavily search as the "search" tool.
type SearchTool struct{ client *Tavily }

// NewSearchTool returns the "search" tool.
func NewSearchTool(c *Tavily) *SearchTool { return &SearchTool{client: c} }

func (s *SearchTool) Name() string { return "search" }

func (s *SearchTool) Description() string {
	return "Searches the web. Args: query, max_results, search_depth (basic|advanced)."
}

func (s *SearchTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	query, err := requireString(args, "query", "search_query")
	if err != nil {
		return nil, err
	}
	maxResults, err := optInt(args, "max_results", 0)
	if err != nil {
		return nil, err
	}
	results, err := s.client.Search(ctx, query, optString(args, "", "search_depth"), maxResults)
	if err != nil {
		return nil, err
	}
	return toJSONValue(results)
}

// ExtractTool exposes Tavily extract as the "extract" tool.
type ExtractTool struct{ client *Tavily }

// NewExtractTool returns the "extract" tool.
func NewExtractTool(c *Tavily) *ExtractTool { return &ExtractTool{client: c} }

func (e *ExtractTool) Name() string { return "extract" }

func (e *ExtractTool) Description() string {
	return "Extracts the raw content of web pages. Args: urls (string or list)."
}

func (e *ExtractTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	urls, err := stringList(args, "urls")
	if err != nil {
		return nil, err
	}
	results, err := e.client.Extract(ctx, urls)
	if err != nil {
		return nil, err
	}
	return toJSONValue(results)
}

// CrawlTool exposes Tavily crawl as the "crawl" tool.
type CrawlTool struct{ client *Tavily }

// NewCrawlTool returns the "crawl" tool.
func NewCrawlTool(c *Tavily) *CrawlTool { return &CrawlTool{client: c} }

func (c *CrawlTool) Name() string { return "crawl" }

func (c *CrawlTool) Description() string {
	return "Crawls a site from a start URL. Args: url, max_depth, limit, instructions."
}

func (c *CrawlTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	url, err := requireString(args, "url")
	if err != nil {
		return nil, err
	}
	depth, err := optInt(args, "max_depth", 1)
	if err != nil {
		return nil, err
	}
	limit, err := optInt(args, "limit", 10)
	if err != nil {
		return nil, err
	}
	results, err := c.client.Crawl(ctx, url, depth, limit, optString(args, "", "instructions"))
	if err != nil {
		return nil, err
	}
	return toJSONValue(results)
}

// toJSONValue converts typed results into the plain maps and slices step
// outputs are made of, so gjson paths and schemas see JSON field names.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
