// Package search queries a JSON web-search API (Google Custom Search shape).
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/prospector/internal/config"
	"github.com/smallbiznis/prospector/internal/executor"
)

const maxErrorBody = 4 << 10

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"link"`
	Snippet string `json:"snippet"`
}

type Searcher interface {
	Search(ctx context.Context, term string) ([]Result, error)
}

type Client struct {
	endpoint string
	apiKey   string
	engineID string
	num      int
	http     *http.Client
}

func NewClient(cfg config.SearchConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	num := cfg.ResultsPerTerm
	if num <= 0 {
		num = 5
	}
	if num > 10 {
		num = 10
	}
	return &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		engineID: strings.TrimSpace(cfg.EngineID),
		num:      num,
		http:     httpClient,
	}
}

type response struct {
	Items []Result `json:"items"`
}

func (c *Client) Search(ctx context.Context, term string) ([]Result, error) {
	if c.apiKey == "" || c.engineID == "" {
		return nil, fmt.Errorf("search: %w", executor.ErrMissingCredential)
	}
	if c.endpoint == "" {
		return nil, fmt.Errorf("search: endpoint not configured: %w", executor.ErrMissingCredential)
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("cx", c.engineID)
	q.Set("q", term)
	q.Set("num", strconv.Itoa(c.num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &executor.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	results := make([]Result, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		item.URL = strings.TrimSpace(item.URL)
		if item.URL == "" {
			continue
		}
		results = append(results, item)
		if len(results) == c.num {
			break
		}
	}
	return results, nil
}
