// Package fetch downloads a page and reduces it to its visible text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/prospector/internal/executor"
	"golang.org/x/net/html"
)

const (
	defaultBudget  = 8000
	maxErrorBody   = 2 << 10
	rawReadFactor  = 16
	userAgent      = "prospector/1.0 (+company research)"
	defaultTimeout = 20 * time.Second
)

type Page struct {
	URL       string
	Title     string
	Text      string
	Truncated bool
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

type Client struct {
	http   *http.Client
	budget int
}

// NewClient keeps at most budget bytes of visible text per page.
func NewClient(httpClient *http.Client, budget int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if budget <= 0 {
		budget = defaultBudget
	}
	return &Client{http: httpClient, budget: budget}
}

func (c *Client) Fetch(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Page{}, &executor.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// Markup outweighs text, so read a multiple of the budget before parsing.
	raw := io.LimitReader(resp.Body, int64(c.budget*rawReadFactor))
	title, text, err := VisibleText(raw)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: parse %s: %w", url, err)
	}

	page := Page{URL: url, Title: title, Text: text}
	if len(page.Text) > c.budget {
		page.Text = truncateUTF8(page.Text, c.budget)
		page.Truncated = true
	}
	return page, nil
}

var skipped = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {}, "svg": {},
	"head": {}, "iframe": {}, "canvas": {},
}

var blocks = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "tr": {}, "section": {}, "article": {},
	"header": {}, "footer": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"table": {}, "ul": {}, "ol": {}, "nav": {}, "address": {},
}

// VisibleText tokenizes HTML and returns the page title and its text content
// with whitespace collapsed, one line per block element.
func VisibleText(r io.Reader) (string, string, error) {
	z := html.NewTokenizer(r)
	var (
		title   strings.Builder
		lines   []string
		current strings.Builder
		depth   int
		inTitle bool
	)
	flush := func() {
		line := strings.Join(strings.Fields(current.String()), " ")
		if line != "" {
			lines = append(lines, line)
		}
		current.Reset()
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != nil && err != io.EOF {
				return "", "", err
			}
			flush()
			return strings.Join(strings.Fields(title.String()), " "), strings.Join(lines, "\n"), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = tt == html.StartTagToken
				continue
			}
			if _, skip := skipped[tag]; skip && tt == html.StartTagToken {
				depth++
				continue
			}
			if _, block := blocks[tag]; block {
				flush()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = false
				continue
			}
			if _, skip := skipped[tag]; skip && depth > 0 {
				depth--
				continue
			}
			if _, block := blocks[tag]; block {
				flush()
			}
		case html.TextToken:
			if inTitle {
				title.Write(z.Text())
				continue
			}
			if depth > 0 {
				continue
			}
			current.Write(z.Text())
			current.WriteByte(' ')
		}
	}
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
