package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FetchError marks a retryable transport failure: the page could not
// be retrieved at all.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is the outcome of fetching one listing page.
type Result struct {
	URL   string
	HTML  string
	Text  string
	Title string
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "es-CR,es;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	return FromHTML(url, string(body)), nil
}

// FromHTML builds a Result from raw markup, deriving the visible text
// and page title. Used by both fetchers and by the text-ingest path.
func FromHTML(url, html string) *Result {
	res := &Result{URL: url, HTML: html}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		res.Text = html
		return res
	}

	res.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, iframe, nav, footer, header").Remove()
	text := doc.Find("body").Text()
	res.Text = CollapseWhitespace(text)

	return res
}

// CollapseWhitespace squeezes runs of whitespace into single spaces
// while keeping line structure readable for the LLM path.
func CollapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
