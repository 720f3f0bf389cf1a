package extractor

import (
	"context"

	"casaingest/fetcher"
)

// Generic is the registry fallback: a full LLM structured extraction
// over the page's visible text. Used for every host without a
// selector-based extractor.
type Generic struct {
	site     string
	enhancer Enhancer
}

func NewGeneric(site string, enhancer Enhancer) *Generic {
	return &Generic{site: site, enhancer: enhancer}
}

func (g *Generic) Site() string { return g.site }

func (g *Generic) Extract(ctx context.Context, page *fetcher.Result) (map[string]any, error) {
	text := page.Text
	if text == "" {
		text = page.HTML
	}
	return g.enhancer.ExtractProperty(ctx, text, page.URL)
}
