package extractor

import (
	"context"
	"net/url"
	"strings"

	"casaingest/fetcher"
)

// Site identifiers. "other" routes to the registry fallback.
const (
	SiteEncuentra24 = "encuentra24"
	SiteColdwell    = "coldwellbanker"
	SiteBrevitas    = "brevitas"
	SiteOther       = "other"
)

// Extractor turns a fetched listing page into a field bag. Site
// extractors never fail on missing fields; only the LLM fallback can
// return an error.
type Extractor interface {
	Site() string
	Extract(ctx context.Context, page *fetcher.Result) (map[string]any, error)
}

type Entry struct {
	SiteID    string
	Hosts     []string
	Extractor Extractor
}

// Registry maps listing URLs to extractors. It is built once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	entries  []Entry
	fallback Extractor
}

func NewRegistry(entries []Entry, fallback Extractor) *Registry {
	return &Registry{entries: entries, fallback: fallback}
}

// Detect returns the site id for a URL, or "other" when no configured
// host matches.
func (r *Registry) Detect(rawURL string) string {
	host := hostOf(rawURL)
	if host == "" {
		return SiteOther
	}
	for _, e := range r.entries {
		for _, h := range e.Hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return e.SiteID
			}
		}
	}
	return SiteOther
}

// Get returns the extractor for a URL. Lookup is total: unknown hosts
// get the fallback extractor.
func (r *Registry) Get(rawURL string) Extractor {
	return r.GetSite(r.Detect(rawURL))
}

// GetSite returns the extractor for a site id, falling back for sites
// without a dedicated extractor.
func (r *Registry) GetSite(siteID string) Extractor {
	for _, e := range r.entries {
		if e.SiteID == siteID && e.Extractor != nil {
			return e.Extractor
		}
	}
	return r.fallback
}

// HasExtractor reports whether a site has a dedicated extractor, as
// opposed to routing through the fallback.
func (r *Registry) HasExtractor(siteID string) bool {
	for _, e := range r.entries {
		if e.SiteID == siteID {
			return e.Extractor != nil
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}
