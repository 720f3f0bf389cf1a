package httputil

import (
	"net/http"
	"net/url"
	"time"

	"casaingest/config"
)

// Clients separates traffic to listing sites from traffic to our own
// providers. Listing sites may go through a proxy and get a shorter
// timeout; provider calls (OpenAI, S3, SMTP relays) go direct.
type Clients struct {
	Scraping *http.Client
	API      *http.Client
}

func NewClients(cfg config.FetcherConfig) *Clients {
	scraping := &http.Client{
		Timeout: 30 * time.Second,
	}

	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			scraping.Transport = &http.Transport{
				Proxy:             http.ProxyURL(proxyURL),
				ForceAttemptHTTP2: false,
			}
		}
	}

	return &Clients{
		Scraping: scraping,
		API:      &http.Client{Timeout: 60 * time.Second},
	}
}
