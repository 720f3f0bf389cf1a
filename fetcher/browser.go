package fetcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// BrowserFetcher renders pages through a headless Chromium instance.
// Needed for listings that build the DOM client-side (encuentra24's
// newer templates). The browser is started lazily on first fetch and
// shared across calls.
type BrowserFetcher struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	browserCtx  playwright.BrowserContext
	initialized bool
}

func NewBrowserFetcher() *BrowserFetcher {
	return &BrowserFetcher{}
}

func (f *BrowserFetcher) init() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}

	var err error
	f.pw, err = playwright.Run()
	if err != nil {
		return err
	}

	cwd, _ := os.Getwd()
	userDataDir := filepath.Join(cwd, "browser_data")
	f.browserCtx, err = f.pw.Chromium.LaunchPersistentContext(userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return err
	}

	f.initialized = true
	return nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := f.init(); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	page, err := f.browserCtx.NewPage()
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer page.Close()

	_, err = page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	f.acceptConsent(page)

	html, err := page.Content()
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	return FromHTML(url, html), nil
}

func (f *BrowserFetcher) acceptConsent(page playwright.Page) {
	for _, sel := range []string{
		"button#onetrust-accept-btn-handler",
		"button:has-text('Aceptar')",
		"button:has-text('Accept')",
	} {
		btn := page.Locator(sel).First()
		if visible, _ := btn.IsVisible(); visible {
			if err := btn.Click(); err == nil {
				return
			}
		}
	}
}

func (f *BrowserFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browserCtx != nil {
		f.browserCtx.Close()
	}
	if f.pw != nil {
		if err := f.pw.Stop(); err != nil {
			log.Printf("Warning: stopping playwright: %v", err)
		}
	}
	f.initialized = false
}
