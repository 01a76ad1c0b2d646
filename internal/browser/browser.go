package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/maltedev/ad-product-extractor/internal/fetcher"
	"github.com/playwright-community/playwright-go"
)

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	MaxRetries     int
	SettleDelay    time.Duration
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.5",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
		MaxRetries:     3,
		SettleDelay:    2 * time.Second,
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
			"DNT":             "1",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return page, nil
}

// Fetch renders the page and returns its final DOM. It satisfies the same
// contract as the plain HTTP fetcher for storefronts that build the page in JavaScript.
func (b *Browser) Fetch(ctx context.Context, url string) (string, *fetcher.Metadata, error) {
	page, err := b.NewPage()
	if err != nil {
		return "", nil, err
	}
	defer page.Close()

	resp, err := b.NavigateWithRetry(ctx, page, url, b.opts.MaxRetries)
	if err != nil {
		return "", nil, err
	}

	b.prepare(page)

	content, err := page.Content()
	if err != nil {
		return "", nil, fmt.Errorf("failed to get page content: %w", err)
	}

	meta := &fetcher.Metadata{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		FinalURL:   page.URL(),
	}
	if resp != nil {
		meta.StatusCode = resp.Status()
		if headers, err := resp.AllHeaders(); err == nil {
			for k, v := range headers {
				meta.Header.Set(k, v)
			}
		}
	}

	return content, meta, nil
}

// Screenshot renders the page and returns a full-page PNG.
func (b *Browser) Screenshot(ctx context.Context, url string) ([]byte, error) {
	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if _, err := b.NavigateWithRetry(ctx, page, url, b.opts.MaxRetries); err != nil {
		return nil, err
	}

	b.prepare(page)

	shot, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return shot, nil
}

func (b *Browser) Close() error {
	var errs []error
	if b.context != nil {
		errs = append(errs, wrapClose("context", b.context.Close()))
	}
	if b.browser != nil {
		errs = append(errs, wrapClose("browser", b.browser.Close()))
	}
	if b.pw != nil {
		errs = append(errs, wrapClose("playwright", b.pw.Stop()))
	}
	return errors.Join(errs...)
}

func wrapClose(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to close %s: %w", what, err)
}

func (b *Browser) NavigateWithRetry(ctx context.Context, page playwright.Page, url string, maxRetries int) (playwright.Response, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i+1) * time.Second):
			}
		}

		resp, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if err == nil {
			if resp != nil && resp.Status() >= 400 {
				lastErr = fmt.Errorf("unexpected status code: %d", resp.Status())
				b.logger.Error("navigation failed", "error", lastErr, "attempt", i+1)
				continue
			}
			return resp, nil
		}

		lastErr = err
		b.logger.Error("navigation failed", "error", err, "attempt", i+1)
	}

	return nil, fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
