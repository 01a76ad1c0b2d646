// Package fetcher retrieves product pages over plain HTTP.
package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
	DefaultTimeout     = 10 * time.Second
	maxPageBytes       = 20 << 20
)

var (
	ErrBadStatus      = errors.New("unexpected status code")
	ErrAttemptsFailed = errors.New("all fetch attempts failed")
)

// Metadata describes the response a page was read from.
type Metadata struct {
	StatusCode      int
	Header          http.Header
	FinalURL        string
	ContentEncoding string
}

type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
	UserAgents  []string
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
		Timeout:     DefaultTimeout,
		UserAgents:  DefaultUserAgents(),
	}
}

// HTTPFetcher fetches pages with rotating browser-like headers and a fixed retry budget.
type HTTPFetcher struct {
	client *http.Client
	opts   Options
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func New(opts Options, logger *slog.Logger) *HTTPFetcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = DefaultUserAgents()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		logger: logger.With("component", "http_fetcher"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch returns the decoded page text. It retries up to MaxAttempts times,
// picking a new user agent for each attempt.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, *Metadata, error) {
	var lastErr error

	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		text, meta, err := f.fetchOnce(ctx, pageURL)
		if err == nil {
			return text, meta, nil
		}
		lastErr = err
		f.logger.Warn("fetch attempt failed", "url", pageURL, "attempt", attempt, "error", err)

		if attempt == f.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(f.opts.RetryDelay):
		}
	}

	return "", nil, fmt.Errorf("%w after %d attempts: %v", ErrAttemptsFailed, f.opts.MaxAttempts, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, pageURL string) (string, *Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil, err
	}
	setBrowserHeaders(req, f.pickUserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", nil, fmt.Errorf("read body: %w", err)
	}

	encoding := strings.ToLower(resp.Header.Get("Content-Encoding"))
	body, err := decompress(raw, encoding)
	if err != nil {
		f.logger.Warn("decompression failed, using raw body", "url", pageURL, "encoding", encoding, "error", err)
		body = raw
	}

	text, err := decodeCharset(body, resp.Header.Get("Content-Type"))
	if err != nil {
		text = string(body)
	}

	return text, &Metadata{
		StatusCode:      resp.StatusCode,
		Header:          resp.Header,
		FinalURL:        resp.Request.URL.String(),
		ContentEncoding: encoding,
	}, nil
}

func (f *HTTPFetcher) pickUserAgent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts.UserAgents[f.rng.Intn(len(f.opts.UserAgents))]
}

func setBrowserHeaders(req *http.Request, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}

// decompress undoes the content encoding. Setting Accept-Encoding by hand
// disables the transport's transparent gzip handling.
func decompress(body []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		if r, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer r.Close()
			if out, err := io.ReadAll(r); err == nil {
				return out, nil
			}
		}
		// raw DEFLATE without the zlib wrapper
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return body, nil
	}
}

func decodeCharset(body []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Edge/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	}
}
