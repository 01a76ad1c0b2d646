package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/maltedev/ad-product-extractor/internal/fetcher"
	"github.com/maltedev/ad-product-extractor/internal/models"
	"github.com/maltedev/ad-product-extractor/internal/parser"
)

var (
	ErrInvalidURL        = errors.New("invalid product URL")
	ErrFetchFailed       = errors.New("page fetch failed")
	ErrValidation        = errors.New("product validation failed")
	ErrImageInaccessible = errors.New("image not accessible")
)

// Fetcher retrieves the raw text of a product page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, *fetcher.Metadata, error)
}

// VisualLocator is the last-resort image source. Its output is trusted as is.
type VisualLocator interface {
	Locate(ctx context.Context, url string) []string
}

type Extractor struct {
	fetcher    Fetcher
	checker    parser.ImageChecker
	locator    VisualLocator
	strategies []parser.Strategy
	headClient *http.Client
	logger     *slog.Logger
}

type Option func(*Extractor)

// WithImageChecker sets the quality and duplicate gate applied to images.
func WithImageChecker(c parser.ImageChecker) Option {
	return func(e *Extractor) { e.checker = c }
}

func WithVisualLocator(l VisualLocator) Option {
	return func(e *Extractor) { e.locator = l }
}

// WithStrategies replaces the default extraction cascade.
func WithStrategies(s ...parser.Strategy) Option {
	return func(e *Extractor) { e.strategies = s }
}

// WithHTTPClient sets the client used for image accessibility checks.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.headClient = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

func New(f Fetcher, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher:    f,
		headClient: &http.Client{Timeout: imageCheckTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategies == nil {
		e.strategies = parser.DefaultStrategies(e.checker)
	}
	e.logger = e.logger.With("component", "extractor")
	return e
}

// StrategyNames lists the cascade in the order it runs.
func (e *Extractor) StrategyNames() []string {
	names := make([]string, 0, len(e.strategies))
	for _, s := range e.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Extract runs the strategy cascade against one product page. Only a failed
// page fetch, an unusable URL or a cancelled ctx is an error; a sparse record
// is a valid result.
func (e *Extractor) Extract(ctx context.Context, productURL string) (*models.ProductRecord, error) {
	if err := checkURL(productURL); err != nil {
		return nil, err
	}

	text, meta, err := e.fetcher.Fetch(ctx, productURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	base := productURL
	if meta != nil && meta.FinalURL != "" {
		base = meta.FinalURL
	}

	page, err := parser.NewPage(base, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	e.logger.Info("extracting product", "url", productURL, "platform", page.Platform)

	rec := models.NewProductRecord(productURL)
	e.runStrategies(ctx, page, rec)
	e.finalizeImages(ctx, productURL, rec)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extraction of %s interrupted: %w", productURL, err)
	}
	rec.Finalize()

	e.logger.Info("extraction complete",
		"url", productURL,
		"has_title", rec.HasTitle(),
		"has_price", rec.HasPrice(),
		"images", len(rec.Images),
	)
	return rec, nil
}

func (e *Extractor) runStrategies(ctx context.Context, page *parser.Page, rec *models.ProductRecord) {
	for _, s := range e.strategies {
		if rec.ImagesFull() && rec.HasTitle() && rec.HasPrice() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		before := len(rec.Images)
		if err := runStrategy(ctx, s, page, rec); err != nil {
			e.logger.Warn("strategy failed", "strategy", s.Name(), "url", page.URL.String(), "error", err)
			continue
		}
		if added := len(rec.Images) - before; added > 0 {
			e.logger.Debug("strategy found images", "strategy", s.Name(), "added", added)
		}
	}
}

func runStrategy(ctx context.Context, s parser.Strategy, page *parser.Page, rec *models.ProductRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", s.Name(), r)
		}
	}()
	return s.Extract(ctx, page, rec)
}

// finalizeImages checks every image not already accepted inline and falls
// back to the visual locator when none survive.
func (e *Extractor) finalizeImages(ctx context.Context, productURL string, rec *models.ProductRecord) {
	kept := make([]string, 0, len(rec.Images))
	for _, img := range rec.Images {
		switch {
		case rec.IsValidated(img), strings.HasPrefix(img, "data:image"):
			kept = append(kept, img)
		case e.checker == nil:
			kept = append(kept, img)
		case e.checker.Accept(ctx, img, kept):
			kept = append(kept, img)
		default:
			e.logger.Debug("image dropped in final pass", "url", img)
		}
	}

	if len(kept) == 0 && e.locator != nil {
		e.logger.Info("no usable images, trying visual fallback", "url", productURL)
		kept = e.locator.Locate(ctx, productURL)
	}

	rec.ReplaceImages(kept, true)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return nil
}
