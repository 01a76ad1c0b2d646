// Package app assembles the extraction pipeline from configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/maltedev/ad-product-extractor/internal/browser"
	"github.com/maltedev/ad-product-extractor/internal/config"
	"github.com/maltedev/ad-product-extractor/internal/fetcher"
	"github.com/maltedev/ad-product-extractor/internal/imaging"
	"github.com/maltedev/ad-product-extractor/internal/parser"
	"github.com/maltedev/ad-product-extractor/internal/scraper"
	"github.com/maltedev/ad-product-extractor/internal/vision"
)

// Pipeline is a configured extractor plus whatever must be closed after it.
type Pipeline struct {
	Extractor *scraper.Extractor
	Gate      *imaging.Gate

	browser *browser.Browser
}

// NewPipeline builds the extractor. With the browser enabled pages are
// rendered by playwright; otherwise the plain HTTP fetcher is used.
func NewPipeline(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	loader := imaging.NewLoader(imaging.WithTimeout(cfg.Images.FetchTimeout))
	gate := imaging.NewGate(
		imaging.NewValidator(loader, cfg.Images.Thresholds(), logger),
		imaging.NewDuplicateDetector(loader, cfg.Images.DuplicateThreshold, cfg.Images.FingerprintSize, logger),
	)

	p := &Pipeline{Gate: gate}
	opts := []scraper.Option{
		scraper.WithImageChecker(gate),
		scraper.WithLogger(logger),
	}
	if cfg.Extract.Amazon {
		opts = append(opts, scraper.WithStrategies(parser.WithAmazon(parser.DefaultStrategies(gate))...))
	}

	var f scraper.Fetcher
	if cfg.Browser.Enabled {
		b, err := browser.New(cfg.Browser.Options(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
		p.browser = b
		f = b

		if cfg.Vision.Enabled {
			opts = append(opts, scraper.WithVisualLocator(vision.NewLocator(b, cfg.Vision.Options(), logger)))
		}
	} else {
		f = fetcher.New(cfg.Fetcher.Options(), logger)
	}

	p.Extractor = scraper.New(f, opts...)
	logger.Debug("pipeline ready", "browser", cfg.Browser.Enabled, "strategies", p.Extractor.StrategyNames())
	return p, nil
}

func (p *Pipeline) Close() error {
	if p.browser != nil {
		return p.browser.Close()
	}
	return nil
}
