package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/ad-product-extractor/internal/app"
	"github.com/maltedev/ad-product-extractor/internal/config"
	"github.com/maltedev/ad-product-extractor/internal/fetcher"
	"github.com/maltedev/ad-product-extractor/internal/logger"
	"github.com/maltedev/ad-product-extractor/internal/models"
	"github.com/maltedev/ad-product-extractor/internal/ratelimit"
	"github.com/maltedev/ad-product-extractor/internal/storage"
)

// Result is one JSON line on stdout.
type Result struct {
	URL    string                `json:"url"`
	Record *models.ProductRecord `json:"record,omitempty"`
	Valid  *bool                 `json:"valid,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func main() {
	var (
		productURL  = flag.String("url", "", "Product page URL")
		urlFile     = flag.String("file", "", "File with one product URL per line")
		useBrowser  = flag.Bool("browser", false, "Render pages with a headless browser")
		visual      = flag.Bool("visual", false, "Fall back to screenshot region detection (implies -browser)")
		validate    = flag.Bool("validate", false, "Check required fields on every record")
		checkImages = flag.Bool("check-images", false, "Also confirm every image URL answers HEAD with 200 (implies -validate)")
		stateFile   = flag.String("state", "", "Progress file; completed URLs are skipped on rerun")
		retries     = flag.Int("retries", 1, "Extra attempts for failed URLs within a run")
		configFile  = flag.String("config", "", "Config file (defaults to ./config.yaml when present)")
		shopURL     = flag.String("shop", "", "Shopify store whose products.json catalog is added to the batch")
		shopLimit   = flag.Int("shop-limit", 0, "Maximum products taken from -shop (0 reads the whole catalog)")
		amazon      = flag.Bool("amazon", false, "Enable the Amazon detail-page strategy")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *useBrowser || *visual {
		cfg.Browser.Enabled = true
	}
	if *visual {
		cfg.Vision.Enabled = true
	}
	if *stateFile != "" {
		cfg.Batch.StateFile = *stateFile
	}
	if *amazon {
		cfg.Extract.Amazon = true
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	urls := flag.Args()
	if *productURL != "" {
		urls = append([]string{*productURL}, urls...)
	}
	if *urlFile != "" {
		f, err := os.Open(*urlFile)
		if err != nil {
			log.Error("failed to open url file", "file", *urlFile, "error", err)
			os.Exit(1)
		}
		fromFile, err := readURLs(f)
		f.Close()
		if err != nil {
			log.Error("failed to read url file", "file", *urlFile, "error", err)
			os.Exit(1)
		}
		urls = append(urls, fromFile...)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	if *shopURL != "" {
		catalog, err := fetcher.New(cfg.Fetcher.Options(), log).ShopifyProductURLs(ctx, *shopURL, *shopLimit)
		if err != nil {
			log.Error("failed to read shop catalog", "shop", *shopURL, "found", len(catalog), "error", err)
			os.Exit(1)
		}
		log.Info("shop catalog read", "shop", *shopURL, "products", len(catalog))
		urls = append(urls, catalog...)
	}
	if len(urls) == 0 && cfg.Batch.StateFile == "" {
		fmt.Fprintln(os.Stderr, "provide a product URL with -url, -file, -shop or as arguments")
		flag.Usage()
		os.Exit(2)
	}

	pipeline, err := app.NewPipeline(cfg, log)
	if err != nil {
		log.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	r := &runner{
		extractor:   pipeline.Extractor,
		limiter:     ratelimit.NewHostLimiter(cfg.Batch.RateLimitMin, cfg.Batch.RateLimitMax),
		validate:    *validate || *checkImages,
		checkImages: *checkImages,
		retries:     *retries,
		queueSize:   cfg.Batch.QueueSize,
		out:         json.NewEncoder(os.Stdout),
		logger:      log.With("component", "batch"),
	}

	if cfg.Batch.StateFile != "" {
		r.progress, err = storage.NewProgressStore(cfg.Batch.StateFile)
		if err != nil {
			log.Error("failed to open progress file", "error", err)
			os.Exit(1)
		}
	}

	failed, err := r.run(ctx, urls)
	if err != nil {
		log.Error("batch aborted", "error", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// readURLs reads one URL per line, skipping blanks and # comments.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}

var errInterrupted = errors.New("interrupted")
