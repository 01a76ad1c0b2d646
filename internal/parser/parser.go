// Package parser holds the extraction strategies run against a product page.
package parser

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/ad-product-extractor/internal/models"
	"github.com/maltedev/ad-product-extractor/internal/urlnorm"
)

type Platform string

const (
	PlatformGeneric     Platform = "generic"
	PlatformWooCommerce Platform = "woocommerce"
	PlatformShopify     Platform = "shopify"
)

// DetectPlatform classifies a page by storefront markers in its raw text.
func DetectPlatform(raw string) Platform {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "woocommerce"):
		return PlatformWooCommerce
	case strings.Contains(lower, "shopify"):
		return PlatformShopify
	default:
		return PlatformGeneric
	}
}

// Page is a fetched product page ready for extraction.
type Page struct {
	URL      *url.URL
	Raw      string
	Doc      *goquery.Document
	Platform Platform
}

func NewPage(pageURL, raw string) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &Page{
		URL:      u,
		Raw:      raw,
		Doc:      doc,
		Platform: DetectPlatform(raw),
	}, nil
}

// Strategy fills whatever fields of rec it can find on the page.
// Strategies never overwrite a field that is already set.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, page *Page, rec *models.ProductRecord) error
}

// ImageChecker decides whether a candidate image is acceptable given the
// images already held.
type ImageChecker interface {
	Accept(ctx context.Context, rawURL string, accepted []string) bool
}

// DefaultStrategies returns the extraction cascade in priority order.
// checker may be nil, in which case images found by element heuristics are
// accepted unchecked.
func DefaultStrategies(checker ImageChecker) []Strategy {
	return []Strategy{
		&JSONLDProduct{},
		&OpenGraph{},
		&ShopifyMeta{},
		&WooCommerce{},
		&ShopifyGallery{},
		&GenericSelectors{Checker: checker},
		&ScriptImages{},
		&JSONLDImageFields{},
	}
}

// WithAmazon returns strategies with the Amazon detail-page strategy inserted
// after the platform strategies. Amazon pages classify as generic, so the
// default cascade never reads their site-specific markup.
func WithAmazon(strategies []Strategy) []Strategy {
	out := make([]Strategy, 0, len(strategies)+1)
	inserted := false
	for _, s := range strategies {
		if !inserted && s.Name() == "shopify_gallery" {
			out = append(out, &Amazon{})
			inserted = true
		}
		out = append(out, s)
	}
	if !inserted {
		out = append(out, &Amazon{})
	}
	return out
}

// prepareImage resolves and normalizes a candidate reference. It returns
// false for references that cannot be an image URL.
func prepareImage(page *Page, ref string) (string, bool) {
	src := urlnorm.Resolve(page.URL, ref)
	if src == "" || !urlnorm.IsFetchable(src) {
		return "", false
	}
	return urlnorm.Normalize(src), true
}

// addImage resolves, normalizes and appends a candidate found by a strategy
// that does not check images itself.
func addImage(page *Page, rec *models.ProductRecord, ref string) bool {
	src, ok := prepareImage(page, ref)
	if !ok {
		return false
	}
	return rec.AddImage(src)
}

// parsePrice keeps only digits and dots before parsing.
func parsePrice(text string) (float64, bool) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	price, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func digitsOnly(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// metaContent returns the content of the first meta tag whose property or name matches.
func metaContent(doc *goquery.Document, key string) (string, bool) {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, key, key)).First()
	if sel.Length() == 0 {
		return "", false
	}
	content, ok := sel.Attr("content")
	content = strings.TrimSpace(content)
	return content, ok && content != ""
}

// firstAttr returns the first non-empty attribute among names.
func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func setPriceFromSelectors(doc *goquery.Document, rec *models.ProductRecord, selectors []string) {
	if rec.HasPrice() {
		return
	}
	for _, selector := range selectors {
		el := doc.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		if price, ok := parsePrice(el.Text()); ok {
			rec.SetPrice(price)
			return
		}
	}
}

func setTitleFromSelectors(doc *goquery.Document, rec *models.ProductRecord, selectors []string) {
	if rec.HasTitle() {
		return
	}
	for _, selector := range selectors {
		if rec.SetTitle(doc.Find(selector).First().Text()) {
			return
		}
	}
}
