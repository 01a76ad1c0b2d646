package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/ad-product-extractor/internal/models"
	"github.com/maltedev/ad-product-extractor/internal/urlnorm"
)

var genericImageSelectors = []string{
	`[id*="product"][id*="image"] img`, `[class*="product"][class*="image"] img`,
	`[id*="product"][id*="photo"] img`, `[class*="product"][class*="photo"] img`,
	`[id*="product"][id*="media"] img`, `[class*="product"][class*="media"] img`,
	`[id*="product"] img`, `[class*="product"] img`,

	`[class*="gallery"] img`, `[class*="slider"] img`, `[class*="carousel"] img`,
	`[class*="slide"] img`, `[class*="thumbnail"] img`, `[class*="preview"] img`,
	".swiper img", ".slick img", ".owl-carousel img",

	`[class*="main-image"]`, `[class*="featured-image"]`, `[class*="product-image"]`,
	`[class*="hero-image"]`, `[class*="zoom"]`, `[class*="magnify"]`,

	`[class*="image-container"] img`, `[class*="img-container"] img`,
	`[class*="photo-container"] img`, `[class*="media-container"] img`,

	"[data-image]", "[data-src]", "[data-lazy]", "[data-srcset]",
	"[data-zoom]", "[data-zoom-image]", "[data-large]", "[data-full]",
	"[data-slide]", "[data-thumb]", "[data-preview]",

	`[itemprop="image"]`, `[property="og:image"]`,

	"main img", "article img", ".content img", ".product img",
	".details img", ".info img", ".description img",
}

var imageAttributes = []string{
	"src", "data-src", "data-original", "data-lazy", "data-srcset",
	"data-zoom-image", "data-large", "data-full", "data-image",
	"data-zoom", "data-high-res", "data-retina", "srcset",
	"data-original-src", "data-lazy-src", "data-master",
	"data-thumb", "data-slide-img", "data-normal",
	"data-zoom-src", "data-large-src", "data-big",
	"data-super-size", "data-xlarge", "href",
}

// GenericSelectors walks common gallery markup and checks each candidate
// inline. For each element the first attribute yielding an accepted image wins.
type GenericSelectors struct {
	Checker ImageChecker
}

func (s *GenericSelectors) Name() string { return "generic_selectors" }

func (s *GenericSelectors) Extract(ctx context.Context, page *Page, rec *models.ProductRecord) error {
	rejected := make(map[string]bool)

	for _, selector := range genericImageSelectors {
		if rec.ImagesFull() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		page.Doc.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			s.extractElement(ctx, page, rec, el, rejected)
			return !rec.ImagesFull()
		})
	}
	return nil
}

func (s *GenericSelectors) extractElement(ctx context.Context, page *Page, rec *models.ProductRecord, el *goquery.Selection, rejected map[string]bool) {
	for _, attr := range imageAttributes {
		value, ok := el.Attr(attr)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if attr == "srcset" {
			value = firstSrcsetURL(value)
		}

		src, ok := prepareImage(page, value)
		if !ok || strings.HasPrefix(src, "data:") {
			continue
		}
		if rec.HasImage(src) || rejected[src] || !urlnorm.HasImageExtension(src) {
			continue
		}

		if s.Checker != nil && !s.Checker.Accept(ctx, src, rec.Images) {
			rejected[src] = true
			continue
		}
		if s.Checker != nil {
			rec.AddValidatedImage(src)
		} else {
			rec.AddImage(src)
		}
		return
	}
}

func firstSrcsetURL(srcset string) string {
	first := strings.TrimSpace(strings.Split(srcset, ",")[0])
	if fields := strings.Fields(first); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

var (
	scriptImagePattern  = regexp.MustCompile(`https?://[^\s<>"']+?(?:jpg|jpeg|png|webp|gif)`)
	scriptBase64Pattern = regexp.MustCompile(`data:image/[^;]+;base64,[a-zA-Z0-9+/]+=*`)
)

// ScriptImages scans inline scripts for image URLs and embedded base64 images.
type ScriptImages struct{}

func (s *ScriptImages) Name() string { return "script_images" }

func (s *ScriptImages) Extract(ctx context.Context, page *Page, rec *models.ProductRecord) error {
	page.Doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if text == "" {
			return true
		}
		for _, u := range scriptImagePattern.FindAllString(text, -1) {
			if rec.ImagesFull() {
				return false
			}
			addImage(page, rec, u)
		}
		for _, data := range scriptBase64Pattern.FindAllString(text, -1) {
			if rec.ImagesFull() {
				return false
			}
			rec.AddImage(data)
		}
		return !rec.ImagesFull()
	})
	return nil
}
