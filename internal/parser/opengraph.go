package parser

import (
	"context"

	"github.com/maltedev/ad-product-extractor/internal/models"
)

// OpenGraph reads og:image, og:title and the product price meta tags.
// og:image is only used when nothing earlier produced an image.
type OpenGraph struct{}

func (s *OpenGraph) Name() string { return "open_graph" }

func (s *OpenGraph) Extract(ctx context.Context, page *Page, rec *models.ProductRecord) error {
	if len(rec.Images) == 0 {
		if img, ok := metaContent(page.Doc, "og:image"); ok {
			addImage(page, rec, img)
		}
	}

	if title, ok := metaContent(page.Doc, "og:title"); ok {
		rec.SetTitle(title)
	}

	if !rec.HasPrice() {
		for _, key := range []string{"product:price:amount", "og:price:amount"} {
			content, ok := metaContent(page.Doc, key)
			if !ok {
				continue
			}
			if price, ok := parsePrice(content); ok {
				rec.SetPrice(price)
				break
			}
		}
	}
	return nil
}
