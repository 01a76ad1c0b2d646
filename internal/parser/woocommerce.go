package parser

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/ad-product-extractor/internal/models"
)

var (
	wooPriceSelectors = []string{
		"p.price span.woocommerce-Price-amount bdi",
		".price .woocommerce-Price-amount",
		".summary .price .woocommerce-Price-amount",
		"[data-product-price]",
		".price ins .woocommerce-Price-amount",
		".price > .woocommerce-Price-amount",
	}
	wooTitleSelectors = []string{".product_title"}
)

// WooCommerce reads the standard WooCommerce product template.
type WooCommerce struct{}

func (s *WooCommerce) Name() string { return "woocommerce" }

func (s *WooCommerce) Extract(ctx context.Context, page *Page, rec *models.ProductRecord) error {
	if page.Platform != PlatformWooCommerce {
		return nil
	}
	doc := page.Doc

	setTitleFromSelectors(doc, rec, wooTitleSelectors)
	setPriceFromSelectors(doc, rec, wooPriceSelectors)

	main := doc.Find(".woocommerce-product-gallery__image img").First()
	if src := firstAttr(main, "data-src", "src"); src != "" {
		addImage(page, rec, src)
	}
	doc.Find(".woocommerce-product-gallery__image a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if href := firstAttr(a, "href"); href != "" {
			addImage(page, rec, href)
		}
		return !rec.ImagesFull()
	})

	rating := doc.Find(".woocommerce-product-rating .rating").First()
	reviews := doc.Find(".woocommerce-review-link").First()
	if rating.Length() > 0 && reviews.Length() > 0 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(rating.AttrOr("value", "0")), 64); err == nil {
			rec.SetRating(v)
			count := 0
			if digits := digitsOnly(reviews.Text()); digits != "" {
				count, _ = strconv.Atoi(digits)
			}
			rec.SetReviewCount(count)
		}
	}
	return nil
}
