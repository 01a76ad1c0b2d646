package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/ad-product-extractor/internal/models"
)

const shopifyMetaMarker = "var meta = "

var shopifyScriptImagePattern = regexp.MustCompile(`https?://[^\s<>"']+?(?:jpg|jpeg|png|webp)`)

var (
	shopifyGallerySelectors = []string{
		".product-gallery__image img",
		".product__media-item img",
		".product-single__media img",
		".product-single__photo img",
		`[data-product-media-type="image"] img`,
		".product__slide img",
		".product-single__thumbnail img",
	}
	shopifyTitleSelectors = []string{
		".product__title h1",
		".product-single__title",
		"h1.product-title",
		`h1[itemprop="name"]`,
	}
	shopifyPriceSelectors = []string{
		".price-item--sale",
		".price__current",
		".product__price",
		".product-single__price",
		"[data-product-price]",
	}
)

// ShopifyMeta reads product media from the storefront's `var meta = {...};` script.
type ShopifyMeta struct{}

func (s *ShopifyMeta) Name() string { return "shopify_meta" }

type shopifyMeta struct {
	Product struct {
		Media []struct {
			MediaType    string `json:"media_type"`
			Src          string `json:"src"`
			PreviewImage struct {
				Src string `json:"src"`
			} `json:"preview_image"`
		} `json:"media"`
	} `json:"product"`
}

func (s *ShopifyMeta) Extract(ctx context.Context, page *Page, rec *models.ProductRecord) error {
	if page.Platform != PlatformShopify {
		return nil
	}

	var parseErr error
	page.Doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		idx := strings.Index(text, shopifyMetaMarker)
		if idx < 0 {
			return true
		}

		var meta shopifyMeta
		dec := json.NewDecoder(strings.NewReader(text[idx+len(shopifyMetaMarker):]))
		if err := dec.Decode(&meta); err != nil {
			parseErr = fmt.Errorf("decode shopify meta: %w", err)
			return true
		}
		parseErr = nil

		for _, media := range meta.Product.Media {
			if rec.ImagesFull() {
				break
			}
			if media.MediaType != "image" {
				continue
			}
			src := media.Src
			if src == "" {
				src = media.PreviewImage.Src
			}
			if src != "" {
				addImage(page, rec, src)
			}
		}
		return false
	})
	return parseErr
}

// ShopifyGallery reads theme gallery markup and product image arrays in scripts.
type ShopifyGallery struct{}

func (s *ShopifyGallery) Name() string { return "shopify_gallery" }

func (s *ShopifyGallery) Extract(ctx context.Context, page *Page, rec *models.ProductRecord) error {
	if page.Platform != PlatformShopify {
		return nil
	}

	setTitleFromSelectors(page.Doc, rec, shopifyTitleSelectors)
	setPriceFromSelectors(page.Doc, rec, shopifyPriceSelectors)

	for _, selector := range shopifyGallerySelectors {
		if rec.ImagesFull() {
			return nil
		}
		page.Doc.Find(selector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			if src := firstAttr(img, "data-src", "data-original", "src"); src != "" {
				addImage(page, rec, src)
			}
			return !rec.ImagesFull()
		})
	}

	page.Doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(text, "productImages") && !strings.Contains(text, "product_images") {
			return true
		}
		for _, u := range shopifyScriptImagePattern.FindAllString(text, -1) {
			if rec.ImagesFull() {
				return false
			}
			addImage(page, rec, u)
		}
		return !rec.ImagesFull()
	})
	return nil
}
