package parser

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/ad-product-extractor/internal/models"
)

// JSONLDProduct reads schema.org Product blocks.
type JSONLDProduct struct{}

func (s *JSONLDProduct) Name() string { return "jsonld_product" }

func (s *JSONLDProduct) Extract(ctx context.Context, page *Page, rec *models.ProductRecord) error {
	for _, block := range jsonLDBlocks(page.Doc) {
		for _, node := range jsonLDNodes(block) {
			if !isProductNode(node) {
				continue
			}

			if name, ok := node["name"].(string); ok {
				rec.SetTitle(name)
			}
			if price, ok := offerPrice(node["offers"]); ok {
				rec.SetPrice(price)
			}
			for _, img := range imageRefs(node["image"]) {
				if rec.ImagesFull() {
					break
				}
				addImage(page, rec, img)
			}
			if rating, ok := node["aggregateRating"].(map[string]any); ok {
				if v, ok := number(rating["ratingValue"]); ok {
					rec.SetRating(v)
				}
				for _, key := range []string{"reviewCount", "ratingCount"} {
					if v, ok := number(rating[key]); ok {
						rec.SetReviewCount(int(v))
						break
					}
				}
			}
			return nil
		}
	}
	return nil
}

// JSONLDImageFields collects image-like fields from any top-level JSON-LD object.
type JSONLDImageFields struct{}

func (s *JSONLDImageFields) Name() string { return "jsonld_image_fields" }

func (s *JSONLDImageFields) Extract(ctx context.Context, page *Page, rec *models.ProductRecord) error {
	for _, block := range jsonLDBlocks(page.Doc) {
		obj, ok := block.(map[string]any)
		if !ok {
			continue
		}
		for _, field := range []string{"image", "images", "photo", "photos", "thumbnail"} {
			for _, img := range imageRefs(obj[field]) {
				if rec.ImagesFull() {
					return nil
				}
				addImage(page, rec, img)
			}
		}
	}
	return nil
}

// jsonLDBlocks decodes every ld+json script, skipping the ones that do not parse.
func jsonLDBlocks(doc *goquery.Document) []any {
	var blocks []any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return
		}
		blocks = append(blocks, v)
	})
	return blocks
}

// jsonLDNodes flattens a block into its candidate objects: the block itself,
// array members and @graph members.
func jsonLDNodes(block any) []map[string]any {
	var nodes []map[string]any
	switch v := block.(type) {
	case map[string]any:
		nodes = append(nodes, v)
		if graph, ok := v["@graph"].([]any); ok {
			for _, item := range graph {
				if m, ok := item.(map[string]any); ok {
					nodes = append(nodes, m)
				}
			}
		}
	case []any:
		for _, item := range v {
			nodes = append(nodes, jsonLDNodes(item)...)
		}
	}
	return nodes
}

func isProductNode(node map[string]any) bool {
	switch t := node["@type"].(type) {
	case string:
		return t == "Product"
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func offerPrice(offers any) (float64, bool) {
	switch v := offers.(type) {
	case map[string]any:
		for _, key := range []string{"price", "lowPrice"} {
			if p, ok := number(v[key]); ok {
				return p, true
			}
		}
	case []any:
		if len(v) > 0 {
			return offerPrice(v[0])
		}
	}
	return 0, false
}

// imageRefs accepts a URL string, an ImageObject, or a list of either.
func imageRefs(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case map[string]any:
		for _, key := range []string{"url", "contentUrl"} {
			if s, ok := t[key].(string); ok {
				return []string{s}
			}
		}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, imageRefs(item)...)
		}
		return out
	}
	return nil
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
		return parsePrice(t)
	}
	return 0, false
}
