package parser

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/ad-product-extractor/internal/models"
)

var (
	amazonPriceSelectors = []string{
		".a-price .a-offscreen",
		"span.a-price.apexPriceToPay .a-offscreen",
		"#priceblock_dealprice",
		"#priceblock_ourprice",
		".a-price.a-text-price.header-price",
	}

	amazonRatingPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)

	// Thumbnail size tokens rewritten to the large rendition.
	amazonThumbReplacer = strings.NewReplacer("_AC_US40_", "_AC_SL1500_", "_SS40_", "_SL1500_")
)

// Amazon reads Amazon detail pages, which carry no Product JSON-LD.
type Amazon struct{}

func (s *Amazon) Name() string { return "amazon" }

func (s *Amazon) Extract(ctx context.Context, page *Page, rec *models.ProductRecord) error {
	if !isAmazonHost(page.URL.Hostname()) {
		return nil
	}
	doc := page.Doc

	rec.SetTitle(doc.Find("#productTitle").First().Text())

	if !rec.HasPrice() {
		for _, selector := range amazonPriceSelectors {
			if price, ok := parseLocalizedPrice(doc.Find(selector).First().Text()); ok {
				rec.SetPrice(price)
				break
			}
		}
	}

	landing := doc.Find("#landingImage").First()
	if src := firstAttr(landing, "data-old-hires", "src"); src != "" {
		addImage(page, rec, src)
	}
	doc.Find("#altImages ul li img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if src := firstAttr(img, "src"); src != "" && !strings.Contains(src, "play-button") {
			addImage(page, rec, amazonThumbReplacer.Replace(src))
		}
		return !rec.ImagesFull()
	})

	ratingText := firstAttr(doc.Find("#acrPopover").First(), "title")
	if ratingText == "" {
		ratingText = doc.Find("#acrPopover .a-icon-alt").First().Text()
	}
	if m := amazonRatingPattern.FindString(ratingText); m != "" {
		if v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64); err == nil {
			rec.SetRating(v)
			if digits := digitsOnly(doc.Find("#acrCustomerReviewText").First().Text()); digits != "" {
				if count, err := strconv.Atoi(digits); err == nil {
					rec.SetReviewCount(count)
				}
			}
		}
	}

	return nil
}

func isAmazonHost(host string) bool {
	host = strings.ToLower(host)
	return strings.HasPrefix(host, "amazon.") || strings.Contains(host, ".amazon.")
}

// parseLocalizedPrice handles both "1,299.00" and "1.299,00" notations.
func parseLocalizedPrice(text string) (float64, bool) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma > lastDot && len(s)-lastComma-1 != 3:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	price, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}
