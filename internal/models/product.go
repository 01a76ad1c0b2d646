package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	MaxImages              = 4
	DefaultDiscountPercent = 20
	OriginalPriceFactor    = 1.2
	DefaultShipping        = "Free Shipping Available"
)

var ErrMissingField = errors.New("missing required field")

// DefaultFeatures is the static feature list attached to every record.
var DefaultFeatures = []string{"Premium Quality", "Limited Edition", "Exclusive Design"}

// ProductRecord accumulates the fields found for one product page.
type ProductRecord struct {
	Title           *string   `json:"title,omitempty"`
	Price           *float64  `json:"price,omitempty"`
	OriginalPrice   *float64  `json:"original_price,omitempty"`
	Images          []string  `json:"images"`
	ImageURL        string    `json:"image_url,omitempty"`
	BrandName       string    `json:"brand_name"`
	Rating          *float64  `json:"rating,omitempty"`
	ReviewCount     *int      `json:"review_count,omitempty"`
	Features        []string  `json:"features"`
	Shipping        string    `json:"shipping"`
	DiscountPercent int       `json:"discount_percent"`
	ProductURL      string    `json:"product_url"`
	ExtractedAt     time.Time `json:"extracted_at"`

	seen      map[string]struct{}
	validated map[string]bool
}

func NewProductRecord(productURL string) *ProductRecord {
	features := make([]string, len(DefaultFeatures))
	copy(features, DefaultFeatures)

	return &ProductRecord{
		Images:          make([]string, 0, MaxImages),
		BrandName:       BrandFromURL(productURL),
		Features:        features,
		Shipping:        DefaultShipping,
		DiscountPercent: DefaultDiscountPercent,
		ProductURL:      productURL,
		ExtractedAt:     time.Now(),
		seen:            make(map[string]struct{}),
		validated:       make(map[string]bool),
	}
}

func (r *ProductRecord) HasTitle() bool { return r.Title != nil }

func (r *ProductRecord) HasPrice() bool { return r.Price != nil }

// ImagesFull reports whether the image cap is reached.
func (r *ProductRecord) ImagesFull() bool { return len(r.Images) >= MaxImages }

// SetTitle sets the title unless one is already present. Blank titles are ignored.
func (r *ProductRecord) SetTitle(title string) bool {
	title = strings.TrimSpace(title)
	if r.Title != nil || title == "" {
		return false
	}
	r.Title = &title
	return true
}

// SetPrice sets the price and derived original price unless a price is already present.
func (r *ProductRecord) SetPrice(price float64) bool {
	if r.Price != nil || price < 0 {
		return false
	}
	original := price * OriginalPriceFactor
	r.Price = &price
	r.OriginalPrice = &original
	return true
}

func (r *ProductRecord) SetRating(rating float64) {
	if r.Rating == nil {
		r.Rating = &rating
	}
}

func (r *ProductRecord) SetReviewCount(count int) {
	if r.ReviewCount == nil {
		r.ReviewCount = &count
	}
}

// HasImage reports whether an image with the same base URL is already held.
func (r *ProductRecord) HasImage(raw string) bool {
	r.ensureMaps()
	_, ok := r.seen[ImageKey(raw)]
	return ok
}

// AddImage appends an image that has not been checked yet.
func (r *ProductRecord) AddImage(raw string) bool {
	return r.addImage(raw, false)
}

// AddValidatedImage appends an image that already passed quality and duplicate checks.
func (r *ProductRecord) AddValidatedImage(raw string) bool {
	return r.addImage(raw, true)
}

func (r *ProductRecord) addImage(raw string, validated bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || r.ImagesFull() {
		return false
	}
	r.ensureMaps()

	key := ImageKey(raw)
	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	r.validated[raw] = validated
	r.Images = append(r.Images, raw)
	return true
}

// IsValidated reports whether an image was accepted by the inline checks.
func (r *ProductRecord) IsValidated(raw string) bool {
	r.ensureMaps()
	return r.validated[raw]
}

// ReplaceImages swaps the image list for the given one, keeping order and cap.
func (r *ProductRecord) ReplaceImages(images []string, validated bool) {
	r.Images = make([]string, 0, MaxImages)
	r.seen = make(map[string]struct{})
	r.validated = make(map[string]bool)
	for _, img := range images {
		r.addImage(img, validated)
	}
}

// Finalize fills the primary image from the image list.
func (r *ProductRecord) Finalize() {
	if r.ImageURL == "" && len(r.Images) > 0 {
		r.ImageURL = r.Images[0]
	}
}

// Validate checks the fields a creative cannot be built without.
func (r *ProductRecord) Validate() error {
	if r.Title == nil || *r.Title == "" {
		return fmt.Errorf("%w: title", ErrMissingField)
	}
	if r.Price == nil {
		return fmt.Errorf("%w: price", ErrMissingField)
	}
	if len(r.Images) == 0 {
		return fmt.Errorf("%w: images", ErrMissingField)
	}
	return nil
}

func (r *ProductRecord) ensureMaps() {
	if r.seen == nil {
		r.seen = make(map[string]struct{})
		for _, img := range r.Images {
			r.seen[ImageKey(img)] = struct{}{}
		}
	}
	if r.validated == nil {
		r.validated = make(map[string]bool)
	}
}

// ImageKey is the identity used for image de-duplication: the URL without its query.
func ImageKey(raw string) string {
	if strings.HasPrefix(raw, "data:") {
		return raw
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// BrandFromURL derives a store name from the page host.
func BrandFromURL(productURL string) string {
	u, err := url.Parse(productURL)
	if err != nil || u.Host == "" {
		return ""
	}
	labels := strings.Split(strings.ToUpper(u.Hostname()), ".")
	if labels[0] == "WWW" && len(labels) > 1 {
		return labels[1]
	}
	return labels[0]
}
