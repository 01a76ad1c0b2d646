package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/maltedev/ad-product-extractor/internal/models"
)

const imageCheckTimeout = 5 * time.Second

// CheckRecord verifies the fields a creative needs. With checkImages set it
// also confirms every remote image answers a HEAD request with 200.
func (e *Extractor) CheckRecord(ctx context.Context, rec *models.ProductRecord, checkImages bool) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if !checkImages {
		return nil
	}

	for _, img := range rec.Images {
		if !strings.HasPrefix(img, "http://") && !strings.HasPrefix(img, "https://") {
			continue
		}
		if err := e.headImage(ctx, img); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return nil
}

func (e *Extractor) headImage(ctx context.Context, img string) error {
	ctx, cancel := context.WithTimeout(ctx, imageCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, img, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrImageInaccessible, img, err)
	}

	resp, err := e.headClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrImageInaccessible, img, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrImageInaccessible, img, resp.StatusCode)
	}
	return nil
}
