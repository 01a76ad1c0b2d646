package imaging

import (
	"context"
	"image"
	"log/slog"
)

const (
	DefaultDuplicateThreshold = 0.95
	DefaultFingerprintSize    = 32
)

// DuplicateDetector compares images by the correlation of small grayscale thumbnails.
type DuplicateDetector struct {
	loader    *Loader
	threshold float64
	size      int
	logger    *slog.Logger
}

func NewDuplicateDetector(loader *Loader, threshold float64, size int, logger *slog.Logger) *DuplicateDetector {
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	if size <= 0 {
		size = DefaultFingerprintSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DuplicateDetector{
		loader:    loader,
		threshold: threshold,
		size:      size,
		logger:    logger.With("component", "duplicate_detector"),
	}
}

// IsDuplicate reports whether candidate looks like any of the existing images.
// A candidate that cannot be loaded is never a duplicate; an existing image
// that cannot be loaded is skipped.
func (d *DuplicateDetector) IsDuplicate(ctx context.Context, candidate string, existing []string) bool {
	if len(existing) == 0 {
		return false
	}

	img, err := d.loader.Load(ctx, candidate)
	if err != nil {
		d.logger.Debug("candidate load failed", "url", candidate, "error", err)
		return false
	}
	fp := grayFingerprint(img, d.size)

	for _, other := range existing {
		otherImg, err := d.loader.Load(ctx, other)
		if err != nil {
			d.logger.Debug("comparison skipped", "url", other, "error", err)
			continue
		}
		if d.similar(fp, otherImg) {
			d.logger.Debug("duplicate image", "url", candidate, "matches", other)
			return true
		}
	}
	return false
}

// Similar compares two decoded images directly.
func (d *DuplicateDetector) Similar(a, b image.Image) bool {
	return d.similar(grayFingerprint(a, d.size), b)
}

func (d *DuplicateDetector) similar(fp []float64, other image.Image) bool {
	corr, ok := pearson(fp, grayFingerprint(other, d.size))
	return ok && corr > d.threshold
}
