package imaging

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
	"strings"
)

var (
	ErrTooSmall   = errors.New("image below minimum size")
	ErrBlank      = errors.New("image is blank")
	ErrCompressed = errors.New("image is over-compressed")
	ErrPixelated  = errors.New("image is pixelated")
)

type Thresholds struct {
	MinWidth            int
	MinHeight           int
	MinStdDev           float64
	MaxCompressionRatio float64
	MinPixelationDiff   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinWidth:            200,
		MinHeight:           200,
		MinStdDev:           10,
		MaxCompressionRatio: 0.1,
		MinPixelationDiff:   5,
	}
}

// Validator rejects images that would render poorly in a creative.
type Validator struct {
	loader     *Loader
	thresholds Thresholds
	logger     *slog.Logger
}

func NewValidator(loader *Loader, thresholds Thresholds, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		loader:     loader,
		thresholds: thresholds,
		logger:     logger.With("component", "image_validator"),
	}
}

// IsValid reports whether the image at rawURL passes every quality check.
// Embedded data: images are accepted as is. Any load failure rejects.
func (v *Validator) IsValid(ctx context.Context, rawURL string) bool {
	if strings.HasPrefix(rawURL, "data:") {
		return true
	}
	if err := v.Check(ctx, rawURL); err != nil {
		v.logger.Debug("image rejected", "url", rawURL, "reason", err)
		return false
	}
	return true
}

// Check returns the first failed quality criterion, or a load error.
func (v *Validator) Check(ctx context.Context, rawURL string) error {
	data, err := v.loader.Bytes(ctx, rawURL)
	if err != nil {
		return err
	}

	cfg, err := v.loader.Config(data)
	if err != nil {
		return err
	}
	if cfg.Width < v.thresholds.MinWidth || cfg.Height < v.thresholds.MinHeight {
		return ErrTooSmall
	}

	img, err := Decode(data)
	if err != nil {
		return err
	}
	return v.Score(img)
}

// Score applies the size and pixel statistics checks to a decoded image.
func (v *Validator) Score(img image.Image) error {
	b := img.Bounds()
	if b.Dx() < v.thresholds.MinWidth || b.Dy() < v.thresholds.MinHeight {
		return ErrTooSmall
	}

	rgba := toRGBA(img)
	if rgbStdDev(rgba) < v.thresholds.MinStdDev {
		return ErrBlank
	}
	if histogramEntropy(rgba) < v.thresholds.MaxCompressionRatio*math.Log2(256) {
		return ErrCompressed
	}
	if pixelationDiff(rgba) < v.thresholds.MinPixelationDiff {
		return ErrPixelated
	}
	return nil
}
