// Package vision finds product imagery on a rendered page when markup yields nothing.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"

	"github.com/maltedev/ad-product-extractor/internal/imaging"
)

// Screenshotter renders a URL to an encoded image.
type Screenshotter interface {
	Screenshot(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	LowThreshold  int
	HighThreshold int
	MinWidth      int
	MinHeight     int
	MaxRegions    int
	// MaxHeight crops very long screenshots before edge detection.
	MaxHeight int
}

func DefaultOptions() Options {
	return Options{
		LowThreshold:  50,
		HighThreshold: 150,
		MinWidth:      200,
		MinHeight:     200,
		MaxRegions:    4,
		MaxHeight:     8000,
	}
}

// Locator crops large visually distinct regions out of a page screenshot.
type Locator struct {
	shooter Screenshotter
	opts    Options
	logger  *slog.Logger
}

func NewLocator(shooter Screenshotter, opts Options, logger *slog.Logger) *Locator {
	if opts.MaxRegions <= 0 {
		opts.MaxRegions = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		shooter: shooter,
		opts:    opts,
		logger:  logger.With("component", "visual_locator"),
	}
}

// Locate returns up to MaxRegions PNG data URLs. Any failure yields an empty result.
func (l *Locator) Locate(ctx context.Context, url string) []string {
	shot, err := l.shooter.Screenshot(ctx, url)
	if err != nil {
		l.logger.Warn("screenshot failed", "url", url, "error", err)
		return []string{}
	}

	img, err := imaging.Decode(shot)
	if err != nil {
		l.logger.Warn("screenshot decode failed", "url", url, "error", err)
		return []string{}
	}

	crops, err := l.Crops(img)
	if err != nil {
		l.logger.Warn("region crop failed", "url", url, "error", err)
		return []string{}
	}

	l.logger.Info("visual regions located", "url", url, "count", len(crops))
	return crops
}

// Crops runs detection on an already decoded screenshot.
func (l *Locator) Crops(img image.Image) ([]string, error) {
	b := img.Bounds()
	if l.opts.MaxHeight > 0 && b.Dy() > l.opts.MaxHeight {
		b.Max.Y = b.Min.Y + l.opts.MaxHeight
	}

	gray := toGray(subImage(img, b))
	edges := Canny(gray, l.opts.LowThreshold, l.opts.HighThreshold)
	boxes := Outermost(LargerThan(Regions(edges), l.opts.MinWidth, l.opts.MinHeight))

	out := make([]string, 0, l.opts.MaxRegions)
	for _, box := range boxes {
		if len(out) >= l.opts.MaxRegions {
			break
		}
		payload, err := encodeCrop(img, box.Add(b.Min))
		if err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, nil
}

func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	return img
}

func encodeCrop(img image.Image, r image.Rectangle) (string, error) {
	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return "", fmt.Errorf("encode crop: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
