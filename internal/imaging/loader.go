// Package imaging loads candidate images and scores them for quality and similarity.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
)

const (
	DefaultFetchTimeout = 5 * time.Second
	maxImageBytes       = 25 << 20
)

var (
	ErrImageFetch  = errors.New("image fetch failed")
	ErrImageDecode = errors.New("image decode failed")
	ErrDataURL     = errors.New("malformed data url")
)

// Loader retrieves and decodes images from http(s) or data: URLs.
type Loader struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

type LoaderOption func(*Loader)

func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) { l.client = c }
}

func WithTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithUserAgent(ua string) LoaderOption {
	return func(l *Loader) { l.userAgent = ua }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		client:  &http.Client{},
		timeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Bytes returns the raw image payload.
func (l *Loader) Bytes(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "data:") {
		return decodeDataURL(rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrImageFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	return data, nil
}

// Config returns the image dimensions without a full decode.
func (l *Loader) Config(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return cfg, nil
}

// Load fetches and decodes the image at rawURL.
func (l *Loader) Load(ctx context.Context, rawURL string) (image.Image, error) {
	data, err := l.Bytes(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return img, nil
}

func decodeDataURL(raw string) ([]byte, error) {
	comma := strings.IndexByte(raw, ',')
	if comma < 0 {
		return nil, ErrDataURL
	}
	meta, payload := raw[len("data:"):comma], raw[comma+1:]

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// some pages drop the padding
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrDataURL, err)
			}
		}
		return data, nil
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataURL, err)
	}
	return []byte(unescaped), nil
}
