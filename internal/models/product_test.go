package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductRecord(t *testing.T) {
	rec := NewProductRecord("https://www.example-store.com/products/mug")

	assert.Equal(t, "EXAMPLE-STORE", rec.BrandName)
	assert.Equal(t, DefaultDiscountPercent, rec.DiscountPercent)
	assert.Equal(t, DefaultShipping, rec.Shipping)
	assert.Equal(t, DefaultFeatures, rec.Features)
	assert.Empty(t, rec.Images)
	assert.Nil(t, rec.Price)
	assert.Nil(t, rec.OriginalPrice)
}

func TestBrandFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"www prefix", "https://www.shop.com/p/1", "SHOP"},
		{"plain host", "https://store.myshopify.com/products/a", "STORE"},
		{"with port", "http://localhost:8080/p", "LOCALHOST"},
		{"invalid url", "::not a url", ""},
		{"no host", "/relative/path", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BrandFromURL(tt.url))
		})
	}
}

func TestSetPrice(t *testing.T) {
	rec := NewProductRecord("https://shop.com/p")

	require.True(t, rec.SetPrice(49.99))
	assert.InDelta(t, 49.99, *rec.Price, 1e-9)
	assert.InDelta(t, 59.988, *rec.OriginalPrice, 1e-9)

	assert.False(t, rec.SetPrice(10), "first price wins")
	assert.InDelta(t, 49.99, *rec.Price, 1e-9)
}

func TestSetPriceRejectsNegative(t *testing.T) {
	rec := NewProductRecord("https://shop.com/p")
	assert.False(t, rec.SetPrice(-1))
	assert.False(t, rec.HasPrice())

	assert.True(t, rec.SetPrice(0))
	assert.True(t, rec.HasPrice())
}

func TestSetTitle(t *testing.T) {
	rec := NewProductRecord("https://shop.com/p")

	assert.False(t, rec.SetTitle("   "))
	assert.True(t, rec.SetTitle("  Ceramic Mug "))
	assert.False(t, rec.SetTitle("Other"))
	assert.Equal(t, "Ceramic Mug", *rec.Title)
}

func TestAddImageCapAndDedupe(t *testing.T) {
	rec := NewProductRecord("https://shop.com/p")

	assert.True(t, rec.AddImage("https://cdn.shop.com/a.jpg?v=1"))
	assert.False(t, rec.AddImage("https://cdn.shop.com/a.jpg?v=2"), "same base URL")
	assert.True(t, rec.HasImage("https://cdn.shop.com/a.jpg"))

	for i := 0; i < 10; i++ {
		rec.AddImage(fmt.Sprintf("https://cdn.shop.com/%d.jpg", i))
	}
	assert.Len(t, rec.Images, MaxImages)
	assert.True(t, rec.ImagesFull())
	assert.False(t, rec.AddImage("https://cdn.shop.com/late.jpg"))

	keys := map[string]bool{}
	for _, img := range rec.Images {
		key := ImageKey(img)
		assert.False(t, keys[key], "duplicate key %s", key)
		keys[key] = true
	}
}

func TestValidatedTracking(t *testing.T) {
	rec := NewProductRecord("https://shop.com/p")
	rec.AddImage("https://cdn.shop.com/a.jpg")
	rec.AddValidatedImage("https://cdn.shop.com/b.jpg")

	assert.False(t, rec.IsValidated("https://cdn.shop.com/a.jpg"))
	assert.True(t, rec.IsValidated("https://cdn.shop.com/b.jpg"))

	rec.ReplaceImages([]string{"https://cdn.shop.com/b.jpg"}, true)
	assert.Equal(t, []string{"https://cdn.shop.com/b.jpg"}, rec.Images)
	assert.False(t, rec.HasImage("https://cdn.shop.com/a.jpg"))
}

func TestFinalize(t *testing.T) {
	rec := NewProductRecord("https://shop.com/p")
	rec.Finalize()
	assert.Empty(t, rec.ImageURL)

	rec.AddImage("https://cdn.shop.com/a.jpg")
	rec.AddImage("https://cdn.shop.com/b.jpg")
	rec.Finalize()
	assert.Equal(t, "https://cdn.shop.com/a.jpg", rec.ImageURL)
}

func TestValidate(t *testing.T) {
	rec := NewProductRecord("https://shop.com/p")

	err := rec.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.Contains(t, err.Error(), "title")

	rec.SetTitle("Mug")
	err = rec.Validate()
	assert.Contains(t, err.Error(), "price")

	rec.SetPrice(12)
	err = rec.Validate()
	assert.Contains(t, err.Error(), "images")

	rec.AddImage("https://cdn.shop.com/a.jpg")
	assert.NoError(t, rec.Validate())
}

func TestImageKey(t *testing.T) {
	assert.Equal(t, "https://a.com/x.jpg", ImageKey("https://a.com/x.jpg?w=100"))
	assert.Equal(t, "https://a.com/x.jpg", ImageKey("https://a.com/x.jpg#frag"))
	assert.Equal(t, "data:image/png;base64,AAA?", ImageKey("data:image/png;base64,AAA?"))
}
