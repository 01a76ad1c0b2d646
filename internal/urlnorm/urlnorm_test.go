package urlnorm

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "keyword and width param",
			input:    "https://cdn.shop.com/products/mug_small.jpg?v=123&width=200",
			expected: "https://cdn.shop.com/products/mug_large.jpg",
		},
		{
			name:     "ajio size rewrite",
			input:    "https://assets.ajio.com/medias/sys_master/root/abc/-473Wx593H-469.jpg",
			expected: "https://assets.ajio.com/medias/sys_master/root/abc/-1200Wx1500H-469.jpg",
		},
		{
			name:     "size rewrite only on ajio",
			input:    "https://cdn.other.com/p/-473Wx593H-469.jpg",
			expected: "https://cdn.other.com/p/-473Wx593H-469.jpg",
		},
		{
			name:     "leading size param keeps query cut",
			input:    "https://a.com/img.jpg?w=100&h=200&crop=center",
			expected: "https://a.com/img.jpg",
		},
		{
			name:     "size and quality params",
			input:    "https://a.com/img.jpg?size=300x300&quality=80",
			expected: "https://a.com/img.jpg",
		},
		{
			name:     "case insensitive keyword",
			input:    "https://a.com/Mobile/x.JPG",
			expected: "https://a.com/large/x.JPG",
		},
		{
			name:     "thumb keyword",
			input:    "https://cdn.shopify.com/s/files/1/thumb.png",
			expected: "https://cdn.shopify.com/s/files/1/large.png",
		},
		{
			name:     "unrelated substring is rewritten",
			input:    "https://a.com/admin/x.jpg",
			expected: "https://a.com/adlarge/x.jpg",
		},
		{
			name:     "data url untouched",
			input:    "data:image/png;base64,iVBORw0KGgo=",
			expected: "data:image/png;base64,iVBORw0KGgo=",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://cdn.shop.com/products/mug_small.jpg?v=123&width=200",
		"https://a.com/smalsmall.jpg",
		"https://a.com/x.jpg?w=1&w=2&quality=3",
		"https://assets.ajio.com/x/-10Wx20H-a-thumb.jpg?size=1x1",
		"https://a.com/tinymobilelowmin.webp",
		"not even a url ?? &&",
		"https://cdn.example.com/" + strings.Repeat("smal", 20) + "l.jpg",
		"https://cdn.example.com/" + strings.Repeat("thum", 40) + "b.png?w=1",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestResolve(t *testing.T) {
	base, err := url.Parse("https://shop.com/products/mug?variant=1")
	require.NoError(t, err)

	tests := []struct {
		ref      string
		expected string
	}{
		{"//cdn.shop.com/a.jpg", "https://cdn.shop.com/a.jpg"},
		{"/files/a.jpg", "https://shop.com/files/a.jpg"},
		{"images/a.jpg", "https://shop.com/products/images/a.jpg"},
		{"https://x.com/a.jpg", "https://x.com/a.jpg"},
		{"data:image/png;base64,AA==", "data:image/png;base64,AA=="},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(base, tt.ref))
		})
	}

	assert.Equal(t, "https:/x", Resolve(nil, "https:/x"))
	assert.Equal(t, "a.jpg", Resolve(nil, "a.jpg"))
}

func TestHasImageExtension(t *testing.T) {
	assert.True(t, HasImageExtension("https://a.com/x.JPG?v=1"))
	assert.True(t, HasImageExtension("https://a.com/x.webp"))
	assert.True(t, HasImageExtension("https://a.com/x.gif#top"))
	assert.False(t, HasImageExtension("https://a.com/x.svg"))
	assert.False(t, HasImageExtension("https://a.com/jpg"))
}

func TestIsFetchable(t *testing.T) {
	assert.True(t, IsFetchable("https://a.com/x.jpg"))
	assert.True(t, IsFetchable("http://a.com/x.jpg"))
	assert.True(t, IsFetchable("data:image/png;base64,AA=="))
	assert.False(t, IsFetchable("ftp://a.com/x.jpg"))
	assert.False(t, IsFetchable("javascript:void(0)"))
}
