package parser

import (
	"testing"

	"github.com/maltedev/ad-product-extractor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const amazonDetailPage = `<html><body>
<span id="productTitle">  Leinen Bettwäsche Set  </span>
<span class="a-price"><span class="a-offscreen">49,99 €</span></span>
<div id="imgTagWrapperId"><img id="landingImage" src="https://m.media-amazon.com/images/I/main._AC_SX300_.jpg" data-old-hires="https://m.media-amazon.com/images/I/main._AC_SL1500_.jpg"></div>
<div id="altImages"><ul>
  <li><img src="https://m.media-amazon.com/images/I/main._AC_US40_.jpg"></li>
  <li><img src="https://m.media-amazon.com/images/I/side._AC_US40_.jpg"></li>
  <li><img src="https://m.media-amazon.com/images/I/video-play-button._SS40_.png"></li>
  <li><img src="https://m.media-amazon.com/images/I/back._AC_US40_.jpg"></li>
</ul></div>
<span id="acrPopover" title="4,6 von 5 Sternen"></span>
<span id="acrCustomerReviewText">1.234 Sternebewertungen</span>
</body></html>`

func TestAmazon_Extract(t *testing.T) {
	page := mustPage(t, "https://www.amazon.de/dp/B0TEST1234", amazonDetailPage)
	rec := models.NewProductRecord(page.URL.String())
	run(t, &Amazon{}, page, rec)

	require.NotNil(t, rec.Title)
	assert.Equal(t, "Leinen Bettwäsche Set", *rec.Title)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 49.99, *rec.Price, 0.001)
	require.NotNil(t, rec.Rating)
	assert.InDelta(t, 4.6, *rec.Rating, 0.001)
	require.NotNil(t, rec.ReviewCount)
	assert.Equal(t, 1234, *rec.ReviewCount)

	assert.Equal(t, []string{
		"https://m.media-amazon.com/images/I/main._AC_SL1500_.jpg",
		"https://m.media-amazon.com/images/I/side._AC_SL1500_.jpg",
		"https://m.media-amazon.com/images/I/back._AC_SL1500_.jpg",
	}, rec.Images)
}

func TestAmazon_IgnoresOtherHosts(t *testing.T) {
	page := mustPage(t, "https://shop.com/p/1", amazonDetailPage)
	rec := models.NewProductRecord(page.URL.String())
	run(t, &Amazon{}, page, rec)

	assert.Nil(t, rec.Title)
	assert.Empty(t, rec.Images)
}

func TestIsAmazonHost(t *testing.T) {
	assert.True(t, isAmazonHost("www.amazon.de"))
	assert.True(t, isAmazonHost("amazon.com"))
	assert.True(t, isAmazonHost("smile.amazon.co.uk"))
	assert.False(t, isAmazonHost("amazonas-shop.com"))
	assert.False(t, isAmazonHost("shop.com"))
}

func TestParseLocalizedPrice(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		ok       bool
	}{
		{"49,99 €", 49.99, true},
		{"1.299,00 €", 1299.00, true},
		{"$1,299.00", 1299.00, true},
		{"$1,299", 1299, true},
		{"19.95", 19.95, true},
		{"n/a", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			price, ok := parseLocalizedPrice(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.expected, price, 0.001)
		})
	}
}
