package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const catalogPageSize = 250

type catalogPage struct {
	Products []struct {
		Handle string `json:"handle"`
	} `json:"products"`
}

// ShopifyProductURLs pages through a Shopify store's public products.json
// and returns one product page URL per handle. limit <= 0 reads the whole
// catalog. Paging stops at the first empty page or at a page that adds no
// new handle.
func (f *HTTPFetcher) ShopifyProductURLs(ctx context.Context, shopURL string, limit int) ([]string, error) {
	base, err := shopBase(shopURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var urls []string
	for page := 1; ; page++ {
		catalogURL := fmt.Sprintf("%s/products.json?limit=%d&page=%d", base, catalogPageSize, page)
		text, _, err := f.Fetch(ctx, catalogURL)
		if err != nil {
			return urls, fmt.Errorf("failed to read catalog page %d: %w", page, err)
		}

		var cp catalogPage
		if err := json.Unmarshal([]byte(text), &cp); err != nil {
			return urls, fmt.Errorf("catalog page %d is not products.json: %w", page, err)
		}

		added := 0
		for _, p := range cp.Products {
			if p.Handle == "" || seen[p.Handle] {
				continue
			}
			seen[p.Handle] = true
			urls = append(urls, base+"/products/"+url.PathEscape(p.Handle))
			added++
			if limit > 0 && len(urls) >= limit {
				return urls, nil
			}
		}

		f.logger.Debug("catalog page read", "shop", base, "page", page, "products", len(cp.Products), "added", added)
		if added == 0 {
			return urls, nil
		}
	}
}

// shopBase reduces a shop URL to scheme and host.
func shopBase(shopURL string) (string, error) {
	raw := strings.TrimSpace(shopURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid shop url %q", shopURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
