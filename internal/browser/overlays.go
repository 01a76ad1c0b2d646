package browser

import (
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var consentSelectors = []string{
	`#onetrust-accept-btn-handler`,
	`button:has-text("Accept all")`,
	`button:has-text("Accept All")`,
	`button:has-text("Accept")`,
	`button:has-text("I agree")`,
	`[aria-label="Close"]`,
	`.needsclick button[aria-label*="Close"]`,
}

var challengeMarkers = []string{
	"Just a moment...",
	"Attention Required!",
	"cf-browser-verification",
	"Access Denied",
	"captcha",
}

// IsChallengePage reports whether a response looks like an anti-bot interstitial.
func IsChallengePage(title, content string) bool {
	for _, marker := range challengeMarkers {
		if strings.Contains(title, marker) || strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// prepare lets the page settle, clears consent banners and scrolls through it
// so lazy-loaded gallery images get real src attributes.
func (b *Browser) prepare(page playwright.Page) {
	if b.opts.SettleDelay > 0 {
		time.Sleep(b.opts.SettleDelay)
	}

	title, _ := page.Title()
	if content, err := page.Content(); err == nil && IsChallengePage(title, content) {
		b.logger.Warn("anti-bot interstitial detected", "url", page.URL(), "title", title)
	}

	b.dismissOverlays(page)
	b.scrollThrough(page)
}

func (b *Browser) dismissOverlays(page playwright.Page) {
	for _, selector := range consentSelectors {
		button := page.Locator(selector).First()

		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}

		if err := button.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(2000)}); err != nil {
			b.logger.Debug("failed to click overlay button", "selector", selector, "error", err)
			continue
		}
		b.logger.Debug("dismissed overlay", "selector", selector)
		return
	}
}

func (b *Browser) scrollThrough(page playwright.Page) {
	for i := 0; i < 3; i++ {
		if _, err := page.Evaluate(`window.scrollBy(0, window.innerHeight)`); err != nil {
			return
		}
		time.Sleep(300 * time.Millisecond)
	}
	page.Evaluate(`window.scrollTo(0, 0)`)
}
