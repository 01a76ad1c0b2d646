package imaging

import "context"

// Gate accepts an image only when it is good enough and not a repeat of an accepted one.
type Gate struct {
	validator  *Validator
	duplicates *DuplicateDetector
}

func NewGate(validator *Validator, duplicates *DuplicateDetector) *Gate {
	return &Gate{validator: validator, duplicates: duplicates}
}

func (g *Gate) Accept(ctx context.Context, rawURL string, accepted []string) bool {
	if !g.validator.IsValid(ctx, rawURL) {
		return false
	}
	return !g.duplicates.IsDuplicate(ctx, rawURL, accepted)
}
