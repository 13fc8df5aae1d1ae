package product

import "strings"

// Validate reports whether a candidate carries the minimum fields that
// make it economically meaningful: a non-empty name and all three numeric
// fields present. Category, username, is_free and the image are optional.
// This predicate is the single gate deciding whether a candidate is
// durable.
func Validate(c CandidateRecord) bool {
	if strings.TrimSpace(c.Name) == "" {
		return false
	}
	return c.Price != nil && c.DiscountedPrice != nil && c.DiscountPercent != nil
}
