package product

import (
	"strconv"
	"strings"
)

// fingerprintFields is the fixed concatenation order. Changing it changes
// every fingerprint, which would resurrect already-stored duplicates.
func fingerprintFields(c CandidateRecord) []string {
	return []string{
		c.Name,
		c.Category,
		formatNumber(c.Price),
		formatNumber(c.DiscountedPrice),
		formatNumber(c.DiscountPercent),
		c.Username,
		strconv.FormatBool(c.IsFree),
		c.Image,
	}
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Fingerprint maps a candidate to its deterministic content hash: the
// fields joined in fixed order (missing fields render empty) run through
// the provided hasher. Total over all candidate values, including
// all-empty ones.
func Fingerprint(c CandidateRecord, h Hasher) (string, error) {
	concat := strings.Join(fingerprintFields(c), "")
	return h.Hash([]byte(concat))
}
