package product

import "strings"

// DefaultKeywords is the relevance set used when none is configured.
var DefaultKeywords = []string{
	"скидка", "промокод", "%", "купи", "бесплатно", "акция", "цена", "руб", "₽", "товар",
}

// Filter decides whether a raw message is worth sending to extraction.
// It is a pure predicate: a text is eligible when its length falls inside
// the configured window and it contains at least one relevance keyword.
type Filter struct {
	minLength int
	maxLength int
	keywords  []string
}

// NewFilter builds a Filter. Zero bounds fall back to the [50, 2000]
// window; an empty keyword list falls back to DefaultKeywords.
func NewFilter(minLength, maxLength int, keywords []string) *Filter {
	if minLength <= 0 {
		minLength = 50
	}
	if maxLength <= 0 {
		maxLength = 2000
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &Filter{minLength: minLength, maxLength: maxLength, keywords: lowered}
}

// ShouldProcess reports whether the text is worth an extraction call.
// Length is measured in characters, not bytes, since most captured text is
// Cyrillic.
func (f *Filter) ShouldProcess(text string) bool {
	n := len([]rune(text))
	if n < f.minLength || n > f.maxLength {
		return false
	}
	lowered := strings.ToLower(text)
	for _, kw := range f.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
