package product

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterRejectsShortText(t *testing.T) {
	t.Parallel()

	f := NewFilter(0, 0, nil)
	require.False(t, f.ShouldProcess(""))
	require.False(t, f.ShouldProcess("hi"))
	require.False(t, f.ShouldProcess("скидка"))
	require.False(t, f.ShouldProcess(strings.Repeat("а", 49)+"%"))
}

func TestFilterRejectsLongText(t *testing.T) {
	t.Parallel()

	f := NewFilter(0, 0, nil)
	require.False(t, f.ShouldProcess("скидка "+strings.Repeat("а", 2000)))
}

func TestFilterRejectsIrrelevantText(t *testing.T) {
	t.Parallel()

	f := NewFilter(0, 0, nil)
	text := strings.Repeat("nothing to see here ", 5)
	require.GreaterOrEqual(t, len([]rune(text)), 50)
	require.False(t, f.ShouldProcess(text))
}

func TestFilterAcceptsRelevantText(t *testing.T) {
	t.Parallel()

	f := NewFilter(0, 0, nil)
	text := "Скидка 50% на куртку, цена 2000 руб, итого 1000 руб. Успей купить!"
	require.True(t, f.ShouldProcess(text))
}

func TestFilterKeywordMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	f := NewFilter(10, 2000, []string{"sale"})
	require.True(t, f.ShouldProcess("BIG SALE today only, everything must go"))
	require.False(t, f.ShouldProcess("nothing interesting in this message at all"))
}

func TestFilterLengthCountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	// 50 Cyrillic characters are 100 bytes; the window is character-based.
	f := NewFilter(0, 0, nil)
	text := strings.Repeat("а", 44) + "скидка"
	require.Equal(t, 50, len([]rune(text)))
	require.True(t, f.ShouldProcess(text))
}
