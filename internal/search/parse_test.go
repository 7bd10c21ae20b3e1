// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuerySeasonInChinese(t *testing.T) {
	p := ParseQuery("进击的巨人 第二季")
	require.NotNil(t, p.Season)
	assert.Equal(t, "进击的巨人", p.Title)
	assert.Equal(t, 2, *p.Season)
	assert.Nil(t, p.Episode)
}

func TestParseQuerySxxExx(t *testing.T) {
	p := ParseQuery("Breaking Bad S05E07")
	require.NotNil(t, p.Season)
	require.NotNil(t, p.Episode)
	assert.Equal(t, "Breaking Bad", p.Title)
	assert.Equal(t, 5, *p.Season)
	assert.Equal(t, 7, *p.Episode)
}

func TestParseQueryUnicodeRoman(t *testing.T) {
	p := ParseQuery("Frieren Ⅱ")
	require.NotNil(t, p.Season)
	assert.Equal(t, "Frieren", p.Title)
	assert.Equal(t, 2, *p.Season)
	assert.Nil(t, p.Episode)
}

func TestParseQueryYearIsNotASeason(t *testing.T) {
	p := ParseQuery("Blade Runner 2049")
	assert.Equal(t, "Blade Runner 2049", p.Title)
	assert.Nil(t, p.Season)
	assert.Nil(t, p.Episode)
}

func TestParseQueryRoundTrip(t *testing.T) {
	for _, keyword := range []string{"进击的巨人 第二季", "Breaking Bad S05E07", "Frieren Ⅱ", "Blade Runner 2049"} {
		first := ParseQuery(keyword)
		second := ParseQuery(composeBack(first))
		assert.Equal(t, first, second, "round trip for %q", keyword)
	}
}

// composeBack reconstructs a keyword from a ParsedQuery using the same
// marker ParseQuery itself would recognize, for the round-trip law in
// spec.md §8.
func composeBack(p ParsedQuery) string {
	switch {
	case p.Season != nil && p.Episode != nil:
		return p.Title + " S" + itoa2(*p.Season) + "E" + itoa2(*p.Episode)
	case p.Season != nil:
		return p.Title + " Season " + itoa2(*p.Season)
	default:
		return p.Title
	}
}

func itoa2(n int) string {
	if n < 10 {
		return "0" + string(rune('0'+n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
