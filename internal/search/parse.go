// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search implements the cached, alias-expanded, season-parsed
// provider fan-out described in spec.md §4.5: parse query, check the
// base cache, expand aliases, fan out to every enabled provider, filter
// by alias/type/season, sort deterministically, and cache the result.
package search

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedQuery is the {title, season, episode} triple extracted from a
// raw user keyword (spec.md §4.5 step 1).
type ParsedQuery struct {
	Title   string
	Season  *int
	Episode *int
}

var (
	sxxexxPattern   = regexp.MustCompile(`(?i)^(.*?)\s*S(\d{1,2})E(\d{1,3})\s*(.*)$`)
	seasonWordTail  = regexp.MustCompile(`(?i)^(.*?)\s*S(?:eason)?\s*(\d{1,2})\s*$`)
	chineseSeason   = regexp.MustCompile(`^(.*?)第([一二三四五六七八九十百零两0-9]+)(?:季|部|幕)(.*)$`)
	zhiZhang        = regexp.MustCompile(`^(.*?)([一二三四五六七八九十百零两0-9]+)之章(.*)$`)
	unicodeRoman    = regexp.MustCompile(`^(.*?)\s*([ⅠⅡⅢⅣⅤⅥⅦⅧⅨⅩⅪⅫ])\s*(.*)$`)
	asciiRomanTail  = regexp.MustCompile(`^(.*\S)\s+([IVXivx]+)\s*$`)
	trailingIntTail = regexp.MustCompile(`^(.*\S)\s+(\d{1,2})\s*$`)
	fourDigitTail   = regexp.MustCompile(`\d{4}\s*$`)
)

var unicodeRomanValue = map[rune]int{
	'Ⅰ': 1, 'Ⅱ': 2, 'Ⅲ': 3, 'Ⅳ': 4, 'Ⅴ': 5, 'Ⅵ': 6,
	'Ⅶ': 7, 'Ⅷ': 8, 'Ⅸ': 9, 'Ⅹ': 10, 'Ⅺ': 11, 'Ⅻ': 12,
}

var chineseDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9,
}

// ParseQuery extracts {title, season, episode} from a raw keyword,
// trying each season marker in the priority order spec.md §4.5 step 1
// lists. The first marker that matches wins; an unmatched keyword is
// returned verbatim with Season and Episode nil.
func ParseQuery(keyword string) ParsedQuery {
	q := strings.TrimSpace(keyword)

	if m := sxxexxPattern.FindStringSubmatch(q); m != nil {
		season, sErr := strconv.Atoi(m[2])
		episode, eErr := strconv.Atoi(m[3])
		if sErr == nil && eErr == nil {
			title := joinTrim(m[1], m[4])
			return ParsedQuery{Title: title, Season: &season, Episode: &episode}
		}
	}

	if m := seasonWordTail.FindStringSubmatch(q); m != nil {
		if season, err := strconv.Atoi(m[2]); err == nil {
			return ParsedQuery{Title: strings.TrimSpace(m[1]), Season: &season}
		}
	}

	if m := chineseSeason.FindStringSubmatch(q); m != nil {
		if season, ok := parseChineseOrArabicNumber(m[2]); ok {
			return ParsedQuery{Title: joinTrim(m[1], m[3]), Season: &season}
		}
	}

	if m := zhiZhang.FindStringSubmatch(q); m != nil {
		if season, ok := parseChineseOrArabicNumber(m[2]); ok {
			return ParsedQuery{Title: joinTrim(m[1], m[3]), Season: &season}
		}
	}

	if m := unicodeRoman.FindStringSubmatch(q); m != nil {
		if season, ok := unicodeRomanValue[[]rune(m[2])[0]]; ok {
			return ParsedQuery{Title: joinTrim(m[1], m[3]), Season: &season}
		}
	}

	if m := asciiRomanTail.FindStringSubmatch(q); m != nil {
		if season, ok := romanToInt(m[2]); ok {
			return ParsedQuery{Title: strings.TrimSpace(m[1]), Season: &season}
		}
	}

	if m := trailingIntTail.FindStringSubmatch(q); m != nil {
		if !fourDigitTail.MatchString(m[1]) {
			if season, err := strconv.Atoi(m[2]); err == nil {
				return ParsedQuery{Title: strings.TrimSpace(m[1]), Season: &season}
			}
		}
	}

	return ParsedQuery{Title: q}
}

func joinTrim(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}

// parseChineseOrArabicNumber parses either an Arabic numeral or a
// Chinese numeral (covering the single/double-digit forms spec.md §4.5
// calls for: "一".."十", "十一".."十九", "二十"/"两" etc).
func parseChineseOrArabicNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}

	runes := []rune(s)
	switch {
	case len(runes) == 1:
		if v, ok := chineseDigits[runes[0]]; ok {
			return v, true
		}
		if runes[0] == '十' {
			return 10, true
		}
	case len(runes) == 2 && runes[0] == '十':
		if v, ok := chineseDigits[runes[1]]; ok {
			return 10 + v, true
		}
	case len(runes) == 2 && runes[1] == '十':
		if v, ok := chineseDigits[runes[0]]; ok {
			return v * 10, true
		}
	case len(runes) == 3 && runes[1] == '十':
		tens, ok1 := chineseDigits[runes[0]]
		ones, ok2 := chineseDigits[runes[2]]
		if ok1 && ok2 {
			return tens*10 + ones, true
		}
	}
	return 0, false
}

var romanValues = []struct {
	symbol string
	value  int
}{
	{"XII", 12}, {"XI", 11}, {"X", 10}, {"IX", 9}, {"VIII", 8},
	{"VII", 7}, {"VI", 6}, {"V", 5}, {"IV", 4}, {"III", 3}, {"II", 2}, {"I", 1},
}

// romanToInt converts a plain-ASCII roman numeral (I..XII, the only
// range a season marker plausibly needs) to an int.
func romanToInt(s string) (int, bool) {
	upper := strings.ToUpper(s)
	for _, rv := range romanValues {
		if upper == rv.symbol {
			return rv.value, true
		}
	}
	return 0, false
}
