package fonts

import (
	"unicode"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/language"
)

// DetectScript returns the most frequent script in runes, Latin when none
// is recognized. Ties keep the script seen first.
func DetectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	best, bestCount := language.Latin, 0
	for _, r := range runes {
		s := scriptOf(r)
		if s == language.Unknown {
			continue
		}
		counts[s]++
		if counts[s] > bestCount {
			best, bestCount = s, counts[s]
		}
	}
	return best
}

func scriptDirection(s language.Script) di.Direction {
	switch s {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

var scriptTables = []struct {
	table  *unicode.RangeTable
	script language.Script
}{
	{unicode.Latin, language.Latin},
	{unicode.Arabic, language.Arabic},
	{unicode.Hebrew, language.Hebrew},
	{unicode.Cyrillic, language.Cyrillic},
	{unicode.Greek, language.Greek},
	{unicode.Thai, language.Thai},
	{unicode.Devanagari, language.Devanagari},
	{unicode.Bengali, language.Bengali},
	{unicode.Tamil, language.Tamil},
	{unicode.Han, language.Han},
	{unicode.Hiragana, language.Hiragana},
	{unicode.Katakana, language.Katakana},
	{unicode.Hangul, language.Hangul},
}

func scriptOf(r rune) language.Script {
	for _, st := range scriptTables {
		if unicode.Is(st.table, r) {
			return st.script
		}
	}
	return language.Unknown
}
