package analysis

import "unicode"

// LanguageDefault is reported when no script-specific characters are present.
const LanguageDefault = "en"

type scriptRule struct {
	lang   string
	tables []*unicode.RangeTable
}

// Order matters: Japanese text usually mixes kana with Han ideographs, so kana
// must be checked before Han or it would be reported as Chinese.
var scriptRules = []scriptRule{
	{"ja", []*unicode.RangeTable{unicode.Hiragana, unicode.Katakana}},
	{"ko", []*unicode.RangeTable{unicode.Hangul}},
	{"zh", []*unicode.RangeTable{unicode.Han}},
	{"ru", []*unicode.RangeTable{unicode.Cyrillic}},
	{"ar", []*unicode.RangeTable{unicode.Arabic}},
	{"he", []*unicode.RangeTable{unicode.Hebrew}},
	{"el", []*unicode.RangeTable{unicode.Greek}},
	{"hi", []*unicode.RangeTable{unicode.Devanagari}},
	{"th", []*unicode.RangeTable{unicode.Thai}},
}

// DetectLanguage returns the language tag of the first script rule with any
// matching character in text, or LanguageDefault.
func DetectLanguage(text string) string {
	for _, rule := range scriptRules {
		for _, r := range text {
			if unicode.In(r, rule.tables...) {
				return rule.lang
			}
		}
	}
	return LanguageDefault
}
