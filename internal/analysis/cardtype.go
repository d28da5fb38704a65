package analysis

import (
	"regexp"
	"strings"
)

const (
	CardTypeCloze      = "cloze"
	CardTypeQA         = "qa"
	CardTypeDefinition = "definition"
	CardTypeBasic      = "basic"
)

var reCloze = regexp.MustCompile(`\{\{c\d+::.*?\}\}|\[\.\.\.\]|_{3,}`)

var questionWords = toSet([]string{
	"what", "who", "whom", "whose", "where", "when", "why", "which", "how",
	"is", "are", "was", "were", "do", "does", "did", "can", "could", "should",
	"would", "will", "has", "have",
})

var articlePrefixes = []string{"a ", "an ", "the "}

// DetectCardType classifies a card from its front and back text. Rules are
// checked in order and the first match wins: cloze, qa, definition, basic.
func DetectCardType(front, back string) string {
	if reCloze.MatchString(front) || reCloze.MatchString(back) {
		return CardTypeCloze
	}

	f := strings.ToLower(strings.TrimSpace(front))
	b := strings.ToLower(strings.TrimSpace(back))

	if startsWithQuestionWord(f) || strings.HasSuffix(f, "?") {
		return CardTypeQA
	}

	if strings.Contains(f, " is ") || strings.HasPrefix(f, "define ") ||
		strings.Contains(f, ":") || hasAnyPrefix(b, articlePrefixes) {
		return CardTypeDefinition
	}

	return CardTypeBasic
}

func startsWithQuestionWord(s string) bool {
	words := Words(s)
	if len(words) == 0 {
		return false
	}
	_, ok := questionWords[words[0]]
	return ok
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
