package analysis

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const minConceptRunes = 3

// Punctuation is deleted rather than replaced with a space, so "cell's" stays
// one token.
var reNonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s-]+`)

// Concept is a candidate key term with its frequency-weighted score.
type Concept struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// ExtractConcepts returns up to limit key terms from text. Unigrams and bigrams
// of non-stopword tokens are scored by frequency times ln(length+1), highest
// first.
func ExtractConcepts(text string, limit int) []Concept {
	if limit <= 0 {
		return []Concept{}
	}

	cleaned := reNonWord.ReplaceAllString(strings.ToLower(text), "")
	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		tok = strings.Trim(tok, "-")
		if utf8.RuneCountInString(tok) < minConceptRunes {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return []Concept{}
	}

	freq := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		freq[tok]++
		if i > 0 {
			freq[tokens[i-1]+" "+tok]++
		}
	}

	concepts := make([]Concept, 0, len(freq))
	for term, n := range freq {
		concepts = append(concepts, Concept{
			Term:  term,
			Score: float64(n) * math.Log(float64(utf8.RuneCountInString(term))+1),
		})
	}
	sort.Slice(concepts, func(i, j int) bool {
		if concepts[i].Score != concepts[j].Score {
			return concepts[i].Score > concepts[j].Score
		}
		return concepts[i].Term < concepts[j].Term
	})

	if len(concepts) > limit {
		concepts = concepts[:limit]
	}
	return concepts
}

// ConceptTerms returns the terms of cs in order.
func ConceptTerms(cs []Concept) []string {
	terms := make([]string, len(cs))
	for i, c := range cs {
		terms[i] = c.Term
	}
	return terms
}
