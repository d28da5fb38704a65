package analysis

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	LevelElementary   = "elementary"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelExpert       = "expert"
)

const (
	wordLengthNorm     = 10.0
	sentenceLengthNorm = 30.0
	longWordRunes      = 8
)

var reSentenceEnd = regexp.MustCompile(`[.!?]+`)

// ComplexityFactors are the four normalised inputs to the complexity score.
type ComplexityFactors struct {
	AvgWordLength     float64 `json:"avg_word_length"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
	VocabDiversity    float64 `json:"vocab_diversity"`
	LongWordRatio     float64 `json:"long_word_ratio"`
}

// ComplexityResult is a score in [0,1] with its level and factor breakdown.
type ComplexityResult struct {
	Score   float64           `json:"score"`
	Level   string            `json:"level"`
	Factors ComplexityFactors `json:"factors"`
}

// AnalyzeComplexity rates how demanding a piece of text is to read. Each
// factor is capped at 1 and the score is their unweighted mean.
func AnalyzeComplexity(text string) ComplexityResult {
	words := Words(text)
	if len(words) == 0 {
		return ComplexityResult{Score: 0, Level: LevelElementary}
	}

	totalRunes, longWords := 0, 0
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		totalRunes += n
		if n >= longWordRunes {
			longWords++
		}
		unique[strings.ToLower(w)] = struct{}{}
	}

	n := float64(len(words))
	f := ComplexityFactors{
		AvgWordLength:     capAt1(float64(totalRunes) / n / wordLengthNorm),
		AvgSentenceLength: capAt1(n / float64(countSentences(text)) / sentenceLengthNorm),
		VocabDiversity:    capAt1(float64(len(unique)) / n),
		LongWordRatio:     capAt1(float64(longWords) / n),
	}

	score := (f.AvgWordLength + f.AvgSentenceLength + f.VocabDiversity + f.LongWordRatio) * 0.25
	score = clamp01(score)

	return ComplexityResult{Score: score, Level: LevelFor(score), Factors: f}
}

// LevelFor maps a complexity score to its level. Bounds are exclusive on the
// upper side: 0.25 is intermediate.
func LevelFor(score float64) string {
	switch {
	case score < 0.25:
		return LevelElementary
	case score < 0.5:
		return LevelIntermediate
	case score < 0.75:
		return LevelAdvanced
	default:
		return LevelExpert
	}
}

// Words splits text on whitespace and trims surrounding punctuation from each
// token. Tokens with no letters or digits are dropped.
func Words(text string) []string {
	fields := strings.Fields(text)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// countSentences counts non-empty runs between sentence terminators. Text
// without a terminator is one sentence.
func countSentences(text string) int {
	n := 0
	for _, s := range reSentenceEnd.Split(text, -1) {
		if len(Words(s)) > 0 {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

func capAt1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
