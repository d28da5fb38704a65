package analysis

import (
	"regexp"
	"sort"
	"unicode/utf8"
)

// DomainResult is the outcome of keyword-based domain detection.
type DomainResult struct {
	Primary    string         `json:"primary"`
	Confidence float64        `json:"confidence"`
	Secondary  []string       `json:"secondary"`
	Scores     map[string]int `json:"scores"`
}

type keywordMatcher struct {
	weight int
	re     *regexp.Regexp
}

// Compiled once; one case-insensitive, word-bounded pattern per keyword.
var (
	domainNames    = sortedDomains()
	domainMatchers = compileMatchers()
)

func sortedDomains() []string {
	names := make([]string, 0, len(domainKeywords))
	for d := range domainKeywords {
		names = append(names, d)
	}
	sort.Strings(names)
	return names
}

func compileMatchers() map[string][]keywordMatcher {
	out := make(map[string][]keywordMatcher, len(domainKeywords))
	for domain, keywords := range domainKeywords {
		ms := make([]keywordMatcher, 0, len(keywords))
		for _, kw := range keywords {
			ms = append(ms, keywordMatcher{
				weight: utf8.RuneCountInString(kw),
				re:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`),
			})
		}
		out[domain] = ms
	}
	return out
}

// Domains returns every domain the detector can emit, excluding DomainUnknown.
func Domains() []string {
	return append([]string(nil), domainNames...)
}

// IsKnownDomain reports whether d is a detectable domain or DomainUnknown.
func IsKnownDomain(d string) bool {
	if d == DomainUnknown {
		return true
	}
	_, ok := domainKeywords[d]
	return ok
}

// DetectDomain scores text against every domain's keyword list. A domain's
// score is the sum of keyword length times occurrence count. Confidence is the
// winning score's share of all scores. Secondary domains are those scoring
// above secondaryThreshold times the winning score, highest first.
func DetectDomain(text string, secondaryThreshold float64) DomainResult {
	scores := make(map[string]int, len(domainNames))
	total, best := 0, 0
	primary := DomainUnknown

	for _, d := range domainNames {
		s := 0
		for _, m := range domainMatchers[d] {
			s += m.weight * len(m.re.FindAllStringIndex(text, -1))
		}
		scores[d] = s
		total += s
		// domainNames is sorted, so ties keep the alphabetically first domain.
		if s > best {
			best = s
			primary = d
		}
	}

	res := DomainResult{Primary: primary, Secondary: []string{}, Scores: scores}
	if best == 0 {
		return res
	}

	res.Confidence = clamp01(float64(best) / float64(total))

	cutoff := secondaryThreshold * float64(best)
	for _, d := range domainNames {
		if d != primary && float64(scores[d]) > cutoff {
			res.Secondary = append(res.Secondary, d)
		}
	}
	sort.SliceStable(res.Secondary, func(i, j int) bool {
		return scores[res.Secondary[i]] > scores[res.Secondary[j]]
	})

	return res
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
