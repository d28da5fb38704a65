package analysis

import (
	"encoding/json"
	"strings"

	"github.com/kiranshivaraju/cardlens/pkg/models"
)

// Options tunes the thresholds of the classification engine.
type Options struct {
	// SecondaryDomainThreshold is the fraction of the primary score a domain
	// must exceed to be listed as secondary.
	SecondaryDomainThreshold float64
	// MinDomainConfidence below which a card is flagged for LLM review.
	MinDomainConfidence float64
	// MaxConcepts caps the extracted concept list.
	MaxConcepts int
}

// DefaultOptions returns the production thresholds.
func DefaultOptions() Options {
	return Options{
		SecondaryDomainThreshold: 0.3,
		MinDomainConfidence:      0.3,
		MaxConcepts:              10,
	}
}

// Result is the full rule-based classification of one card.
type Result struct {
	Domain         DomainResult
	Complexity     ComplexityResult
	CardType       string
	Language       string
	Concepts       []Concept
	FrontWordCount int
	BackWordCount  int
	NeedsLLM       bool
}

// Method reports how the result was produced.
func (r Result) Method() string {
	if r.NeedsLLM {
		return models.AnalysisMethodHybrid
	}
	return models.AnalysisMethodRuleBased
}

// Status is needs_llm when rule-based confidence was too low.
func (r Result) Status() string {
	if r.NeedsLLM {
		return models.AnalysisStatusNeedsLLM
	}
	return models.AnalysisStatusCompleted
}

// Factors is the raw breakdown persisted alongside a record for auditing.
type Factors struct {
	DomainScores map[string]int    `json:"domain_scores"`
	Complexity   ComplexityFactors `json:"complexity"`
	Concepts     []Concept         `json:"concepts"`
}

// Engine runs every classification stage over a card. It holds no state
// besides its options and is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine creates an Engine. Negative thresholds and a non-positive concept
// cap fall back to defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.SecondaryDomainThreshold < 0 {
		opts.SecondaryDomainThreshold = def.SecondaryDomainThreshold
	}
	if opts.MinDomainConfidence < 0 {
		opts.MinDomainConfidence = def.MinDomainConfidence
	}
	if opts.MaxConcepts <= 0 {
		opts.MaxConcepts = def.MaxConcepts
	}
	return &Engine{opts: opts}
}

// Options returns the effective thresholds.
func (e *Engine) Options() Options { return e.opts }

// Analyze classifies raw card content. front and back are extracted to plain
// text first; domain, complexity, language and concepts use both sides.
func (e *Engine) Analyze(front, back string) Result {
	f := ExtractText(front)
	b := ExtractText(back)
	combined := strings.TrimSpace(f + " " + b)

	domain := DetectDomain(combined, e.opts.SecondaryDomainThreshold)

	return Result{
		Domain:         domain,
		Complexity:     AnalyzeComplexity(combined),
		CardType:       DetectCardType(f, b),
		Language:       DetectLanguage(combined),
		Concepts:       ExtractConcepts(combined, e.opts.MaxConcepts),
		FrontWordCount: len(Words(f)),
		BackWordCount:  len(Words(b)),
		NeedsLLM:       domain.Confidence < e.opts.MinDomainConfidence,
	}
}

// Record converts a result into an unsaved analysis record for card.
// ID, Version and CreatedAt are assigned by the store.
func (r Result) Record(card models.Card) (*models.AnalysisRecord, error) {
	factors, err := json.Marshal(Factors{
		DomainScores: r.Domain.Scores,
		Complexity:   r.Complexity.Factors,
		Concepts:     r.Concepts,
	})
	if err != nil {
		return nil, err
	}

	return &models.AnalysisRecord{
		CardID:           card.ID,
		Domain:           r.Domain.Primary,
		DomainConfidence: r.Domain.Confidence,
		SecondaryDomains: r.Domain.Secondary,
		ComplexityLevel:  r.Complexity.Level,
		ComplexityScore:  r.Complexity.Score,
		Concepts:         ConceptTerms(r.Concepts),
		FrontWordCount:   r.FrontWordCount,
		BackWordCount:    r.BackWordCount,
		CardType:         r.CardType,
		Language:         r.Language,
		Method:           r.Method(),
		Status:           r.Status(),
		Factors:          factors,
	}, nil
}
