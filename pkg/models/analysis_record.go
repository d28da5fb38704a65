package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	AnalysisMethodRuleBased = "rule_based"
	AnalysisMethodHybrid    = "hybrid"

	AnalysisStatusCompleted = "completed"
	AnalysisStatusNeedsLLM  = "needs_llm"
)

// AnalysisRecord is one immutable classification result for a card.
// Versions start at 1 and increase per card; the current analysis is the
// record with the highest version.
type AnalysisRecord struct {
	ID               uuid.UUID       `db:"id"                json:"id"`
	CardID           uuid.UUID       `db:"card_id"           json:"card_id"`
	JobID            *uuid.UUID      `db:"job_id"            json:"job_id,omitempty"`
	Version          int             `db:"version"           json:"version"`
	Domain           string          `db:"domain"            json:"domain"`
	DomainConfidence float64         `db:"domain_confidence" json:"domain_confidence"`
	SecondaryDomains []string        `db:"secondary_domains" json:"secondary_domains"`
	ComplexityLevel  string          `db:"complexity_level"  json:"complexity_level"`
	ComplexityScore  float64         `db:"complexity_score"  json:"complexity_score"`
	Concepts         []string        `db:"concepts"          json:"concepts"`
	FrontWordCount   int             `db:"front_word_count"  json:"front_word_count"`
	BackWordCount    int             `db:"back_word_count"   json:"back_word_count"`
	CardType         string          `db:"card_type"         json:"card_type"`
	Language         string          `db:"language"          json:"language"`
	Method           string          `db:"method"            json:"method"`
	Status           string          `db:"status"            json:"status"`
	Factors          json.RawMessage `db:"factors"           json:"factors,omitempty"`
	CreatedAt        time.Time       `db:"created_at"        json:"created_at"`
}
