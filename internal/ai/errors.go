package ai

import "errors"

var (
	// ErrFallbackUnavailable means no LLM provider is configured. Callers keep
	// the rule-based result.
	ErrFallbackUnavailable = errors.New("llm fallback unavailable")
	ErrInferenceTimeout    = errors.New("llm inference timeout")
)
