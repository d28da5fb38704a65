package ai

import (
	"context"

	"github.com/kiranshivaraju/cardlens/internal/analysis"
	"github.com/kiranshivaraju/cardlens/pkg/models"
)

// FallbackRequest carries a card whose rule-based classification was not
// confident enough, together with that classification.
type FallbackRequest struct {
	Card      models.Card
	RuleBased analysis.Result
}

// Fallback refines low-confidence classifications with a language model.
// Implementations must be safe for concurrent use.
type Fallback interface {
	Name() string
	Refine(ctx context.Context, req FallbackRequest) (analysis.Result, error)
}

// Disabled is the fallback used when no provider is configured.
type Disabled struct{}

func (Disabled) Name() string { return "none" }

// Refine always reports ErrFallbackUnavailable.
func (Disabled) Refine(_ context.Context, _ FallbackRequest) (analysis.Result, error) {
	return analysis.Result{}, ErrFallbackUnavailable
}

var _ Fallback = Disabled{}
