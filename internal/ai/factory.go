package ai

import (
	"fmt"

	"github.com/kiranshivaraju/cardlens/internal/config"
)

// NewFallback constructs the LLM fallback selected by config.
// Called once at worker startup.
func NewFallback(cfg config.LLMConfig) (Fallback, error) {
	switch cfg.Provider {
	case "", "none":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: must be none", cfg.Provider)
	}
}
