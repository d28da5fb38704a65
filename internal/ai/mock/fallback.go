package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/cardlens/internal/ai"
	"github.com/kiranshivaraju/cardlens/internal/analysis"
)

// MockFallback satisfies ai.Fallback for testing.
type MockFallback struct {
	Name_      string
	RefineFunc func(ctx context.Context, req ai.FallbackRequest) (analysis.Result, error)

	calls atomic.Int64
}

func (m *MockFallback) Name() string { return m.Name_ }

func (m *MockFallback) Refine(ctx context.Context, req ai.FallbackRequest) (analysis.Result, error) {
	m.calls.Add(1)
	if m.RefineFunc != nil {
		return m.RefineFunc(ctx, req)
	}
	return req.RuleBased, nil
}

// Calls reports how many times Refine was invoked.
func (m *MockFallback) Calls() int { return int(m.calls.Load()) }

// NewMockFallback returns a MockFallback that resolves every card to domain
// with full confidence.
func NewMockFallback(domain string) *MockFallback {
	return &MockFallback{
		Name_: "mock",
		RefineFunc: func(_ context.Context, req ai.FallbackRequest) (analysis.Result, error) {
			res := req.RuleBased
			res.Domain.Primary = domain
			res.Domain.Confidence = 1
			return res, nil
		},
	}
}

// NewFailingFallback returns a MockFallback that always returns the given error.
func NewFailingFallback(err error) *MockFallback {
	return &MockFallback{
		Name_: "mock-failing",
		RefineFunc: func(_ context.Context, _ ai.FallbackRequest) (analysis.Result, error) {
			return analysis.Result{}, err
		},
	}
}

// NewTimeoutFallback returns a MockFallback that blocks until context is cancelled.
func NewTimeoutFallback() *MockFallback {
	return &MockFallback{
		Name_: "mock-timeout",
		RefineFunc: func(ctx context.Context, _ ai.FallbackRequest) (analysis.Result, error) {
			<-ctx.Done()
			return analysis.Result{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockFallback implements Fallback.
var _ ai.Fallback = (*MockFallback)(nil)
