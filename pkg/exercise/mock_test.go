package exercise

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/entrhq/orthoforge/pkg/llm"
)

// MockLLMClient is a mock implementation of llm.Client for testing
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) GetCorrection(ctx context.Context, question string) (*llm.Correction, error) {
	args := m.Called(ctx, question)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Correction), args.Error(1)
}

func (m *MockLLMClient) GetErrorReportSuggestion(ctx context.Context, report llm.ErrorReport) (string, error) {
	args := m.Called(ctx, report)
	return args.String(0), args.Error(1)
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
