package testing

import (
	"context"

	"github.com/jinford/semsearch/internal/module/indexing/application"
	"github.com/jinford/semsearch/internal/module/indexing/domain"
)

// MockBuilder はテスト用のモックBuilderです
type MockBuilder struct {
	BuildIndexFunc func(ctx context.Context, docs []*domain.Document) (*application.BuildResult, error)
}

// BuildIndex はBuildIndexのモック実装です
func (m *MockBuilder) BuildIndex(ctx context.Context, docs []*domain.Document) (*application.BuildResult, error) {
	if m.BuildIndexFunc != nil {
		return m.BuildIndexFunc(ctx, docs)
	}
	return &application.BuildResult{DocumentsProcessed: len(docs)}, nil
}
