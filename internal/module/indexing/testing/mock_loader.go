package testing

import (
	"context"

	"github.com/jinford/semsearch/internal/module/indexing/domain"
)

// MockLoader はテスト用のモックDocumentLoaderです
type MockLoader struct {
	LoadFileFunc      func(ctx context.Context, path string) (*domain.Document, error)
	LoadDirectoryFunc func(ctx context.Context, dir string) ([]*domain.Document, error)
}

// LoadFile はLoadFileのモック実装です
func (m *MockLoader) LoadFile(ctx context.Context, path string) (*domain.Document, error) {
	if m.LoadFileFunc != nil {
		return m.LoadFileFunc(ctx, path)
	}
	return TestDocument(path, "content of "+path), nil
}

// LoadDirectory はLoadDirectoryのモック実装です
func (m *MockLoader) LoadDirectory(ctx context.Context, dir string) ([]*domain.Document, error) {
	if m.LoadDirectoryFunc != nil {
		return m.LoadDirectoryFunc(ctx, dir)
	}
	return nil, nil
}

var _ domain.DocumentLoader = (*MockLoader)(nil)
