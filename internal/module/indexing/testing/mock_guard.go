package testing

import (
	"context"
	"sync"

	"github.com/jinford/semsearch/internal/module/indexing/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
)

// MockGuard はテスト用のクォータ管理済みEmbedderモックです
type MockGuard struct {
	EmbedFunc func(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error)

	mu       sync.Mutex
	progress []failure.Progress
}

// Embed はEmbedのモック実装です
func (m *MockGuard) Embed(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error) {
	m.mu.Lock()
	m.progress = append(m.progress, progress)
	m.mu.Unlock()

	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, texts, progress)
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0, 0}
	}
	return vectors, nil
}

// Progress は呼び出しごとに渡された進捗を返します
func (m *MockGuard) Progress() []failure.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]failure.Progress(nil), m.progress...)
}

var _ domain.Embedder = (*MockGuard)(nil)
