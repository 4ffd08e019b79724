package testing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/jinford/semsearch/internal/module/embedding/domain"
)

// MockEmbedder はテスト用のEmbedderモック
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
	Dim       int
	ModelName string

	mu    sync.Mutex
	calls [][]string
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	m.mu.Unlock()

	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, texts)
	}
	return NewFakeEmbedder(m.Dim).Embed(ctx, texts)
}

func (m *MockEmbedder) Dimension() int { return m.Dim }

func (m *MockEmbedder) Model() string {
	if m.ModelName == "" {
		return "mock-embedding"
	}
	return m.ModelName
}

// Calls は Embed に渡された入力の履歴を返します
func (m *MockEmbedder) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}

// CallCount は Embed の呼び出し回数を返します
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// FakeEmbedder は単語のハッシュから決定的なベクトルを作るEmbedder
// 同じテキストは同じベクトルになり、単語を共有するテキストほど類似度が高くなります
type FakeEmbedder struct {
	dim int
}

// NewFakeEmbedder は指定次元の FakeEmbedder を作成します
func NewFakeEmbedder(dim int) *FakeEmbedder {
	if dim <= 0 {
		dim = 8
	}
	return &FakeEmbedder{dim: dim}
}

func (f *FakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *FakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%uint32(f.dim)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

func (f *FakeEmbedder) Dimension() int { return f.dim }

func (f *FakeEmbedder) Model() string { return "fake-embedding" }

var (
	_ domain.Embedder = (*MockEmbedder)(nil)
	_ domain.Embedder = (*FakeEmbedder)(nil)
)
