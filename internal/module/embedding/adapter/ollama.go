package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jinford/semsearch/internal/module/embedding/domain"
	"github.com/ollama/ollama/api"
)

// DefaultOllamaHost はOllamaサーバーのデフォルトURL
const DefaultOllamaHost = "http://localhost:11434"

// OllamaEmbedder はローカルのOllamaサーバーを使用したEmbedder実装
type OllamaEmbedder struct {
	client    *api.Client
	model     string
	dimension int
}

// NewOllamaEmbedder は新しいOllamaEmbedderを作成します
func NewOllamaEmbedder(host, model string, dimension int) (*OllamaEmbedder, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	httpClient := &http.Client{Timeout: 2 * time.Minute}

	return &OllamaEmbedder{
		client:    api.NewClient(base, httpClient),
		model:     model,
		dimension: dimension,
	}, nil
}

// Embed はバッチでEmbeddingを生成します（最大100件）
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > domain.MaxBatchSize {
		return nil, domain.ErrBatchTooLarge
	}

	const op = "ollama.embed"

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, classify(ctx, op, err)
	}

	if err := domain.CheckVectors(op, resp.Embeddings, len(texts), e.dimension); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// Dimension はEmbeddingベクトルの次元数を返す
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// Model はモデル名を返す
func (e *OllamaEmbedder) Model() string {
	return e.model
}

// インターフェース実装の確認
var _ domain.Embedder = (*OllamaEmbedder)(nil)
