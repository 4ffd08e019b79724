package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinford/semsearch/internal/module/embedding/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"
)

const (
	// GeminiUsageURL はGemini APIのレート制限・クォータの説明ページ
	GeminiUsageURL = "https://ai.google.dev/gemini-api/docs/rate-limits"

	// TaskTypeRetrievalDocument は文書側の埋め込みに使うタスク種別
	TaskTypeRetrievalDocument = "RETRIEVAL_DOCUMENT"
	// TaskTypeRetrievalQuery は検索クエリ側の埋め込みに使うタスク種別
	TaskTypeRetrievalQuery = "RETRIEVAL_QUERY"
)

// GeminiEmbedder はGemini API（generativelanguage v1beta）を使用したEmbedder実装
type GeminiEmbedder struct {
	service   *generativelanguage.Service
	model     string
	dimension int
	taskType  string
}

// NewGeminiEmbedder は新しいGeminiEmbedderを作成します
// opts はエンドポイントやHTTPクライアントの差し替えに使います
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int, taskType string, opts ...option.ClientOption) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, domain.ErrAPIKeyNotSet
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := generativelanguage.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if taskType == "" {
		taskType = TaskTypeRetrievalDocument
	}

	return &GeminiEmbedder{
		service:   service,
		model:     strings.TrimPrefix(model, "models/"),
		dimension: dimension,
		taskType:  taskType,
	}, nil
}

// ForQuery は検索クエリ用のタスク種別で埋め込むEmbedderを返します
func (e *GeminiEmbedder) ForQuery() domain.Embedder {
	q := *e
	q.taskType = TaskTypeRetrievalQuery
	return &q
}

// Embed はテキストからEmbeddingベクトルを生成します（最大100件）
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > domain.MaxBatchSize {
		return nil, domain.ErrBatchTooLarge
	}

	const op = "gemini.batchEmbedContents"
	modelName := "models/" + e.model

	requests := make([]*generativelanguage.EmbedContentRequest, len(texts))
	for i, text := range texts {
		requests[i] = &generativelanguage.EmbedContentRequest{
			Model: modelName,
			Content: &generativelanguage.Content{
				Parts: []*generativelanguage.Part{{Text: text}},
			},
			TaskType:             e.taskType,
			OutputDimensionality: int64(e.dimension),
		}
	}

	resp, err := e.service.Models.BatchEmbedContents(modelName, &generativelanguage.BatchEmbedContentsRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify(ctx, op, err)
	}

	embeddings := make([][]float32, 0, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, failure.Provider(op, 0, false, fmt.Errorf("embedding %d is missing from the response", i))
		}
		embeddings = append(embeddings, domain.ToFloat32(emb.Values))
	}

	if err := domain.CheckVectors(op, embeddings, len(texts), e.dimension); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Dimension はEmbeddingベクトルの次元数を返す
func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

// Model はモデル名を返す
func (e *GeminiEmbedder) Model() string {
	return e.model
}

// インターフェース実装の確認
var _ domain.Embedder = (*GeminiEmbedder)(nil)
