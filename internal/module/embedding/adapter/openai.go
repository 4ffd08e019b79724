package adapter

import (
	"context"
	"sort"

	"github.com/jinford/semsearch/internal/module/embedding/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIUsageURL はOpenAI APIのレート制限の説明ページ
const OpenAIUsageURL = "https://platform.openai.com/docs/guides/rate-limits"

// OpenAIEmbedder はOpenAI互換のEmbeddings APIを使用したEmbedder実装
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder は新しいOpenAIEmbedderを作成します
// baseURL が空でない場合はOpenAI互換のエンドポイントに接続します
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimension int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, domain.ErrAPIKeyNotSet
	}

	// リトライは QuotaGuard が管理する
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}, nil
}

// Embed はバッチでEmbeddingを生成します（最大100件）
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > domain.MaxBatchSize {
		return nil, domain.ErrBatchTooLarge
	}

	const op = "openai.embeddings"

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}

	// dimensionパラメータを追加（text-embedding-3-smallなどで有効）
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classify(ctx, op, err)
	}

	// 応答の順序は index で保証されるため並べ直す
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, 0, len(data))
	for _, d := range data {
		embeddings = append(embeddings, domain.ToFloat32(d.Embedding))
	}

	if err := domain.CheckVectors(op, embeddings, len(texts), e.dimension); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Dimension はEmbeddingベクトルの次元数を返す
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Model はモデル名を返す
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// インターフェース実装の確認
var _ domain.Embedder = (*OpenAIEmbedder)(nil)
