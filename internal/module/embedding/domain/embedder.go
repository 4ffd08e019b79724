package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinford/semsearch/internal/shared/failure"
)

// MaxBatchSize は1回の呼び出しで埋め込める最大件数
const MaxBatchSize = 100

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("API key is not set")

	// ErrBatchTooLarge はバッチが MaxBatchSize を超えた場合のエラー
	ErrBatchTooLarge = fmt.Errorf("batch size exceeds maximum of %d", MaxBatchSize)
)

// Embedder はテキストをベクトル表現に変換するインターフェース
// 実装はプロバイダ固有のエラーを failure.Error に分類して返します
type Embedder interface {
	// Embed は入力と同じ順序・同じ件数のベクトルを返します
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension はEmbeddingベクトルの次元数を返す（不明な場合は0）
	Dimension() int

	// Model はモデル名を返す
	Model() string
}

// CheckVectors はプロバイダの応答が件数・次元数の約束を満たしているか検証します
func CheckVectors(op string, vectors [][]float32, n, dim int) error {
	if len(vectors) != n {
		return failure.Provider(op, 0, false, fmt.Errorf("expected %d embeddings, got %d", n, len(vectors)))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return failure.Provider(op, 0, false, fmt.Errorf("embedding %d is empty", i))
		}
		if dim > 0 && len(v) != dim {
			return failure.DimensionMismatch(op, dim, len(v))
		}
	}
	return nil
}

// ToFloat32 は float64 のベクトルを float32 に変換します
func ToFloat32(values []float64) []float32 {
	vector := make([]float32, len(values))
	for i, v := range values {
		vector[i] = float32(v)
	}
	return vector
}

// QueryEmbedder は検索クエリ用に別の設定で埋め込めるEmbedderです
// Gemini のようにタスク種別で文書とクエリを区別するプロバイダが実装します
type QueryEmbedder interface {
	ForQuery() Embedder
}
