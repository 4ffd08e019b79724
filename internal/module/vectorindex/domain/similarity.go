package domain

import (
	"math"
	"sort"

	"github.com/jinford/semsearch/internal/shared/failure"
)

// ValidateRecords はすべてのレコードの次元数を書き込み前に検証します
func ValidateRecords(op string, records []Record, dimension int) error {
	for _, r := range records {
		if len(r.Vector) != dimension {
			return failure.DimensionMismatch(op, dimension, len(r.Vector))
		}
	}
	return nil
}

// ValidateQuery はクエリベクトルの次元数を検証します
func ValidateQuery(op string, vector []float32, dimension int) error {
	if len(vector) != dimension {
		return failure.DimensionMismatch(op, dimension, len(vector))
	}
	return nil
}

// Cosine は2つのベクトルのコサイン類似度を返します
// 次元数が異なる場合やゼロベクトルの場合は0を返します
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2))
}

// TopK はスコアの降順に並べて先頭 k 件を返します（同点はID順）
func TopK(results []Result, k int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results
}

// ResultFrom はレコードのメタデータからクエリ結果を組み立てます
func ResultFrom(id string, metadata map[string]string, score float64) Result {
	return Result{
		ID:       id,
		Text:     metadata[MetadataText],
		Metadata: metadata,
		Score:    score,
	}
}

// MetadataText はチャンク本文を保持するメタデータのキー
const MetadataText = "text"
