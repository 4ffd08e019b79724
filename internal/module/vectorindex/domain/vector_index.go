package domain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrIndexNotFound はインデックスがまだ作成されていない場合のエラー
var ErrIndexNotFound = errors.New("index not found")

// Metric は類似度の尺度
type Metric string

const (
	// MetricCosine はコサイン類似度（大きいほど類似）
	MetricCosine Metric = "cosine"
)

// ParseMetric は文字列から Metric を解析します
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricCosine:
		return MetricCosine, nil
	}
	return "", fmt.Errorf("unsupported metric: %q", s)
}

// Record はインデックスに保存する1件のレコードです
// 同じIDのレコードを再度 upsert すると上書きされます
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Result はクエリ結果の1件です
type Result struct {
	ID       string
	Text     string
	Metadata map[string]string
	// Score はコサイン類似度（大きいほど類似）
	Score float64
}

// Filter はメタデータの完全一致条件です（すべてのキーが一致したレコードのみ返す）
type Filter struct {
	Equals map[string]string
}

// Empty は条件が空かどうかを返します
func (f *Filter) Empty() bool {
	return f == nil || len(f.Equals) == 0
}

// Matches はメタデータが条件を満たすかを返します
func (f *Filter) Matches(metadata map[string]string) bool {
	if f.Empty() {
		return true
	}
	for k, v := range f.Equals {
		if got, ok := metadata[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// Spec はインデックスの作成条件です
type Spec struct {
	Name      string
	Dimension int
	Metric    Metric
}

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)

// Validate はインデックス名と次元数を検証します
func (s Spec) Validate() error {
	if !indexNamePattern.MatchString(s.Name) {
		return fmt.Errorf("invalid index name %q: use letters, digits, '-' or '_' (max 63)", s.Name)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("index dimension must be positive: %d", s.Dimension)
	}
	if _, err := ParseMetric(string(s.Metric)); err != nil {
		return err
	}
	return nil
}

// Stats はインデックスの状態です
type Stats struct {
	Name        string
	Backend     string
	RecordCount int
	Dimension   int
	Metric      Metric
}

// VectorIndex は埋め込みベクトルを保存・検索するインターフェース
type VectorIndex interface {
	// Upsert はレコードを挿入または上書きし、書き込んだ件数を返します
	// 1件でも次元数が合わない場合は何も書き込まずに DimensionMismatch を返します
	Upsert(ctx context.Context, records []Record) (int, error)

	// Query は類似度の高い順に最大 k 件を返します
	Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Result, error)

	// Describe はインデックスの状態を返します（存在しない場合は ErrIndexNotFound）
	Describe(ctx context.Context) (Stats, error)
}

// Provisioner はインデックスの作成・削除を行うインターフェース
type Provisioner interface {
	// Ensure はインデックスが無ければ作成し、あれば次元数が一致するか確認します
	Ensure(ctx context.Context, spec Spec) error

	// Drop はインデックスを削除します。存在しなかった場合は false を返します
	Drop(ctx context.Context) (bool, error)
}

// Store は VectorIndex と Provisioner の両方を備えたバックエンドです
type Store interface {
	VectorIndex
	Provisioner
	Close() error
}
