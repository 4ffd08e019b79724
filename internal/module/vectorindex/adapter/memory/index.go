package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
)

// Index はプロセス内のマップに保存する総当たりのベクトルインデックス
// テストや保存先を持たない試行実行に使います
type Index struct {
	mu      sync.RWMutex
	name    string
	spec    *domain.Spec
	records map[string]domain.Record
}

// New は空のインデックスを作成します（Ensure するまで存在しない扱い）
func New(name string) *Index {
	return &Index{name: name}
}

// Ensure はインデックスを作成するか、既存の次元数と一致するか確認します
func (i *Index) Ensure(_ context.Context, spec domain.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.spec != nil {
		if i.spec.Dimension != spec.Dimension {
			return failure.DimensionMismatch("memory.ensure", i.spec.Dimension, spec.Dimension)
		}
		return nil
	}

	s := spec
	if s.Metric == "" {
		s.Metric = domain.MetricCosine
	}
	i.spec = &s
	i.name = s.Name
	i.records = make(map[string]domain.Record)
	return nil
}

// Drop はインデックスを削除します
func (i *Index) Drop(_ context.Context) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	existed := i.spec != nil
	i.spec = nil
	i.records = nil
	return existed, nil
}

// Upsert はレコードを挿入または上書きします
func (i *Index) Upsert(_ context.Context, records []domain.Record) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.spec == nil {
		return 0, domain.ErrIndexNotFound
	}
	if err := domain.ValidateRecords("memory.upsert", records, i.spec.Dimension); err != nil {
		return 0, err
	}

	for _, r := range records {
		i.records[r.ID] = domain.Record{
			ID:       r.ID,
			Vector:   append([]float32(nil), r.Vector...),
			Metadata: maps.Clone(r.Metadata),
		}
	}
	return len(records), nil
}

// Query は類似度の高い順に最大 k 件を返します
func (i *Index) Query(_ context.Context, vector []float32, k int, filter *domain.Filter) ([]domain.Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.spec == nil {
		return nil, domain.ErrIndexNotFound
	}
	if err := domain.ValidateQuery("memory.query", vector, i.spec.Dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	results := make([]domain.Result, 0, len(i.records))
	for id, r := range i.records {
		if !filter.Matches(r.Metadata) {
			continue
		}
		results = append(results, domain.ResultFrom(id, maps.Clone(r.Metadata), domain.Cosine(vector, r.Vector)))
	}
	return domain.TopK(results, k), nil
}

// Describe はインデックスの状態を返します
func (i *Index) Describe(_ context.Context) (domain.Stats, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.spec == nil {
		return domain.Stats{Name: i.name, Backend: "memory"}, domain.ErrIndexNotFound
	}
	return domain.Stats{
		Name:        i.spec.Name,
		Backend:     "memory",
		RecordCount: len(i.records),
		Dimension:   i.spec.Dimension,
		Metric:      i.spec.Metric,
	}, nil
}

// Close は何もしません
func (i *Index) Close() error { return nil }

var _ domain.Store = (*Index)(nil)
