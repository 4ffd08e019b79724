package sqlite

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jinford/semsearch/internal/module/vectorindex/domain"
)

// Upsert はレコードを挿入または上書きします
func (i *Index) Upsert(ctx context.Context, records []domain.Record) (int, error) {
	dim, _, err := i.lookup(ctx)
	if err != nil {
		return 0, err
	}
	if err := domain.ValidateRecords("sqlite.upsert", records, dim); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", classify("sqlite.upsert", err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vector_records(index_name, id, vector, metadata, updated_at)
		VALUES(?, ?, ?, ?, datetime('now'))
		ON CONFLICT(index_name, id) DO UPDATE SET
			vector = excluded.vector,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", classify("sqlite.upsert", err))
	}
	defer stmt.Close()

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshaling metadata for %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, i.name, r.ID, encodeVector(r.Vector), string(meta)); err != nil {
			return 0, fmt.Errorf("upserting record %s: %w", r.ID, classify("sqlite.upsert", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing upsert: %w", classify("sqlite.upsert", err))
	}
	return len(records), nil
}

// Query は類似度の高い順に最大 k 件を返します
func (i *Index) Query(ctx context.Context, vector []float32, k int, filter *domain.Filter) ([]domain.Result, error) {
	dim, _, err := i.lookup(ctx)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateQuery("sqlite.query", vector, dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := i.db.QueryContext(ctx,
		`SELECT id, vector, metadata FROM vector_records WHERE index_name = ?`, i.name)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", classify("sqlite.query", err))
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		var (
			id   string
			blob []byte
			meta string
		)
		if err := rows.Scan(&id, &blob, &meta); err != nil {
			return nil, fmt.Errorf("scanning record: %w", classify("sqlite.query", err))
		}

		var metadata map[string]string
		if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", id, err)
		}
		if !filter.Matches(metadata) {
			continue
		}

		stored, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", id, err)
		}
		results = append(results, domain.ResultFrom(id, metadata, domain.Cosine(vector, stored)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", classify("sqlite.query", err))
	}

	return domain.TopK(results, k), nil
}

// Describe はインデックスの状態を返します
func (i *Index) Describe(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{Name: i.name, Backend: backendName}

	dim, metric, err := i.lookup(ctx)
	if err != nil {
		return stats, err
	}

	var count int
	if err := i.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vector_records WHERE index_name = ?`, i.name).Scan(&count); err != nil {
		return stats, fmt.Errorf("counting records: %w", classify("sqlite.describe", err))
	}

	stats.RecordCount = count
	stats.Dimension = dim
	stats.Metric = metric
	return stats, nil
}

// encodeVector は float32 のリトルエンディアン列としてエンコードします
func encodeVector(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// decodeVector は encodeVector の逆変換です
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

var _ domain.Store = (*Index)(nil)
