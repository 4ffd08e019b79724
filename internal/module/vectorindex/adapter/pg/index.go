package pg

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"

	pgvector "github.com/pgvector/pgvector-go"
)

const (
	backendName   = "pgvector"
	registryTable = "semsearch_indexes"

	// tablePrefix の後ろは16進文字のみなので registryTable とは衝突しない
	tablePrefix = "semsearch_idx_"
)

// Index は PostgreSQL + pgvector に保存するベクトルインデックス
// インデックスごとに1テーブルを作成し、次元数はレジストリテーブルで管理します
type Index struct {
	pool *pgxpool.Pool
	name string
}

// New は接続プールとインデックス名から Index を作成します
func New(pool *pgxpool.Pool, name string) *Index {
	return &Index{pool: pool, name: name}
}

// table はインデックスのテーブル名（引用済み）を返します
// 名前の大文字小文字や記号の違いで別テーブルになるよう、名前そのもののハッシュから作ります
func (i *Index) table() string {
	return pgx.Identifier{tableName(i.name)}.Sanitize()
}

func tableName(name string) string {
	sum := sha1.Sum([]byte(name))
	return tablePrefix + hex.EncodeToString(sum[:])[:16]
}

// Ensure はインデックスを作成するか、既存の次元数と一致するか確認します
func (i *Index) Ensure(ctx context.Context, spec domain.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if spec.Metric == "" {
		spec.Metric = domain.MetricCosine
	}
	i.name = spec.Name

	if _, err := i.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", classify("pg.ensure", err))
	}
	if _, err := i.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+registryTable+` (
			name       TEXT PRIMARY KEY,
			dimension  INTEGER NOT NULL,
			metric     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("failed to create index registry: %w", classify("pg.ensure", err))
	}

	dim, _, err := i.lookup(ctx)
	switch {
	case errors.Is(err, domain.ErrIndexNotFound):
		return i.create(ctx, spec)
	case err != nil:
		return err
	case dim != spec.Dimension:
		return failure.DimensionMismatch("pg.ensure", dim, spec.Dimension)
	}
	return nil
}

func (i *Index) create(ctx context.Context, spec domain.Spec) error {
	tx, err := i.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify("pg.ensure", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 同時に作成された場合は後続側がレジストリの値と比較する
	if err := lockIndex(ctx, tx, spec.Name); err != nil {
		return classify("pg.ensure", err)
	}
	var existing int
	err = tx.QueryRow(ctx, `SELECT dimension FROM `+registryTable+` WHERE name = $1`, spec.Name).Scan(&existing)
	switch {
	case err == nil:
		if existing != spec.Dimension {
			return failure.DimensionMismatch("pg.ensure", existing, spec.Dimension)
		}
		return nil
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("failed to read index registry: %w", classify("pg.ensure", err))
	}

	// 次元数は Spec.Validate で正の整数であることを確認済み
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         UUID PRIMARY KEY,
			embedding  vector(%d) NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, i.table(), spec.Dimension)
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create index table: %w", classify("pg.ensure", err))
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+registryTable+` (name, dimension, metric) VALUES ($1, $2, $3)`,
		spec.Name, spec.Dimension, string(spec.Metric)); err != nil {
		return fmt.Errorf("failed to register index: %w", classify("pg.ensure", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify("pg.ensure", err))
	}
	return nil
}

// Drop はインデックスのテーブルとレジストリのエントリを削除します
func (i *Index) Drop(ctx context.Context) (bool, error) {
	if _, _, err := i.lookup(ctx); err != nil {
		if errors.Is(err, domain.ErrIndexNotFound) {
			return false, nil
		}
		return false, err
	}

	tx, err := i.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", classify("pg.drop", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockIndex(ctx, tx, i.name); err != nil {
		return false, classify("pg.drop", err)
	}
	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+i.table()); err != nil {
		return false, fmt.Errorf("failed to drop index table: %w", classify("pg.drop", err))
	}
	tag, err := tx.Exec(ctx, `DELETE FROM `+registryTable+` WHERE name = $1`, i.name)
	if err != nil {
		return false, fmt.Errorf("failed to unregister index: %w", classify("pg.drop", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", classify("pg.drop", err))
	}
	return tag.RowsAffected() > 0, nil
}

// Upsert はレコードを1トランザクションで挿入または上書きします
func (i *Index) Upsert(ctx context.Context, records []domain.Record) (int, error) {
	dim, _, err := i.lookup(ctx)
	if err != nil {
		return 0, err
	}
	if err := domain.ValidateRecords("pg.upsert", records, dim); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO ` + i.table() + ` (id, embedding, metadata, updated_at)
		VALUES ($1::uuid, $2::vector, $3::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal metadata for %s: %w", r.ID, err)
		}
		batch.Queue(query, r.ID, pgvector.NewVector(r.Vector), string(meta))
	}

	tx, err := i.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", classify("pg.upsert", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to upsert records: %w", classify("pg.upsert", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", classify("pg.upsert", err))
	}
	return len(records), nil
}

// Query はコサイン距離の近い順に最大 k 件を返します
func (i *Index) Query(ctx context.Context, vector []float32, k int, filter *domain.Filter) ([]domain.Result, error) {
	dim, _, err := i.lookup(ctx)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateQuery("pg.query", vector, dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	where := "{}"
	if !filter.Empty() {
		b, err := json.Marshal(filter.Equals)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		where = string(b)
	}

	rows, err := i.pool.Query(ctx, `
		SELECT id::text, metadata::text, 1 - (embedding <=> $1::vector) AS score
		FROM `+i.table()+`
		WHERE metadata @> $2::jsonb
		ORDER BY embedding <=> $1::vector, id
		LIMIT $3`,
		pgvector.NewVector(vector), where, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", classify("pg.query", err))
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		var (
			id    string
			meta  string
			score float64
		)
		if err := rows.Scan(&id, &meta, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		var metadata map[string]string
		if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", id, err)
		}
		results = append(results, domain.ResultFrom(id, metadata, score))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", classify("pg.query", err))
	}
	return results, nil
}

// Describe はインデックスの状態を返します
func (i *Index) Describe(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{Name: i.name, Backend: backendName}

	dim, metric, err := i.lookup(ctx)
	if err != nil {
		return stats, err
	}

	var count int
	if err := i.pool.QueryRow(ctx, `SELECT count(*) FROM `+i.table()).Scan(&count); err != nil {
		return stats, fmt.Errorf("failed to count records: %w", classify("pg.describe", err))
	}

	stats.RecordCount = count
	stats.Dimension = dim
	stats.Metric = metric
	return stats, nil
}

// Close は接続プールを閉じます
func (i *Index) Close() error {
	i.pool.Close()
	return nil
}

// lookup はレジストリから次元数と尺度を取得します
func (i *Index) lookup(ctx context.Context) (int, domain.Metric, error) {
	var (
		dim    int
		metric string
	)
	err := i.pool.QueryRow(ctx,
		`SELECT dimension, metric FROM `+registryTable+` WHERE name = $1`, i.name).Scan(&dim, &metric)
	switch {
	case errors.Is(err, pgx.ErrNoRows), isUndefinedTable(err):
		return 0, "", domain.ErrIndexNotFound
	case err != nil:
		return 0, "", fmt.Errorf("failed to look up index %s: %w", i.name, classify("pg.lookup", err))
	}
	return dim, domain.Metric(metric), nil
}

var _ domain.Store = (*Index)(nil)
