package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"

	_ "modernc.org/sqlite" // SQLite driver
)

const backendName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS vector_indexes (
	name       TEXT PRIMARY KEY,
	dimension  INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE TABLE IF NOT EXISTS vector_records (
	index_name TEXT NOT NULL,
	id         TEXT NOT NULL,
	vector     BLOB NOT NULL,
	metadata   TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (index_name, id)
);
`

// Index は SQLite に保存するベクトルインデックス
// 類似度は対象インデックスの全レコードを読み込んで計算します
type Index struct {
	db   *sql.DB
	name string
	path string
}

// Open はデータベースを開き、スキーマを作成します
// path が ":memory:" の場合はプロセス内のデータベースを使います
func Open(path, name string) (*Index, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// 単一接続に揃える（":memory:" は接続ごとに別データベースになるため）
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Index{db: db, name: name, path: path}, nil
}

// Close はデータベース接続を閉じます
func (i *Index) Close() error {
	return i.db.Close()
}

// Ensure はインデックスを登録するか、既存の次元数と一致するか確認します
func (i *Index) Ensure(ctx context.Context, spec domain.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if spec.Metric == "" {
		spec.Metric = domain.MetricCosine
	}
	i.name = spec.Name

	dim, _, err := i.lookup(ctx)
	switch {
	case errors.Is(err, domain.ErrIndexNotFound):
		_, err := i.db.ExecContext(ctx,
			`INSERT INTO vector_indexes(name, dimension, metric) VALUES(?, ?, ?)`,
			spec.Name, spec.Dimension, string(spec.Metric))
		if err != nil {
			return fmt.Errorf("registering index %s: %w", spec.Name, classify("sqlite.ensure", err))
		}
		return nil
	case err != nil:
		return err
	case dim != spec.Dimension:
		return failure.DimensionMismatch("sqlite.ensure", dim, spec.Dimension)
	}
	return nil
}

// Drop はインデックスとそのレコードを削除します
func (i *Index) Drop(ctx context.Context) (bool, error) {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", classify("sqlite.drop", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_records WHERE index_name = ?`, i.name); err != nil {
		return false, fmt.Errorf("deleting records: %w", classify("sqlite.drop", err))
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM vector_indexes WHERE name = ?`, i.name)
	if err != nil {
		return false, fmt.Errorf("deleting index: %w", classify("sqlite.drop", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", classify("sqlite.drop", err))
	}
	return n > 0, nil
}

// lookup は登録済みの次元数と尺度を返します
func (i *Index) lookup(ctx context.Context) (int, domain.Metric, error) {
	var (
		dim    int
		metric string
	)
	err := i.db.QueryRowContext(ctx,
		`SELECT dimension, metric FROM vector_indexes WHERE name = ?`, i.name).Scan(&dim, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", domain.ErrIndexNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("looking up index %s: %w", i.name, classify("sqlite.lookup", err))
	}
	return dim, domain.Metric(metric), nil
}
