package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlite3 "modernc.org/sqlite/lib"
)

type codedError struct{ code int }

func (e codedError) Error() string { return fmt.Sprintf("sqlite error %d", e.code) }
func (e codedError) Code() int     { return e.code }

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", nil))

	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "busy", err: codedError{code: sqlite3.SQLITE_BUSY}, unavailable: true},
		{name: "busy snapshot", err: codedError{code: sqlite3.SQLITE_BUSY_SNAPSHOT}, unavailable: true},
		{name: "locked", err: fmt.Errorf("exec: %w", codedError{code: sqlite3.SQLITE_LOCKED}), unavailable: true},
		{name: "connection done", err: sql.ErrConnDone, unavailable: true},
		{name: "constraint", err: codedError{code: sqlite3.SQLITE_CONSTRAINT}},
		{name: "plain", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("sqlite.upsert", tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(err, failure.ErrIndexUnavailable))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	already := failure.DimensionMismatch("sqlite.upsert", 4, 3)
	assert.Same(t, already, classify("op", already))
}

func TestIndex_LockedDatabaseIsUnavailable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	holder, err := Open(path, "docs")
	require.NoError(t, err)
	defer holder.Close()
	require.NoError(t, holder.Ensure(ctx, domain.Spec{Name: "docs", Dimension: 2}))

	conn, err := holder.db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)
	defer func() { _, _ = conn.ExecContext(ctx, "ROLLBACK") }()

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(0)")
	require.NoError(t, err)
	defer db.Close()
	writer := &Index{db: db, name: "docs", path: path}

	_, err = writer.Upsert(ctx, []domain.Record{{ID: "00000000-0000-0000-0000-000000000001", Vector: []float32{1, 0}}})

	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrIndexUnavailable)
}

func TestIndex_EnsureUsesSpecName(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(":memory:", "first")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Ensure(ctx, domain.Spec{Name: "first", Dimension: 4}))
	require.NoError(t, idx.Ensure(ctx, domain.Spec{Name: "second", Dimension: 8}))

	stats, err := idx.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", stats.Name)
	assert.Equal(t, 8, stats.Dimension)

	err = idx.Ensure(ctx, domain.Spec{Name: "first", Dimension: 8})
	assert.ErrorIs(t, err, failure.ErrDimensionMismatch)
}
