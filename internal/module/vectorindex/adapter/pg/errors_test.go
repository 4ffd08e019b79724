package pg

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jinford/semsearch/internal/shared/failure"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", nil))

	unavailable := []error{
		&pgconn.PgError{Code: "08006", Message: "connection failure"},
		&pgconn.PgError{Code: codeAdminShutdown},
		fmt.Errorf("read: %w", io.ErrUnexpectedEOF),
	}
	for _, err := range unavailable {
		assert.True(t, errors.Is(classify("op", err), failure.ErrIndexUnavailable), "%v", err)
	}

	syntax := &pgconn.PgError{Code: "42601", Message: "syntax error"}
	assert.Same(t, syntax, classify("op", syntax))
}

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, isUndefinedTable(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "42P01"})))
	assert.False(t, isUndefinedTable(errors.New("other")))
}

func TestConnectionParams_ConnString(t *testing.T) {
	p := ConnectionParams{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "d"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.ConnString())
}

func TestIndex_TableName(t *testing.T) {
	idx := New(nil, "semantic-search")
	assert.Equal(t, `"`+tableName("semantic-search")+`"`, idx.table())
	assert.Equal(t, idx.table(), New(nil, "semantic-search").table())
	assert.Regexp(t, `^semsearch_idx_[0-9a-f]{16}$`, tableName("semantic-search"))
}

func TestIndex_TableNameDistinct(t *testing.T) {
	names := []string{"docs-v1", "docs_v1", "Docs_V1", "DOCS-V1", "indexes", "idx", "semsearch_indexes"}

	seen := map[string]string{}
	for _, name := range names {
		table := tableName(name)
		assert.NotEqual(t, registryTable, table, "index %q must not share the registry table", name)
		if other, ok := seen[table]; ok {
			t.Errorf("indexes %q and %q share table %s", name, other, table)
		}
		seen[table] = name
	}
}
