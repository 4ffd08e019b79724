package sqlite

import (
	"database/sql"
	"errors"

	"github.com/jinford/semsearch/internal/shared/failure"

	sqlite3 "modernc.org/sqlite/lib"
)

// classify はロック競合や切断を IndexUnavailable に分類します
// 拡張リザルトコード（SQLITE_BUSY_SNAPSHOT など）は下位8ビットで判定します
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return failure.IndexUnavailable(op, err)
		}
		return err
	}

	if errors.Is(err, sql.ErrConnDone) {
		return failure.IndexUnavailable(op, err)
	}
	return err
}
