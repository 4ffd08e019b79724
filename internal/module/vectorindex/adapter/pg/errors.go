package pg

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jinford/semsearch/internal/shared/failure"
)

// PostgreSQL のエラーコード
const (
	codeUndefinedTable  = "42P01"
	codeAdminShutdown   = "57P01"
	codeCannotConnect   = "57P03"
	codeTooManyClients  = "53300"
	connectionErrPrefix = "08"
)

// classify は接続系のエラーを IndexUnavailable に変換します
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, connectionErrPrefix),
			pgErr.Code == codeAdminShutdown,
			pgErr.Code == codeCannotConnect,
			pgErr.Code == codeTooManyClients:
			return failure.IndexUnavailable(op, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return failure.IndexUnavailable(op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return failure.IndexUnavailable(op, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return failure.IndexUnavailable(op, err)
	}

	return err
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable
}
