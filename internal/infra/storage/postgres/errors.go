package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vietddude/sigitm-etl/internal/core/domain"
)

// classify maps a database failure onto the pipeline's error kinds by
// SQLSTATE class. Integrity and schema violations will not fix
// themselves on a retry; connection-level failures might.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", op, err)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch sqlStateClass(pgErr.Code) {
		case "22", "23":
			return domain.Fatal(domain.KindConstraintViolation, wrapped)
		case "42":
			return domain.Fatal(domain.KindSchemaMismatch, wrapped)
		case "08", "53", "57":
			return domain.Retryable(domain.KindConnectionLost, wrapped)
		}
		return wrapped
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// left untouched so the phase executor sees the deadline
		return err
	case errors.As(err, &netErr),
		errors.Is(err, driver.ErrBadConn),
		pgconn.Timeout(err):
		return domain.Retryable(domain.KindConnectionLost, wrapped)
	}
	return wrapped
}

func sqlStateClass(code string) string {
	if len(code) < 2 {
		return code
	}
	return code[:2]
}
