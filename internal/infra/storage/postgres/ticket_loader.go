package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/vietddude/sigitm-etl/internal/core/domain"
)

// TicketLoader persists transformed record sets into the target table.
type TicketLoader struct {
	db  *DB
	log *slog.Logger
}

func NewTicketLoader(db *DB, log *slog.Logger) *TicketLoader {
	if log == nil {
		log = slog.Default()
	}
	return &TicketLoader{db: db, log: log}
}

// EnsureSchema applies pending migrations, then verifies the target
// table carries every column the record set expects.
func (l *TicketLoader) EnsureSchema(ctx context.Context, schema domain.RecordSchema) error {
	if err := Migrate(ctx, l.db); err != nil {
		return classify("ensure schema", err)
	}

	const q = `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
	`
	var names []string
	if err := l.db.SelectContext(ctx, &names, q, l.db.cfg.Schema, schema.Table); err != nil {
		return classify("inspect schema", err)
	}
	if len(names) == 0 {
		return domain.Fatal(domain.KindSchemaMismatch,
			fmt.Errorf("table %s.%s does not exist after migration", l.db.cfg.Schema, schema.Table))
	}

	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	for _, col := range schema.Columns {
		if !have[col.Name] {
			return domain.Fatal(domain.KindSchemaMismatch,
				fmt.Errorf("table %s.%s is missing column %q", l.db.cfg.Schema, schema.Table, col.Name))
		}
	}
	return nil
}

// BulkLoad copies the record set into the target table in a single
// transaction. Any failure mid-copy leaves the table unchanged.
func (l *TicketLoader) BulkLoad(ctx context.Context, rs *domain.RecordSet) (int64, error) {
	if rs.RowCount() == 0 {
		l.log.Info("record set is empty, nothing to load", "table", rs.Schema.Table)
		return 0, nil
	}

	tx, err := l.db.Pool.Begin(ctx)
	if err != nil {
		return 0, classify("begin load", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{l.db.cfg.Schema, rs.Schema.Table},
		rs.Schema.ColumnNames(),
		pgx.CopyFromRows(rs.Rows),
	)
	if err != nil {
		return 0, classify("copy rows", err)
	}
	if copied != int64(rs.RowCount()) {
		return 0, fmt.Errorf("copied %d of %d rows", copied, rs.RowCount())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classify("commit load", err)
	}

	l.log.Info("bulk load committed", "table", rs.Schema.Table, "rows", copied)
	return copied, nil
}
