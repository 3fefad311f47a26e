package transform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vietddude/sigitm-etl/internal/core/domain"
)

const defaultTable = "tickets"

// dateLayouts are tried in order. The portal writes day-first dates;
// the ISO forms cover re-exports that went through a spreadsheet save.
var dateLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/06 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006",
	"02/01/06",
}

// Transformer normalizes a raw portal export into a typed record set
// ready for bulk load: canonical column names, typed dates, cleaned
// identifiers, nulls instead of placeholder strings, and only the rows
// closed strictly before the cutoff.
type Transformer struct {
	table string
	log   *slog.Logger
}

func New(table string, log *slog.Logger) *Transformer {
	if table == "" {
		table = defaultTable
	}
	if log == nil {
		log = slog.Default()
	}
	return &Transformer{table: table, log: log}
}

func (t *Transformer) Run(ctx context.Context, artifact domain.Artifact, cutoffDate time.Time) (*domain.RecordSet, error) {
	file, ok := artifact.(domain.FileArtifact)
	if !ok {
		return nil, domain.Fatal(domain.KindMalformedInput,
			fmt.Errorf("artifact %q does not reference a file", artifact.Ref()))
	}

	wb, err := excelize.OpenFile(file.Path())
	if err != nil {
		return nil, domain.Fatal(domain.KindMalformedInput,
			fmt.Errorf("open workbook: %w", err))
	}
	defer func() { _ = wb.Close() }()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.Fatal(domain.KindMalformedInput,
			fmt.Errorf("workbook %q has no sheets", artifact.Ref()))
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, domain.Fatal(domain.KindMalformedInput,
			fmt.Errorf("read sheet %q: %w", sheets[0], err))
	}
	if len(rows) == 0 {
		return nil, domain.Fatal(domain.KindMalformedInput,
			fmt.Errorf("sheet %q has no header row", sheets[0]))
	}

	idx, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	columns := loadedColumns()
	out := &domain.RecordSet{Schema: recordSchema(t.table, columns)}

	var kept, filtered, coerced int
	loc := cutoffDate.Location()
	for n, row := range rows[1:] {
		if n%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		values := make([]any, len(columns))
		var closedAt time.Time
		var closed bool
		for i, col := range columns {
			v := cellValue(row, idx[col.name])
			switch {
			case v == nil:
			case col.date:
				ts, ok := parseDate(v.(string), loc)
				if !ok {
					coerced++
					break
				}
				values[i] = ts
				if col.name == "data_encerramento" {
					closedAt, closed = ts, true
				}
			case col.id:
				if id := cleanID(v.(string)); id != "" {
					values[i] = id
				}
			default:
				values[i] = v
			}
		}

		// tickets still open at the cutoff (or with an unusable close
		// date) are tomorrow's extraction, not today's
		if !closed || !closedAt.Before(cutoffDate) {
			filtered++
			continue
		}
		out.Rows = append(out.Rows, values)
		kept++
	}

	if coerced > 0 {
		t.log.Warn("unparseable date cells nulled", "cells", coerced)
	}
	t.log.Info("transformation complete",
		"rows_in", len(rows)-1,
		"rows_kept", kept,
		"rows_filtered", filtered,
		"cutoff", cutoffDate.Format("2006-01-02 15:04"),
	)
	return out, nil
}

// headerIndex maps each destination column to its position in the
// export's header row. Missing required headers fail the phase; the
// file will not grow them on a retry.
func headerIndex(header []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}

	idx := make(map[string]int, len(ticketColumns))
	for _, col := range ticketColumns {
		p, ok := pos[col.header]
		if !ok {
			if col.required {
				return nil, domain.Fatal(domain.KindMissingRequiredField,
					fmt.Errorf("export is missing required column %q", col.header))
			}
			p = -1
		}
		idx[col.name] = p
	}
	return idx, nil
}

func recordSchema(table string, columns []columnSpec) domain.RecordSchema {
	schema := domain.RecordSchema{Table: table, Columns: make([]domain.Column, len(columns))}
	for i, col := range columns {
		sqlType := "text"
		if col.date {
			sqlType = "timestamp"
		}
		schema.Columns[i] = domain.Column{Name: col.name, SQLType: sqlType}
	}
	return schema
}

// cellValue fetches and normalizes one cell: absent columns, blanks
// and the exporter's null placeholders all come back as nil.
func cellValue(row []string, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	v := strings.TrimSpace(row[idx])
	switch v {
	case "", "None", "nan", "NaT":
		return nil
	}
	return v
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts.Truncate(time.Minute), true
		}
	}
	return time.Time{}, false
}

// cleanID undoes the float formatting identifiers pick up in transit:
// "12345.0" means 12345, and a bare zero means the field was absent.
func cleanID(s string) string {
	s = strings.TrimSuffix(s, ".0")
	if s == "0" {
		return ""
	}
	return s
}
