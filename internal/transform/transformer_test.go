package transform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vietddude/sigitm-etl/internal/core/domain"
)

// ============================================================================
// Fixtures
// ============================================================================

type fileArtifact string

func (f fileArtifact) Ref() string { return filepath.Base(string(f)) }

func (f fileArtifact) Path() string { return string(f) }

type opaqueArtifact struct{}

func (opaqueArtifact) Ref() string { return "opaque" }

func exportHeaders() []string {
	headers := make([]string, len(ticketColumns))
	for i, col := range ticketColumns {
		headers[i] = col.header
	}
	return headers
}

// exportRow builds one export row in header order with plausible
// defaults, then applies the overrides by column name.
func exportRow(overrides map[string]string) []string {
	row := make([]string, len(ticketColumns))
	for i, col := range ticketColumns {
		switch {
		case col.name == "data_criacao":
			row[i] = "15/06/25 08:30"
		case col.name == "data_encerramento":
			row[i] = "16/06/25 14:32"
		case col.id:
			row[i] = "1001.0"
		default:
			row[i] = "v-" + col.name
		}
		if v, ok := overrides[col.name]; ok {
			row[i] = v
		}
	}
	return row
}

func writeWorkbook(t *testing.T, headers []string, rows ...[]string) domain.FileArtifact {
	t.Helper()
	wb := excelize.NewFile()

	toAny := func(ss []string) []any {
		out := make([]any, len(ss))
		for i, s := range ss {
			out[i] = s
		}
		return out
	}

	cells := toAny(headers)
	if err := wb.SetSheetRow("Sheet1", "A1", &cells); err != nil {
		t.Fatalf("write header row: %v", err)
	}
	for n, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		cells := toAny(row)
		if err := wb.SetSheetRow("Sheet1", cell, &cells); err != nil {
			t.Fatalf("write row %d: %v", n, err)
		}
	}

	path := filepath.Join(t.TempDir(), "CONSULTA_LOTE4_FECHADAS.xlsx")
	if err := wb.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return fileArtifact(path)
}

func testCutoff() time.Time {
	return time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC)
}

func columnIndex(t *testing.T, rs *domain.RecordSet, name string) int {
	t.Helper()
	for i, col := range rs.Schema.Columns {
		if col.Name == name {
			return i
		}
	}
	t.Fatalf("schema has no column %q", name)
	return -1
}

// ============================================================================
// Tests
// ============================================================================

func TestTransformer_NormalizesRows(t *testing.T) {
	art := writeWorkbook(t, exportHeaders(),
		exportRow(map[string]string{"sequencia": "12345.0", "empresa_manutencao": "None"}),
	)

	rs, err := New("", nil).Run(context.Background(), art, testCutoff())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs.RowCount() != 1 {
		t.Fatalf("expected 1 row, got %d", rs.RowCount())
	}

	row := rs.Rows[0]
	if got := row[columnIndex(t, rs, "sequencia")]; got != "12345" {
		t.Errorf("sequencia = %v, want 12345 (float suffix stripped)", got)
	}
	if got := row[columnIndex(t, rs, "empresa_manutencao")]; got != nil {
		t.Errorf(`empresa_manutencao = %v, want nil for "None"`, got)
	}

	wantClosed := time.Date(2025, 6, 16, 14, 32, 0, 0, time.UTC)
	closed, ok := row[columnIndex(t, rs, "data_encerramento")].(time.Time)
	if !ok || !closed.Equal(wantClosed) {
		t.Errorf("data_encerramento = %v, want %v", row[columnIndex(t, rs, "data_encerramento")], wantClosed)
	}
	created, ok := row[columnIndex(t, rs, "data_criacao")].(time.Time)
	if !ok || !created.Equal(time.Date(2025, 6, 15, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("data_criacao = %v, want 2025-06-15 08:30 UTC", row[columnIndex(t, rs, "data_criacao")])
	}
}

func TestTransformer_SchemaShape(t *testing.T) {
	art := writeWorkbook(t, exportHeaders(), exportRow(nil))

	rs, err := New("fechadas", nil).Run(context.Background(), art, testCutoff())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rs.Schema.Table != "fechadas" {
		t.Errorf("table = %q, want fechadas", rs.Schema.Table)
	}
	if len(rs.Schema.Columns) != len(ticketColumns)-1 {
		t.Errorf("expected %d columns, got %d", len(ticketColumns)-1, len(rs.Schema.Columns))
	}
	for _, col := range rs.Schema.Columns {
		if col.Name == "vta_pk" {
			t.Error("vta_pk must not be loaded")
		}
		want := "text"
		if col.Name == "data_criacao" || col.Name == "data_encerramento" {
			want = "timestamp"
		}
		if col.SQLType != want {
			t.Errorf("column %s type = %q, want %q", col.Name, col.SQLType, want)
		}
	}
	if len(rs.Rows[0]) != len(rs.Schema.Columns) {
		t.Errorf("row width %d != schema width %d", len(rs.Rows[0]), len(rs.Schema.Columns))
	}
}

func TestTransformer_FiltersAtCutoff(t *testing.T) {
	art := writeWorkbook(t, exportHeaders(),
		exportRow(map[string]string{"data_encerramento": "16/06/25 23:59"}), // kept
		exportRow(map[string]string{"data_encerramento": "17/06/25 00:00"}), // at the boundary
		exportRow(map[string]string{"data_encerramento": "17/06/25 09:15"}), // after
		exportRow(map[string]string{"data_encerramento": ""}),               // still open
		exportRow(map[string]string{"data_encerramento": "not a date"}),     // unusable
	)

	rs, err := New("", nil).Run(context.Background(), art, testCutoff())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs.RowCount() != 1 {
		t.Fatalf("expected only the pre-cutoff row, got %d rows", rs.RowCount())
	}
}

func TestTransformer_AllRowsFilteredIsNotAnError(t *testing.T) {
	art := writeWorkbook(t, exportHeaders(),
		exportRow(map[string]string{"data_encerramento": "18/06/25 10:00"}),
	)

	rs, err := New("", nil).Run(context.Background(), art, testCutoff())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs.RowCount() != 0 {
		t.Errorf("expected empty record set, got %d rows", rs.RowCount())
	}
	if len(rs.Schema.Columns) == 0 {
		t.Error("schema must survive an empty set")
	}
}

func TestTransformer_DateVariants(t *testing.T) {
	art := writeWorkbook(t, exportHeaders(),
		exportRow(map[string]string{"data_encerramento": "16/06/2025 14:32:59"}),
		exportRow(map[string]string{"data_encerramento": "2025-06-16 11:05"}),
	)

	rs, err := New("", nil).Run(context.Background(), art, testCutoff())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", rs.RowCount())
	}

	idx := columnIndex(t, rs, "data_encerramento")
	first, _ := rs.Rows[0][idx].(time.Time)
	if !first.Equal(time.Date(2025, 6, 16, 14, 32, 0, 0, time.UTC)) {
		t.Errorf("seconds not truncated: got %v", first)
	}
	second, _ := rs.Rows[1][idx].(time.Time)
	if !second.Equal(time.Date(2025, 6, 16, 11, 5, 0, 0, time.UTC)) {
		t.Errorf("iso form mishandled: got %v", second)
	}
}

func TestTransformer_ZeroIdentifierBecomesNull(t *testing.T) {
	art := writeWorkbook(t, exportHeaders(),
		exportRow(map[string]string{"raiz": "0"}),
	)

	rs, err := New("", nil).Run(context.Background(), art, testCutoff())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rs.Rows[0][columnIndex(t, rs, "raiz")]; got != nil {
		t.Errorf("raiz = %v, want nil for a zero identifier", got)
	}
}

func TestTransformer_MissingRequiredHeader(t *testing.T) {
	headers := exportHeaders()
	for i, h := range headers {
		if h == "Data Encerramento" {
			headers[i] = "Data Qualquer"
		}
	}
	art := writeWorkbook(t, headers, exportRow(nil))

	_, err := New("", nil).Run(context.Background(), art, testCutoff())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if kind := domain.KindOf(err); kind != domain.KindMissingRequiredField {
		t.Errorf("kind = %s, want %s", kind, domain.KindMissingRequiredField)
	}
	if domain.IsRetryable(err) {
		t.Error("a structurally broken export must not be retried")
	}
}

func TestTransformer_OptionalHeaderAbsent(t *testing.T) {
	headers := exportHeaders()
	for i, h := range headers {
		if h == "Bairro" {
			headers[i] = "Coluna Nova"
		}
	}
	art := writeWorkbook(t, headers, exportRow(nil))

	rs, err := New("", nil).Run(context.Background(), art, testCutoff())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rs.Rows[0][columnIndex(t, rs, "bairro")]; got != nil {
		t.Errorf("bairro = %v, want nil when the export lacks the column", got)
	}
}

func TestTransformer_RejectsNonWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.xlsx")
	if err := os.WriteFile(path, []byte("not a spreadsheet"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := New("", nil).Run(context.Background(), fileArtifact(path), testCutoff())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if kind := domain.KindOf(err); kind != domain.KindMalformedInput {
		t.Errorf("kind = %s, want %s", kind, domain.KindMalformedInput)
	}
	if domain.IsRetryable(err) {
		t.Error("malformed input must not be retried")
	}
}

func TestTransformer_RejectsOpaqueArtifact(t *testing.T) {
	_, err := New("", nil).Run(context.Background(), opaqueArtifact{}, testCutoff())
	if kind := domain.KindOf(err); kind != domain.KindMalformedInput {
		t.Errorf("kind = %s, want %s", kind, domain.KindMalformedInput)
	}
}
