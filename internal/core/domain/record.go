package domain

import (
	"fmt"
	"time"
)

// Artifact is an opaque handle to a phase's output, passed down the
// chain without inspection by the orchestrator. Ref is a loggable
// reference only.
type Artifact interface {
	Ref() string
}

// Discarder is implemented by artifacts holding transient resources
// (temp files) that should be released once the run is over.
type Discarder interface {
	Discard() error
}

// FileArtifact is an artifact backed by a local file.
type FileArtifact interface {
	Artifact
	Path() string
}

// QueryParams bound one extraction run: the closed-date window and the
// connection path the run goes out on.
type QueryParams struct {
	From time.Time
	To   time.Time
	Path string
}

// Column describes one target column of the normalized record set.
type Column struct {
	Name    string
	SQLType string
}

// RecordSchema is the shape the storage service validates the target
// table against before loading.
type RecordSchema struct {
	Table   string
	Columns []Column
}

func (s RecordSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// RecordSet is the transform phase artifact: column-ordered rows with
// nil for NULL, values either string or time.Time.
type RecordSet struct {
	Schema RecordSchema
	Rows   [][]any
}

func (rs *RecordSet) RowCount() int {
	return len(rs.Rows)
}

func (rs *RecordSet) Ref() string {
	return fmt.Sprintf("recordset(%s, %d rows)", rs.Schema.Table, len(rs.Rows))
}
