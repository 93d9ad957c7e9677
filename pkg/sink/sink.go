// Package sink implements the relational stores samples are logged to.
// Every sink keeps three kinds of tables: a diagnostics table, a
// configuration table, and one data table per connection whose first
// column is the timestamp.
package sink

import (
	"context"
	"time"

	"github.com/ilguido/jidl/pkg/datatype"
)

const (
	// DiagnosticsTable holds the timestamped diagnostic messages.
	DiagnosticsTable = "JIDL Diagnostics"
	// ConfigurationTable holds the serialized configuration, one
	// section per row.
	ConfigurationTable = "JIDL Configuration"

	// TimestampColumn is the first column of every data table.
	TimestampColumn = "TIMESTAMP"
	// MessageColumn is the payload column of the diagnostics table.
	MessageColumn = "MESSAGE"
	// IDColumn and DataColumn form the configuration table.
	IDColumn   = "ID"
	DataColumn = "DATA"
)

// TimestampLayout renders timestamps with millisecond resolution; the
// comma separator keeps rows readable as plain text.
const TimestampLayout = "2006-01-02 15:04:05,000"

// Timestamp renders t in the sink's layout.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Column describes one data table column.
type Column struct {
	Name string
	Type datatype.DataType
}

// ConfigRow is one row of the configuration table: the section ID and
// its serialized key=value lines.
type ConfigRow struct {
	ID   string
	Data string
}

// Sink is the storage contract the logger drives.
type Sink interface {
	// Name is the logger name the sink was created for.
	Name() string
	// Dialect identifies the concrete store.
	Dialect() string

	// Open acquires the store handle and discovers the headers of the
	// existing data tables.
	Open(ctx context.Context) error
	Close() error

	// AddTable ensures a data table exists with the timestamp column
	// followed by the given columns, and records its headers.
	AddTable(ctx context.Context, table string, cols []Column) error
	// Headers returns the discovered column order of a data table,
	// nil when the table is unknown.
	Headers(table string) []string

	// AddEntry inserts one row. Keys absent from row are omitted from
	// the insert so the columns default to NULL.
	AddEntry(ctx context.Context, table string, row map[string]string) error

	// Log inserts one diagnostics row with a generated timestamp.
	// When isError is set and the insert itself fails, the returned
	// error is the fatal sink-unavailable signal.
	Log(ctx context.Context, message string, isError bool) error

	// Configuration returns the stored configuration rows, oldest
	// first. An empty slice when nothing is stored.
	Configuration(ctx context.Context) ([]ConfigRow, error)
	// SaveConfiguration replaces the stored configuration.
	SaveConfiguration(ctx context.Context, rows []ConfigRow) error

	// IsArchiver reports whether the sink supports snapshots and
	// pruning.
	IsArchiver() bool
	// Archive snapshots the store and deletes rows older than the
	// retention horizon from every data table and the diagnostics.
	Archive(ctx context.Context, retentionDays int) error
}
