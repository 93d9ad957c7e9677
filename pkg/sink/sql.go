package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/log"
)

// dialect is what a concrete store contributes to the shared SQL sink:
// identifier quoting, case folding, placeholders, catalog discovery and
// the optional snapshot support.
type dialect interface {
	name() string
	open() (*sql.DB, error)
	quote(ident string) string
	// columnName folds a logical column name to the store's case.
	columnName(name string) string
	placeholder(i int) string
	tables(ctx context.Context, db *sql.DB) ([]string, error)
	columns(ctx context.Context, db *sql.DB, table string) ([]string, error)
	columnType(t datatype.DataType) string
	// ensureTableSQL wraps a column list in the store's idempotent
	// create-table form.
	ensureTableSQL(table, body string) string
	archiver() bool
	// snapshot copies the store to a dated sidecar file.
	snapshot(ctx context.Context, db *sql.DB, date string) error
	// pruneCondition is the SQL expression rows older than the
	// horizon compare less than.
	pruneCondition(days int) string
}

// sqlSink drives any database/sql store through a dialect.
type sqlSink struct {
	name   string
	d      dialect
	logger *log.Logger

	mu      sync.RWMutex
	db      *sql.DB
	headers map[string][]string
}

func newSQLSink(name string, d dialect, logger *log.Logger) *sqlSink {
	if logger == nil {
		logger = log.Default()
	}
	return &sqlSink{
		name:    name,
		d:       d,
		logger:  logger,
		headers: make(map[string][]string),
	}
}

func (s *sqlSink) Name() string    { return s.name }
func (s *sqlSink) Dialect() string { return s.d.name() }

// Open acquires the handle, ensures the system tables exist and
// discovers the headers of the existing data tables.
func (s *sqlSink) Open(ctx context.Context) error {
	db, err := s.d.open()
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeSinkUnavailable,
			"opening %s sink", s.d.name()).Fatal().Err()
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.Wrapf(err, errors.ErrCodeSinkUnavailable,
			"reaching %s sink", s.d.name()).Fatal().Err()
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	if err := s.ensureSystemTables(ctx); err != nil {
		return err
	}
	if err := s.discoverHeaders(ctx); err != nil {
		return err
	}

	s.logger.Sink().Info("sink opened",
		"dialect", s.d.name(), "tables", len(s.headers))
	return nil
}

func (s *sqlSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqlSink) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New(errors.ErrCodeSinkUnavailable, "sink not open").Fatal().Err()
	}
	return s.db, nil
}

func (s *sqlSink) ensureSystemTables(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	q := s.d.quote
	stmts := []string{
		s.d.ensureTableSQL(DiagnosticsTable,
			fmt.Sprintf("%s TEXT PRIMARY KEY, %s TEXT",
				q(s.d.columnName(TimestampColumn)),
				q(s.d.columnName(MessageColumn)))),
		s.d.ensureTableSQL(ConfigurationTable,
			fmt.Sprintf("%s TEXT PRIMARY KEY, %s TEXT",
				q(s.d.columnName(IDColumn)),
				q(s.d.columnName(DataColumn)))),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, errors.ErrCodeSinkUnavailable,
				"creating system tables").Fatal().Err()
		}
	}
	return nil
}

// discoverHeaders enumerates the user tables and their column order.
// The timestamp column is forced to the front regardless of how the
// catalog reports it.
func (s *sqlSink) discoverHeaders(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tables, err := s.d.tables(ctx, db)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkQuery, "listing tables").Err()
	}

	tsName := s.d.columnName(TimestampColumn)
	headers := make(map[string][]string)
	for _, t := range tables {
		if t == DiagnosticsTable || t == ConfigurationTable {
			continue
		}
		cols, err := s.d.columns(ctx, db, t)
		if err != nil {
			return errors.Wrapf(err, errors.ErrCodeSinkQuery,
				"listing columns of %s", t).Err()
		}
		ordered := []string{tsName}
		for _, c := range cols {
			if strings.EqualFold(c, TimestampColumn) {
				continue
			}
			ordered = append(ordered, c)
		}
		headers[t] = ordered
	}

	s.mu.Lock()
	s.headers = headers
	s.mu.Unlock()
	return nil
}

func (s *sqlSink) AddTable(ctx context.Context, table string, cols []Column) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	q := s.d.quote
	tsName := s.d.columnName(TimestampColumn)

	var b strings.Builder
	fmt.Fprintf(&b, "%s TEXT PRIMARY KEY", q(tsName))
	header := []string{tsName}
	for _, col := range cols {
		name := s.d.columnName(col.Name)
		fmt.Fprintf(&b, ", %s %s", q(name), s.d.columnType(col.Type))
		header = append(header, name)
	}

	if _, err := db.ExecContext(ctx, s.d.ensureTableSQL(table, b.String())); err != nil {
		return errors.Wrapf(err, errors.ErrCodeSinkExec,
			"creating table %s", table).Err()
	}

	s.mu.Lock()
	s.headers[table] = header
	s.mu.Unlock()
	return nil
}

func (s *sqlSink) Headers(table string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headers[table]
}

// AddEntry aligns the row with the discovered headers; absent keys are
// omitted so their columns default to NULL.
func (s *sqlSink) AddEntry(ctx context.Context, table string, row map[string]string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	header := s.Headers(table)
	if header == nil {
		return errors.Newf(errors.ErrCodeTableMissing,
			"no such data table %q", table).Err()
	}

	folded := make(map[string]string, len(row))
	for k, v := range row {
		folded[s.d.columnName(k)] = v
	}

	var cols, marks []string
	var args []interface{}
	for _, h := range header {
		v, ok := folded[h]
		if !ok {
			continue
		}
		cols = append(cols, s.d.quote(h))
		marks = append(marks, s.d.placeholder(len(args)+1))
		args = append(args, v)
	}
	if len(cols) == 0 {
		return errors.Newf(errors.ErrCodeBadArgument,
			"row for table %q matches no column", table).Err()
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.d.quote(table), strings.Join(cols, ", "), strings.Join(marks, ", "))

	start := time.Now()
	_, err = db.ExecContext(ctx, stmt, args...)
	insertDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		insertErrors.WithLabelValues(table).Inc()
		return errors.Wrapf(err, errors.ErrCodeSinkExec,
			"inserting into %s", table).Err()
	}
	rowsInserted.WithLabelValues(table).Inc()
	return nil
}

// Log writes one diagnostics row. On a rejected insert the timestamp
// is bumped by a millisecond and retried once; if the retry fails too
// and the message was an error report, the failure is fatal.
func (s *sqlSink) Log(ctx context.Context, message string, isError bool) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	if isError {
		message = "[E] " + strings.ReplaceAll(message, "'", "")
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		s.d.quote(DiagnosticsTable),
		s.d.quote(s.d.columnName(TimestampColumn)),
		s.d.quote(s.d.columnName(MessageColumn)),
		s.d.placeholder(1), s.d.placeholder(2))

	now := time.Now()
	_, err = db.ExecContext(ctx, stmt, Timestamp(now), message)
	if err != nil {
		// Timestamp collision or transient failure: bump and retry.
		_, err = db.ExecContext(ctx, stmt, Timestamp(now.Add(time.Millisecond)), message)
	}
	if err != nil {
		if isError {
			return errors.Wrap(err, errors.ErrCodeSinkUnavailable,
				"cannot insert diagnostics").Fatal().Err()
		}
		return errors.Wrap(err, errors.ErrCodeSinkExec,
			"inserting diagnostics").Err()
	}
	diagnosticsWritten.Inc()
	return nil
}

func (s *sqlSink) Configuration(ctx context.Context) ([]ConfigRow, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s",
		s.d.quote(s.d.columnName(IDColumn)),
		s.d.quote(s.d.columnName(DataColumn)),
		s.d.quote(ConfigurationTable),
		s.d.quote(s.d.columnName(IDColumn)))

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSinkQuery,
			"reading configuration").Err()
	}
	defer rows.Close()

	var out []ConfigRow
	for rows.Next() {
		var r ConfigRow
		if err := rows.Scan(&r.ID, &r.Data); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSinkQuery,
				"scanning configuration").Err()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlSink) SaveConfiguration(ctx context.Context, cfgRows []ConfigRow) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkExec, "starting transaction").Err()
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s", s.d.quote(ConfigurationTable))); err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkExec, "clearing configuration").Err()
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		s.d.quote(ConfigurationTable),
		s.d.quote(s.d.columnName(IDColumn)),
		s.d.quote(s.d.columnName(DataColumn)),
		s.d.placeholder(1), s.d.placeholder(2))
	for _, r := range cfgRows {
		if _, err := tx.ExecContext(ctx, stmt, r.ID, r.Data); err != nil {
			return errors.Wrapf(err, errors.ErrCodeSinkExec,
				"storing configuration section %q", r.ID).Err()
		}
	}
	return tx.Commit()
}

func (s *sqlSink) IsArchiver() bool { return s.d.archiver() }

// Archive snapshots the store, then prunes every data table and the
// diagnostics down to the retention horizon.
func (s *sqlSink) Archive(ctx context.Context, retentionDays int) error {
	if !s.d.archiver() {
		return errors.Newf(errors.ErrCodeArchiveFailed,
			"%s sink does not support archiving", s.d.name()).Err()
	}
	db, err := s.handle()
	if err != nil {
		return err
	}

	date := time.Now().Format("2006-01-02")
	if err := s.d.snapshot(ctx, db, date); err != nil {
		s.Log(ctx, "failed data backup: "+err.Error(), true)
		return errors.Wrap(err, errors.ErrCodeArchiveFailed, "snapshot").Err()
	}
	s.Log(ctx, "backup data from: "+s.name, false)

	s.mu.RLock()
	tables := make([]string, 0, len(s.headers)+1)
	for t := range s.headers {
		tables = append(tables, t)
	}
	s.mu.RUnlock()
	tables = append(tables, DiagnosticsTable)

	cond := s.d.pruneCondition(retentionDays)
	for _, t := range tables {
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s < %s",
			s.d.quote(t), s.d.quote(s.d.columnName(TimestampColumn)), cond)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, errors.ErrCodeArchiveFailed,
				"pruning %s", t).Err()
		}
	}

	archiveRuns.Inc()
	return nil
}
