package sink

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/log"
)

// SQLiteConfig holds the settings of the embedded store. The file is
// <Name>.db inside Dir.
type SQLiteConfig struct {
	Name string
	Dir  string

	// DSN tuning; zero values fall back to sensible defaults.
	JournalMode string // default "WAL"
	Synchronous string // default "NORMAL"
	CacheSize   int    // pages, default 2000
	BusyTimeout int    // milliseconds, default 5000
}

type sqliteDialect struct {
	cfg  SQLiteConfig
	path string
}

// NewSQLite creates the embedded sink. It is the only dialect that
// supports archiving.
func NewSQLite(cfg SQLiteConfig, logger *log.Logger) Sink {
	d := &sqliteDialect{
		cfg:  cfg,
		path: filepath.Join(cfg.Dir, cfg.Name+".db"),
	}
	return newSQLSink(cfg.Name, d, logger)
}

func (d *sqliteDialect) name() string { return "sqlite" }

func (d *sqliteDialect) open() (*sql.DB, error) {
	return sql.Open("sqlite3", d.dsn())
}

func (d *sqliteDialect) dsn() string {
	journalMode := d.cfg.JournalMode
	if journalMode == "" {
		journalMode = "WAL"
	}
	synchronous := d.cfg.Synchronous
	if synchronous == "" {
		synchronous = "NORMAL"
	}
	cacheSize := d.cfg.CacheSize
	if cacheSize == 0 {
		cacheSize = 2000
	}
	busyTimeout := d.cfg.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = 5000
	}

	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_synchronous", synchronous)
	params.Set("_cache_size", strconv.Itoa(cacheSize))
	params.Set("_busy_timeout", strconv.Itoa(busyTimeout))

	return fmt.Sprintf("file:%s?%s", d.path, params.Encode())
}

func (d *sqliteDialect) quote(ident string) string {
	return "'" + ident + "'"
}

func (d *sqliteDialect) columnName(name string) string { return name }

func (d *sqliteDialect) placeholder(int) string { return "?" }

func (d *sqliteDialect) tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_schema
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (d *sqliteDialect) columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (d *sqliteDialect) columnType(t datatype.DataType) string {
	return t.SQLiteType()
}

func (d *sqliteDialect) ensureTableSQL(table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.quote(table), body)
}

func (d *sqliteDialect) archiver() bool { return true }

// snapshot copies the live database into a dated sidecar file next to
// the original.
func (d *sqliteDialect) snapshot(ctx context.Context, db *sql.DB, date string) error {
	target := fmt.Sprintf("%s-%s.db", d.path, date)
	_, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", target))
	return err
}

// pruneCondition compares lexicographically against the stored text
// timestamps, which sort by date.
func (d *sqliteDialect) pruneCondition(days int) string {
	return fmt.Sprintf("date('now', '-%d days')", days)
}
