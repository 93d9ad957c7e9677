package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/log"
)

type postgresDialect struct {
	cfg NetworkConfig
}

// NewPostgres creates a sink backed by a PostgreSQL server.
func NewPostgres(cfg NetworkConfig, logger *log.Logger) Sink {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	return newSQLSink(cfg.Name, &postgresDialect{cfg: cfg}, logger)
}

func (d *postgresDialect) name() string { return "postgres" }

func (d *postgresDialect) open() (*sql.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		d.cfg.Username, d.cfg.Password, d.cfg.Server, d.cfg.Port, d.cfg.Name)
	return sql.Open("pgx", dsn)
}

func (d *postgresDialect) quote(ident string) string {
	return `"` + ident + `"`
}

// PostgreSQL folds unquoted identifiers to lowercase.
func (d *postgresDialect) columnName(name string) string {
	return strings.ToLower(name)
}

func (d *postgresDialect) placeholder(i int) string {
	return fmt.Sprintf("$%d", i)
}

func (d *postgresDialect) tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`)
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

func (d *postgresDialect) columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`, table)
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
		out = append(out, strings.ToLower(name))
	}
	return out, rows.Err()
}

func (d *postgresDialect) columnType(t datatype.DataType) string {
	return t.SQLiteType()
}

func (d *postgresDialect) ensureTableSQL(table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.quote(table), body)
}

func (d *postgresDialect) archiver() bool { return false }

func (d *postgresDialect) snapshot(context.Context, *sql.DB, string) error {
	return fmt.Errorf("postgres sink does not support snapshots")
}

func (d *postgresDialect) pruneCondition(days int) string {
	return fmt.Sprintf("to_char(now() - interval '%d days', 'YYYY-MM-DD')", days)
}
