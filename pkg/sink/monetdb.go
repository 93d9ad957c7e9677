package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/MonetDB/MonetDB-Go/v2"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/log"
)

type monetdbDialect struct {
	cfg NetworkConfig
}

// NewMonetDB creates a sink backed by a MonetDB server.
func NewMonetDB(cfg NetworkConfig, logger *log.Logger) Sink {
	if cfg.Port == 0 {
		cfg.Port = 50000
	}
	return newSQLSink(cfg.Name, &monetdbDialect{cfg: cfg}, logger)
}

func (d *monetdbDialect) name() string { return "monetdb" }

func (d *monetdbDialect) open() (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@%s:%d/%s",
		d.cfg.Username, d.cfg.Password, d.cfg.Server, d.cfg.Port, d.cfg.Name)
	return sql.Open("monetdb", dsn)
}

func (d *monetdbDialect) quote(ident string) string {
	return `"` + ident + `"`
}

// MonetDB folds unquoted identifiers to lowercase; columns are stored
// lowercase to stay consistent either way.
func (d *monetdbDialect) columnName(name string) string {
	return strings.ToLower(name)
}

func (d *monetdbDialect) placeholder(int) string { return "?" }

func (d *monetdbDialect) tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sys.tables WHERE NOT system")
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

func (d *monetdbDialect) columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT c.name FROM sys.columns c
		 JOIN sys.tables t ON c.table_id = t.id
		 WHERE t.name = ? ORDER BY c.number`, table)
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

func (d *monetdbDialect) columnType(t datatype.DataType) string {
	return t.SQLiteType()
}

func (d *monetdbDialect) ensureTableSQL(table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.quote(table), body)
}

func (d *monetdbDialect) archiver() bool { return false }

func (d *monetdbDialect) snapshot(context.Context, *sql.DB, string) error {
	return fmt.Errorf("monetdb sink does not support snapshots")
}

func (d *monetdbDialect) pruneCondition(days int) string {
	return fmt.Sprintf("CAST(NOW() - INTERVAL '%d' DAY AS DATE)", days)
}
