package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/log"
)

// NetworkConfig holds the settings shared by the client/server sinks.
// The database name is the logger name.
type NetworkConfig struct {
	Name     string
	Server   string
	Port     int
	Username string
	Password string
}

type mariadbDialect struct {
	cfg NetworkConfig
}

// NewMariaDB creates a sink backed by a MariaDB/MySQL server.
func NewMariaDB(cfg NetworkConfig, logger *log.Logger) Sink {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	return newSQLSink(cfg.Name, &mariadbDialect{cfg: cfg}, logger)
}

func (d *mariadbDialect) name() string { return "mariadb" }

func (d *mariadbDialect) open() (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
		d.cfg.Username, d.cfg.Password, d.cfg.Server, d.cfg.Port, d.cfg.Name)
	return sql.Open("mysql", dsn)
}

func (d *mariadbDialect) quote(ident string) string {
	return "`" + ident + "`"
}

// The server folds identifiers; columns are stored lowercase.
func (d *mariadbDialect) columnName(name string) string {
	return strings.ToLower(name)
}

func (d *mariadbDialect) placeholder(int) string { return "?" }

func (d *mariadbDialect) tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = DATABASE()`)
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

func (d *mariadbDialect) columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = DATABASE() AND table_name = ?
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

func (d *mariadbDialect) columnType(t datatype.DataType) string {
	return t.SQLiteType()
}

func (d *mariadbDialect) ensureTableSQL(table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.quote(table), body)
}

func (d *mariadbDialect) archiver() bool { return false }

func (d *mariadbDialect) snapshot(context.Context, *sql.DB, string) error {
	return fmt.Errorf("mariadb sink does not support snapshots")
}

func (d *mariadbDialect) pruneCondition(days int) string {
	return fmt.Sprintf("DATE_FORMAT(NOW() - INTERVAL %d DAY, '%%Y-%%m-%%d')", days)
}
