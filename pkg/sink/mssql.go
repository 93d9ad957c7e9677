package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/log"
)

type mssqlDialect struct {
	cfg NetworkConfig
}

// NewMSSQL creates a sink backed by a SQL Server instance.
func NewMSSQL(cfg NetworkConfig, logger *log.Logger) Sink {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	return newSQLSink(cfg.Name, &mssqlDialect{cfg: cfg}, logger)
}

func (d *mssqlDialect) name() string { return "mssql" }

func (d *mssqlDialect) open() (*sql.DB, error) {
	dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		d.cfg.Username, d.cfg.Password, d.cfg.Server, d.cfg.Port, d.cfg.Name)
	return sql.Open("sqlserver", dsn)
}

func (d *mssqlDialect) quote(ident string) string {
	return "[" + ident + "]"
}

// SQL Server preserves identifier case.
func (d *mssqlDialect) columnName(name string) string { return name }

func (d *mssqlDialect) placeholder(i int) string {
	return fmt.Sprintf("@p%d", i)
}

func (d *mssqlDialect) tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name FROM INFORMATION_SCHEMA.TABLES
		 WHERE table_type = 'BASE TABLE'`)
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

func (d *mssqlDialect) columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE table_name = @p1 ORDER BY ordinal_position`, table)
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

func (d *mssqlDialect) columnType(t datatype.DataType) string {
	switch t {
	case datatype.TypeText:
		return "NVARCHAR(MAX)"
	case datatype.TypeInteger, datatype.TypeDoubleInteger,
		datatype.TypeByte, datatype.TypeWord, datatype.TypeDoubleWord:
		return "INT"
	case datatype.TypeFloat, datatype.TypeReal:
		return "REAL"
	default:
		return "NUMERIC"
	}
}

func (d *mssqlDialect) ensureTableSQL(table, body string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
		table, d.quote(table), body)
}

func (d *mssqlDialect) archiver() bool { return false }

func (d *mssqlDialect) snapshot(context.Context, *sql.DB, string) error {
	return fmt.Errorf("mssql sink does not support snapshots")
}

func (d *mssqlDialect) pruneCondition(days int) string {
	return fmt.Sprintf("CONVERT(varchar(10), DATEADD(day, -%d, GETDATE()), 23)", days)
}
