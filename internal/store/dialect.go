package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/shopspring/decimal"

	"github.com/roach88/flexiql/internal/model"
)

// dialect holds what differs between the supported databases.
type dialect struct {
	name   string
	flavor sqlbuilder.Flavor
	schema string

	idType      string
	columnTypes map[model.Kind]string

	schemaVersion    func(db *sql.DB) (int, error)
	setSchemaVersion func(db *sql.DB, version int) error
	columns          func(ctx context.Context, db *sql.DB, table string) (map[string]bool, error)
}

var sqliteDialect = &dialect{
	name:   "sqlite",
	flavor: sqlbuilder.SQLite,
	schema: sqliteSchemaSQL,
	idType: "INTEGER",
	columnTypes: map[model.Kind]string{
		model.KindDecimal: "TEXT",
		model.KindFloat:   "REAL",
		model.KindInteger: "INTEGER",
		model.KindDate:    "DATE",
		model.KindBoolean: "BOOLEAN",
		model.KindText:    "TEXT",
	},
	schemaVersion: func(db *sql.DB) (int, error) {
		var version int
		if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			return 0, fmt.Errorf("get user_version: %w", err)
		}
		return version, nil
	},
	setSchemaVersion: func(db *sql.DB, version int) error {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		return nil
	},
	columns: func(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
		rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
		if err != nil {
			return nil, fmt.Errorf("query columns of %s: %w", table, err)
		}
		return scanNames(rows)
	},
}

var postgresDialect = &dialect{
	name:   "postgres",
	flavor: sqlbuilder.PostgreSQL,
	schema: postgresSchemaSQL,
	idType: "BIGINT",
	columnTypes: map[model.Kind]string{
		model.KindDecimal: "NUMERIC",
		model.KindFloat:   "DOUBLE PRECISION",
		model.KindInteger: "BIGINT",
		model.KindDate:    "DATE",
		model.KindBoolean: "BOOLEAN",
		model.KindText:    "TEXT",
	},
	schemaVersion: func(db *sql.DB) (int, error) {
		var version int
		if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM flexiql_schema").Scan(&version); err != nil {
			return 0, fmt.Errorf("get schema version: %w", err)
		}
		return version, nil
	},
	setSchemaVersion: func(db *sql.DB, version int) error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec("DELETE FROM flexiql_schema"); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO flexiql_schema (version) VALUES ($1)", version); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return tx.Commit()
	},
	columns: func(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
		rows, err := db.QueryContext(ctx,
			"SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1",
			table)
		if err != nil {
			return nil, fmt.Errorf("query columns of %s: %w", table, err)
		}
		return scanNames(rows)
	},
}

func scanNames(rows *sql.Rows) (map[string]bool, error) {
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return names, nil
}

func (d *dialect) columnType(k model.Kind) (string, error) {
	t, ok := d.columnTypes[k]
	if !ok {
		return "", fmt.Errorf("no %s column type for %s", d.name, k)
	}
	return t, nil
}

// bindValue adapts a native value for use as a statement argument.
// SQLite stores dates as ISO text so that they compare in date order,
// and decimals as canonical text since its NUMERIC affinity rounds them
// to a double.
func (d *dialect) bindValue(k model.Kind, v any) any {
	if v == nil || d != sqliteDialect {
		return v
	}
	switch k {
	case model.KindDate:
		if ts, ok := v.(time.Time); ok {
			return ts.Format(time.DateOnly)
		}
	case model.KindDecimal:
		if dec, ok := v.(decimal.Decimal); ok {
			return dec.String()
		}
	}
	return v
}

// orderOperands returns the column expression and argument for an
// ordering comparison. Decimal text in SQLite is compared as a number.
func (d *dialect) orderOperands(k model.Kind, col string, v any) (string, any) {
	if k == model.KindDecimal && d == sqliteDialect {
		if dec, ok := v.(decimal.Decimal); ok {
			return "CAST(" + col + " AS REAL)", dec.InexactFloat64()
		}
	}
	return col, d.bindValue(k, v)
}

func (d *dialect) quote(name string) string {
	return d.flavor.Quote(name)
}
