package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/roach88/flexiql/internal/model"
)

//go:embed schema_sqlite.sql
var sqliteSchemaSQL string

//go:embed schema_postgres.sql
var postgresSchemaSQL string

// Schema version tracking:
// 0 - Empty database
// 1 - companies table and per-entity shadow tables
const currentSchemaVersion = 1

// Driver names accepted by OpenDriver.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Store provides durable storage for companies and shadow records.
type Store struct {
	db       *sql.DB
	dialect  *dialect
	registry *model.Registry
	logger   zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for schema changes. The default discards.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open creates or opens a SQLite database at the given path and creates
// the shadow tables of every entity in reg.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, reg *model.Registry, opts ...Option) (*Store, error) {
	db, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return newStore(db, sqliteDialect, reg, opts)
}

// OpenPostgres connects to a PostgreSQL database using the pgx driver.
func OpenPostgres(ctx context.Context, dsn string, reg *model.Registry, opts ...Option) (*Store, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return newStore(db, postgresDialect, reg, opts)
}

// OpenDriver opens a store for one of the supported driver names. For
// SQLite dsn is a file path.
func OpenDriver(ctx context.Context, driver, dsn string, reg *model.Registry, opts ...Option) (*Store, error) {
	switch driver {
	case DriverSQLite, "sqlite":
		return Open(dsn, reg, opts...)
	case DriverPostgres, "postgres":
		return OpenPostgres(ctx, dsn, reg, opts...)
	}
	return nil, fmt.Errorf("unsupported store driver %q (want sqlite3 or pgx)", driver)
}

func newStore(db *sql.DB, d *dialect, reg *model.Registry, opts []Option) (*Store, error) {
	s := &Store{db: db, dialect: d, registry: reg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. This function is idempotent.
func (s *Store) applySchema() error {
	if _, err := s.db.Exec(s.dialect.schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	version, err := s.dialect.schemaVersion(s.db)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if s.registry != nil {
		if err := s.ensureShadowTables(context.Background()); err != nil {
			return err
		}
	}

	if version < currentSchemaVersion {
		if err := s.dialect.setSchemaVersion(s.db, currentSchemaVersion); err != nil {
			return err
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
