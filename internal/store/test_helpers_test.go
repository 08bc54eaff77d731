package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/scope"
	"github.com/roach88/flexiql/internal/testutil"
)

// createTestStore creates a new store over the sample registry for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, testutil.SampleRegistry())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCompany registers a company and returns its scope.
func createTestCompany(t *testing.T, s *Store, dbName string) scope.Scope {
	t.Helper()
	c, err := s.AddCompany(context.Background(), dbName, dbName+" s.r.o.")
	if err != nil {
		t.Fatalf("AddCompany(%q) failed: %v", dbName, err)
	}
	return c.Scope()
}

func mustEntity(t *testing.T, s *Store, name string) *model.Entity {
	t.Helper()
	e, ok := s.registry.Entity(name)
	if !ok {
		t.Fatalf("entity %q not declared", name)
	}
	return e
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
