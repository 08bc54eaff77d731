package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/scope"
)

var _ scope.Provider = (*Store)(nil)

// ErrCompanyExists is returned by AddCompany for a db name that is
// already registered.
var ErrCompanyExists = errors.New("company already exists")

// Company is one registered FlexiBee company database.
type Company struct {
	ID        int64
	DBName    string
	Name      string
	CreatedAt time.Time
}

// Scope returns the operation scope of the company.
func (c Company) Scope() scope.Scope {
	return scope.Scope{CompanyID: c.ID, DBName: c.DBName}
}

// AddCompany registers a company database and returns it with its new id.
func (s *Store) AddCompany(ctx context.Context, dbName, name string) (Company, error) {
	dbName = strings.TrimSpace(dbName)
	if dbName == "" {
		return Company{}, errors.New("company db name is empty")
	}
	if _, err := s.company(ctx, dbName); err == nil {
		return Company{}, fmt.Errorf("%w: %s", ErrCompanyExists, dbName)
	} else if !dberr.IsScopeNotFound(err) {
		return Company{}, err
	}

	ib := s.dialect.flavor.NewInsertBuilder()
	ib.InsertInto("companies").Cols("db_name", "name").Values(dbName, name)
	ib.SQL("RETURNING id")
	query, args := ib.Build()

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return Company{}, fmt.Errorf("insert company %s: %w", dbName, err)
	}
	return s.company(ctx, dbName)
}

// Companies returns all registered companies ordered by id.
func (s *Store) Companies(ctx context.Context) ([]Company, error) {
	sb := s.dialect.flavor.NewSelectBuilder()
	sb.Select("id", "db_name", "name", "created_at").
		From("companies").
		OrderBy("id").Asc()
	query, args := sb.Build()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	companies := []Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return companies, nil
}

// RemoveCompany unregisters a company together with its shadow records.
func (s *Store) RemoveCompany(ctx context.Context, dbName string) error {
	dlb := s.dialect.flavor.NewDeleteBuilder()
	dlb.DeleteFrom("companies").Where(dlb.Equal("db_name", dbName))
	query, args := dlb.Build()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete company %s: %w", dbName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete company %s: %w", dbName, err)
	}
	if n == 0 {
		return dberr.ScopeNotFound(dbName)
	}
	return nil
}

// Resolve implements scope.Provider over the registered companies.
func (s *Store) Resolve(ctx context.Context, dbName string) (scope.Scope, error) {
	c, err := s.company(ctx, dbName)
	if err != nil {
		return scope.Scope{}, err
	}
	return c.Scope(), nil
}

func (s *Store) company(ctx context.Context, dbName string) (Company, error) {
	sb := s.dialect.flavor.NewSelectBuilder()
	sb.Select("id", "db_name", "name", "created_at").
		From("companies").
		Where(sb.Equal("db_name", dbName))
	query, args := sb.Build()

	c, err := scanCompany(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Company{}, dberr.ScopeNotFound(dbName)
	}
	return c, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompany(row scanner) (Company, error) {
	var c Company
	if err := row.Scan(&c.ID, &c.DBName, &c.Name, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Company{}, err
		}
		return Company{}, fmt.Errorf("scan company: %w", err)
	}
	return c, nil
}
