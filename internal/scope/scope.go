// Package scope defines the owning company scope that partitions remote
// data and shadow records.
package scope

import (
	"context"
	"fmt"
)

// Scope identifies the owning company of one operation. It is a value:
// every compiled operation copies it and never observes later changes.
type Scope struct {
	// CompanyID is the local id of the company, used to key shadow records
	// and to fill company fields of fetched rows.
	CompanyID int64

	// DBName is the company database name on the FlexiBee server.
	DBName string
}

// Valid reports whether the scope names a company.
func (s Scope) Valid() bool {
	return s.DBName != ""
}

func (s Scope) String() string {
	return fmt.Sprintf("%s#%d", s.DBName, s.CompanyID)
}

// Provider resolves a caller supplied company database name into a Scope.
// Implementations fail with a ScopeNotFound error for unknown names.
type Provider interface {
	Resolve(ctx context.Context, dbName string) (Scope, error)
}
