// Package shadow keeps the local-shadow fields of remote objects: fields
// the remote system does not know, stored locally and keyed by the remote
// object id and the owning company.
package shadow

import (
	"context"

	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/scope"
)

// Record holds the shadow values of one remote object keyed by logical
// field name. Values are native (see package codec).
type Record map[string]any

// Lookup is a condition on a shadow field, using the same lookup names as
// abstract queries (exact, gt, in, isnull, icontains ...).
type Lookup struct {
	Field  string
	Lookup string
	Value  any
}

// Store persists shadow records. Every call is scoped to one company.
type Store interface {
	// Get returns the record of remote object id, and whether it exists.
	Get(ctx context.Context, e *model.Entity, sc scope.Scope, id int64) (Record, bool, error)

	// Upsert creates or replaces the record of remote object id.
	Upsert(ctx context.Context, e *model.Entity, sc scope.Scope, id int64, rec Record) error

	// DeleteMany removes the records of ids. Missing records are ignored.
	DeleteMany(ctx context.Context, e *model.Entity, sc scope.Scope, ids []int64) error

	// Filter returns the remote ids whose records match l, in ascending order.
	Filter(ctx context.Context, e *model.Entity, sc scope.Scope, l Lookup) ([]int64, error)
}
