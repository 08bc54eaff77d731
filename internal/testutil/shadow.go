package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/filter"
	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/scope"
	"github.com/roach88/flexiql/internal/shadow"
)

type shadowKey struct {
	entity  string
	company int64
	id      int64
}

// MemoryShadow is an in-memory shadow.Store.
type MemoryShadow struct {
	mu      sync.Mutex
	records map[shadowKey]shadow.Record
}

var _ shadow.Store = (*MemoryShadow)(nil)

// NewMemoryShadow returns an empty store.
func NewMemoryShadow() *MemoryShadow {
	return &MemoryShadow{records: make(map[shadowKey]shadow.Record)}
}

// Put seeds a record.
func (m *MemoryShadow) Put(entity string, companyID, id int64, rec shadow.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[shadowKey{entity, companyID, id}] = copyRecord(rec)
}

// Record returns a stored record for assertions.
func (m *MemoryShadow) Record(entity string, companyID, id int64) (shadow.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[shadowKey{entity, companyID, id}]
	return copyRecord(rec), ok
}

// Len returns the number of stored records.
func (m *MemoryShadow) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Get implements shadow.Store.
func (m *MemoryShadow) Get(_ context.Context, e *model.Entity, sc scope.Scope, id int64) (shadow.Record, bool, error) {
	rec, ok := m.Record(e.Name, sc.CompanyID, id)
	if !ok {
		return nil, false, nil
	}
	return rec, true, nil
}

// Upsert implements shadow.Store.
func (m *MemoryShadow) Upsert(_ context.Context, e *model.Entity, sc scope.Scope, id int64, rec shadow.Record) error {
	m.Put(e.Name, sc.CompanyID, id, rec)
	return nil
}

// DeleteMany implements shadow.Store.
func (m *MemoryShadow) DeleteMany(_ context.Context, e *model.Entity, sc scope.Scope, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, shadowKey{e.Name, sc.CompanyID, id})
	}
	return nil
}

// Filter implements shadow.Store.
func (m *MemoryShadow) Filter(_ context.Context, e *model.Entity, sc scope.Scope, l shadow.Lookup) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := []int64{}
	for k, rec := range m.records {
		if k.entity != e.Name || k.company != sc.CompanyID {
			continue
		}
		ok, err := matches(rec[l.Field], l)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, k.id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func copyRecord(rec shadow.Record) shadow.Record {
	if rec == nil {
		return nil
	}
	out := make(shadow.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// matches follows SQL semantics: a null value only matches isnull.
func matches(v any, l shadow.Lookup) (bool, error) {
	if l.Lookup == filter.LookupIsNull {
		return (v == nil) == cast.ToBool(l.Value), nil
	}
	if v == nil {
		return false, nil
	}

	switch l.Lookup {
	case filter.LookupExact:
		return compare(v, l.Value) == 0, nil
	case filter.LookupGT:
		return compare(v, l.Value) > 0, nil
	case filter.LookupGTE:
		return compare(v, l.Value) >= 0, nil
	case filter.LookupLT:
		return compare(v, l.Value) < 0, nil
	case filter.LookupLTE:
		return compare(v, l.Value) <= 0, nil
	case filter.LookupIn:
		for _, want := range cast.ToSlice(l.Value) {
			if compare(v, want) == 0 {
				return true, nil
			}
		}
		return false, nil
	case filter.LookupLike:
		return strings.Contains(cast.ToString(v), cast.ToString(l.Value)), nil
	case filter.LookupIContains:
		return strings.Contains(strings.ToLower(cast.ToString(v)), strings.ToLower(cast.ToString(l.Value))), nil
	case filter.LookupStartsWith:
		return strings.HasPrefix(cast.ToString(v), cast.ToString(l.Value)), nil
	case filter.LookupEndsWith:
		return strings.HasSuffix(cast.ToString(v), cast.ToString(l.Value)), nil
	}
	return false, dberr.UnsupportedLookup(l.Lookup)
}

func compare(a, b any) int {
	switch av := a.(type) {
	case string:
		return strings.Compare(av, cast.ToString(b))
	case bool:
		bv := cast.ToBool(b)
		switch {
		case av == bv:
			return 0
		case bv:
			return -1
		}
		return 1
	case time.Time:
		bt, err := cast.ToTimeE(b)
		if err != nil {
			return -1
		}
		return av.Compare(bt)
	case decimal.Decimal:
		bd, err := decimal.NewFromString(cast.ToString(b))
		if err != nil {
			return -1
		}
		return av.Cmp(bd)
	}
	af, bf := cast.ToFloat64(a), cast.ToFloat64(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}
