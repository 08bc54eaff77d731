package query

import (
	"fmt"
	"strings"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/model"
)

// CheckQuery rejects query shapes the remote API cannot express. It runs
// before compilation, so a rejected query never causes I/O.
//
// Shape problems are reported together in one UnsupportedQueryShape
// error:
//  1. Joins - the remote filter addresses a single evidence
//  2. Distinct - rows are always distinct objects
//  3. Extra - only the exists probe {a: 1} is allowed
//  4. Having - there is no grouping
//
// Aggregates other than a single COUNT over "*" or the primary key fail
// with NotImplemented.
func CheckQuery(e *model.Entity, q Query) error {
	v := &validator{}

	if len(q.Joins) > 0 {
		v.addf("joined tables %s (a query addresses one evidence)", strings.Join(q.Joins, ", "))
	}
	if q.Distinct {
		v.addf("DISTINCT")
	}
	if len(q.Extra) > 0 && !IsExistsProbe(q.Extra) {
		v.addf("extra select fragments")
	}
	if q.Having != nil {
		v.addf("HAVING")
	}
	if len(v.problems) > 0 {
		return dberr.UnsupportedQueryShape(e.Name, "unsupported query shape: %s", strings.Join(v.problems, "; "))
	}

	return checkAggregates(e, q.Aggregates)
}

func checkAggregates(e *model.Entity, aggs []Aggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	if len(aggs) > 1 {
		return dberr.NotImplemented(e.Name, "only a single aggregate is supported, got %d", len(aggs))
	}
	a := aggs[0]
	if !strings.EqualFold(a.Func, AggregateCount) {
		return dberr.NotImplemented(e.Name, "aggregate %s is not supported, only COUNT", strings.ToUpper(a.Func))
	}
	switch a.Field {
	case "", "*", e.PrimaryKey().Name:
		return nil
	}
	return dberr.NotImplemented(e.Name, "COUNT(%s) is not supported, only COUNT(*) or COUNT(%s)", a.Field, e.PrimaryKey().Name)
}

// validator accumulates shape problems.
type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}
