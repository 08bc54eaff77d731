package query

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/remote"
	"github.com/roach88/flexiql/internal/scope"
)

// Row is one result object keyed by logical field name.
type Row map[string]any

// RowErrorPolicy decides what Fetch does after a row fails conversion.
type RowErrorPolicy int

const (
	// StopOnRowError yields the error and ends the sequence.
	StopOnRowError RowErrorPolicy = iota

	// ContinueOnRowError yields the error and goes on with the next row.
	ContinueOnRowError
)

// ErrSequenceConsumed is yielded when a Fetch sequence is ranged over a
// second time.
var ErrSequenceConsumed = errors.New("result sequence already consumed")

// Executor runs compiled queries against the remote system and the
// shadow store.
type Executor struct {
	compiler    *Compiler
	transport   remote.Transport
	logger      zerolog.Logger
	policy      RowErrorPolicy
	concurrency int
	pageSize    int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the operation logger.
func WithLogger(l zerolog.Logger) ExecutorOption {
	return func(x *Executor) { x.logger = l }
}

// WithRowErrorPolicy sets the row error policy. The default is
// StopOnRowError.
func WithRowErrorPolicy(p RowErrorPolicy) ExecutorOption {
	return func(x *Executor) { x.policy = p }
}

// WithConcurrency bounds the number of concurrent shadow upserts after an
// update. Values below 1 mean 1.
func WithConcurrency(n int) ExecutorOption {
	return func(x *Executor) {
		if n < 1 {
			n = 1
		}
		x.concurrency = n
	}
}

// WithPageSize makes Fetch read in pages of n rows. Zero reads the whole
// result in one request.
func WithPageSize(n int) ExecutorOption {
	return func(x *Executor) {
		if n < 0 {
			n = 0
		}
		x.pageSize = n
	}
}

// NewExecutor returns an executor issuing the plans of c through t.
func NewExecutor(c *Compiler, t remote.Transport, opts ...ExecutorOption) *Executor {
	x := &Executor{
		compiler:    c,
		transport:   t,
		logger:      zerolog.Nop(),
		policy:      StopOnRowError,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Compiler returns the compiler the executor uses.
func (x *Executor) Compiler() *Compiler {
	return x.compiler
}

// Fetch returns the rows matching q. The query is compiled and the remote
// called only when the sequence is ranged over; the sequence can be
// consumed once. Errors are yielded with a nil row.
func (x *Executor) Fetch(ctx context.Context, sc scope.Scope, q Query) iter.Seq2[Row, error] {
	var used atomic.Bool
	return func(yield func(Row, error) bool) {
		if used.Swap(true) {
			yield(nil, ErrSequenceConsumed)
			return
		}
		plan, err := x.compiler.Compile(ctx, sc, q)
		if err != nil {
			yield(nil, err)
			return
		}
		x.run(ctx, plan, yield)
	}
}

// FetchAll collects the rows of q. It stops at the first error regardless
// of the row error policy.
func (x *Executor) FetchAll(ctx context.Context, sc scope.Scope, q Query) ([]Row, error) {
	rows := []Row{}
	for row, err := range x.Fetch(ctx, sc, q) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (x *Executor) run(ctx context.Context, plan *Plan, yield func(Row, error) bool) {
	if plan.Empty {
		x.logger.Debug().Str("entity", plan.Entity.Name).Msg("empty plan, skipping fetch")
		return
	}

	offset, remaining := plan.Offset, plan.Limit
	for {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		limit := remaining
		if x.pageSize > 0 && (limit == 0 || limit > x.pageSize) {
			limit = x.pageSize
		}
		x.logger.Debug().
			Str("entity", plan.Entity.Name).
			Str("filter", plan.Remote.FilterString()).
			Int("offset", offset).
			Int("limit", limit).
			Msg("fetch")

		page, err := x.transport.Fetch(ctx, plan.Remote, offset, limit)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, raw := range page {
			row, err := x.convert(ctx, plan, raw)
			if err != nil {
				if !yield(nil, err) || x.policy == StopOnRowError {
					return
				}
				continue
			}
			if !yield(row, nil) {
				return
			}
		}

		if x.pageSize == 0 || len(page) < limit {
			return
		}
		offset += len(page)
		if plan.Limit > 0 {
			remaining -= len(page)
			if remaining <= 0 {
				return
			}
		}
	}
}

// convert decodes a wire row into a logical row and merges its shadow
// values and attachment listings. Company fields take the scope's
// company id.
func (x *Executor) convert(ctx context.Context, plan *Plan, raw remote.Row) (Row, error) {
	e := plan.Entity
	row := make(Row, len(plan.Fields))
	var shadowFields, fileFields []*model.Field

	for _, f := range plan.Fields {
		if x.compiler.shadow.IsShadow(e, f) {
			shadowFields = append(shadowFields, f)
			continue
		}
		switch f.Type.Kind {
		case model.KindCompany:
			row[f.Name] = plan.Scope.CompanyID
			continue
		case model.KindRemoteFile:
			row[f.Name] = nil
			fileFields = append(fileFields, f)
			continue
		}
		v, err := x.compiler.codec.FromWire(f.Type, raw[f.Column], f.Column, raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s row: %w", e.Name, withField(err, f.Name))
		}
		row[f.Name] = v
	}

	lister, canList := x.transport.(remote.AttachmentLister)
	if !canList {
		fileFields = nil
	}
	if len(shadowFields) == 0 && len(fileFields) == 0 {
		return row, nil
	}

	pk := e.PrimaryKey()
	id, ok := remote.ParseID(raw[pk.Column])
	if !ok {
		return nil, dberr.ValueConversion(pk.Name, "id", raw[pk.Column], nil)
	}
	if len(shadowFields) > 0 {
		if err := x.compiler.shadow.Merge(ctx, e, plan.Scope, id, row, shadowFields); err != nil {
			return nil, err
		}
	}
	if len(fileFields) > 0 {
		files, err := lister.Attachments(ctx, plan.Remote, id)
		if err != nil {
			return nil, err
		}
		for _, f := range fileFields {
			row[f.Name] = files
		}
	}
	return row, nil
}

// Count returns the number of objects matching q.
func (x *Executor) Count(ctx context.Context, sc scope.Scope, q Query) (int64, error) {
	plan, err := x.compiler.Compile(ctx, sc, q)
	if err != nil {
		return 0, err
	}
	if plan.Empty {
		return 0, nil
	}
	x.logger.Debug().Str("entity", plan.Entity.Name).Str("filter", plan.Remote.FilterString()).Msg("count")
	return x.transport.Count(ctx, plan.Remote)
}

// Exists reports whether any object matches q. It is answered by a
// single-row fetch of the primary key.
func (x *Executor) Exists(ctx context.Context, sc scope.Scope, q Query) (bool, error) {
	q.Extra = ExistsProbe()
	q.Offset, q.Limit = 0, 1
	q.OrderBy, q.Natural = nil, false

	plan, err := x.compiler.Compile(ctx, sc, q)
	if err != nil {
		return false, err
	}
	if plan.Empty {
		return false, nil
	}
	plan.Remote.Columns = []string{plan.Remote.PrimaryKey}
	rows, err := x.transport.Fetch(ctx, plan.Remote, 0, 1)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Aggregate evaluates the single aggregate of q. Only COUNT is supported.
func (x *Executor) Aggregate(ctx context.Context, sc scope.Scope, q Query) (int64, error) {
	if len(q.Aggregates) == 0 {
		return 0, dberr.NotImplemented(q.Entity, "query has no aggregate")
	}
	return x.Count(ctx, sc, q)
}

// matchingIDs fetches the primary keys of every object of plan.
func (x *Executor) matchingIDs(ctx context.Context, plan *Plan) ([]int64, error) {
	if plan.Empty {
		return nil, nil
	}
	pk := plan.Remote.PrimaryKey
	plan.Remote.Columns = []string{pk}
	rows, err := x.transport.Fetch(ctx, plan.Remote, plan.Offset, plan.Limit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		id, ok := remote.ParseID(r[pk])
		if !ok {
			return nil, dberr.ValueConversion(plan.Entity.PrimaryKey().Name, "id", r[pk], nil)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
