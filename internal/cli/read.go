package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/roach88/flexiql/internal/config"
	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/query"
)

// RenderResult is the remote request a document compiles to.
type RenderResult struct {
	Entity    string   `json:"entity"`
	Table     string   `json:"table"`
	Company   string   `json:"company"`
	Columns   []string `json:"columns"`
	Relations []string `json:"relations,omitempty"`
	Filter    string   `json:"filter"`
	Order     []string `json:"order,omitempty"`
	Offset    int      `json:"offset,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Empty     bool     `json:"empty,omitempty"`
}

func (r RenderResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "entity:   %s\n", r.Entity)
	fmt.Fprintf(&b, "table:    %s (company %s)\n", r.Table, r.Company)
	fmt.Fprintf(&b, "columns:  %s\n", strings.Join(r.Columns, ","))
	if len(r.Relations) > 0 {
		fmt.Fprintf(&b, "relations: %s\n", strings.Join(r.Relations, ","))
	}
	fmt.Fprintf(&b, "filter:   %s\n", r.Filter)
	fmt.Fprintf(&b, "order:    %s\n", strings.Join(r.Order, ","))
	if r.Offset > 0 || r.Limit > 0 {
		fmt.Fprintf(&b, "window:   offset %d limit %d\n", r.Offset, r.Limit)
	}
	if r.Empty {
		b.WriteString("empty:    matches nothing, no request is sent\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <document>",
		Short: "Show the FlexiBee request a query document compiles to",
		Long: `Compile a query document and print the remote table, columns, filter
and ordering without contacting the server. Filters on shadow fields are
resolved against the local shadow store.

Examples:
  flexiql render invoices.yaml
  echo 'entity: contact' | flexiql render -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runRender(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	doc, err := readDocument(cmd, path)
	if err != nil {
		return out.Fail("render failed", err)
	}
	a, err := openApp(ctx, cmd, opts, needModels|needStore)
	if err != nil {
		return out.Fail("render failed", err)
	}
	defer a.Close()

	sc, err := a.scope(ctx)
	if err != nil {
		return out.Fail("render failed", err)
	}
	plan, err := a.compiler.Compile(ctx, sc, doc.Query)
	if err != nil {
		return out.Fail("render failed", err)
	}

	r := plan.Remote
	return out.Success(RenderResult{
		Entity:    plan.Entity.Name,
		Table:     r.Table,
		Company:   sc.DBName,
		Columns:   r.Columns,
		Relations: r.Relations,
		Filter:    r.FilterString(),
		Order:     r.OrderStrings(),
		Offset:    plan.Offset,
		Limit:     plan.Limit,
		Empty:     plan.Empty,
	})
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <document>",
		Short: "Fetch rows matching a query document",
		Long: `Run a query document against FlexiBee and print the matching rows with
shadow fields merged in.

Examples:
  flexiql fetch invoices.yaml
  flexiql fetch invoices.yaml --format json --company demo`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runFetch(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	doc, err := readDocument(cmd, path)
	if err != nil {
		return out.Fail("fetch failed", err)
	}
	a, err := openApp(ctx, cmd, opts, needModels|needStore|needRemote)
	if err != nil {
		return out.Fail("fetch failed", err)
	}
	defer a.Close()

	sc, err := a.scope(ctx)
	if err != nil {
		return out.Fail("fetch failed", err)
	}
	e, err := a.registry.Lookup(doc.Query.Entity)
	if err != nil {
		return out.Fail("fetch failed", err)
	}

	rows := make([]query.Row, 0)
	skipped := 0
	for row, err := range a.executor.Fetch(ctx, sc, doc.Query) {
		if err != nil {
			if a.cfg.Query.RowErrors != config.RowErrorsContinue || !dberr.IsValueConversion(err) {
				return out.Fail("fetch failed", err)
			}
			skipped++
			a.logger.Warn().Err(err).Str("entity", e.Name).Msg("skipped row")
			continue
		}
		rows = append(rows, row)
	}
	out.VerboseLog("%d rows from %s, %d skipped", len(rows), e.Table, skipped)

	header := doc.Query.Fields
	if len(header) == 0 {
		for _, f := range e.Fields {
			header = append(header, f.Name)
		}
	}
	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		line := make([]string, len(header))
		for i, name := range header {
			line[i] = formatCell(row[name])
		}
		cells = append(cells, line)
	}
	return out.Table(header, cells, rows)
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	var exists bool

	cmd := &cobra.Command{
		Use:   "count <document>",
		Short: "Count rows matching a query document",
		Long: `Count the rows matching a query document. With --exists only report
whether at least one row matches.

Examples:
  flexiql count overdue.yaml
  flexiql count overdue.yaml --exists`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(rootOpts, args[0], exists, cmd)
		},
	}

	cmd.Flags().BoolVar(&exists, "exists", false, "only report whether any row matches")
	return cmd
}

func runCount(opts *RootOptions, path string, exists bool, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	doc, err := readDocument(cmd, path)
	if err != nil {
		return out.Fail("count failed", err)
	}
	a, err := openApp(ctx, cmd, opts, needModels|needStore|needRemote)
	if err != nil {
		return out.Fail("count failed", err)
	}
	defer a.Close()

	sc, err := a.scope(ctx)
	if err != nil {
		return out.Fail("count failed", err)
	}

	if exists {
		ok, err := a.executor.Exists(ctx, sc, doc.Query)
		if err != nil {
			return out.Fail("count failed", err)
		}
		if out.Format == "json" {
			return out.Success(map[string]bool{"exists": ok})
		}
		return out.Success(ok)
	}

	var n int64
	if len(doc.Query.Aggregates) > 0 {
		n, err = a.executor.Aggregate(ctx, sc, doc.Query)
	} else {
		n, err = a.executor.Count(ctx, sc, doc.Query)
	}
	if err != nil {
		return out.Fail("count failed", err)
	}
	if out.Format == "json" {
		return out.Success(map[string]int64{"count": n})
	}
	return out.Success(n)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case time.Time:
		return v.Format(time.DateOnly)
	case decimal.Decimal:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, elem := range v {
			parts[i] = formatCell(elem)
		}
		return strings.Join(parts, ",")
	}
	return cast.ToString(v)
}
