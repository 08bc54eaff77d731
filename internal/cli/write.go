package cli

import (
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/flexiql/internal/query"
)

// WriteResult reports the objects a write touched.
type WriteResult struct {
	Entity string  `json:"entity"`
	IDs    []int64 `json:"ids"`
}

func (r WriteResult) String() string {
	ids := make([]string, len(r.IDs))
	for i, id := range r.IDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%s: %d object(s) [%s]", r.Entity, len(r.IDs), strings.Join(ids, ", "))
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	var set []string

	cmd := &cobra.Command{
		Use:   "insert <document>",
		Short: "Create one object from a document's values",
		Long: `Create one object. The document names the entity and carries the field
values; --set adds or overrides single values. Shadow fields are written to
the local shadow store after the remote object exists.

Examples:
  flexiql insert contact.yaml
  echo 'entity: contact' | flexiql insert - --set name=Acme --set notes=vip`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(rootOpts, args[0], set, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&set, "set", nil, "field=value to write (repeatable)")
	return cmd
}

func runInsert(opts *RootOptions, path string, set []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	doc, values, err := readWriteDocument(cmd, path, set)
	if err != nil {
		return out.Fail("insert failed", err)
	}
	a, err := openApp(ctx, cmd, opts, needModels|needStore|needRemote)
	if err != nil {
		return out.Fail("insert failed", err)
	}
	defer a.Close()

	sc, err := a.scope(ctx)
	if err != nil {
		return out.Fail("insert failed", err)
	}
	id, err := a.executor.Insert(ctx, sc, doc.Query.Entity, values)
	if err != nil {
		return out.Fail("insert failed", err)
	}
	return out.Success(WriteResult{Entity: doc.Query.Entity, IDs: []int64{id}})
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var set []string

	cmd := &cobra.Command{
		Use:   "update <document>",
		Short: "Write values to every object matching a query document",
		Long: `Update every object matching the document's where clause with the
document's values and --set pairs.

Examples:
  flexiql update block-customer.yaml
  flexiql update customers.yaml --set active=false`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(rootOpts, args[0], set, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&set, "set", nil, "field=value to write (repeatable)")
	return cmd
}

func runUpdate(opts *RootOptions, path string, set []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	doc, values, err := readWriteDocument(cmd, path, set)
	if err != nil {
		return out.Fail("update failed", err)
	}
	if len(values) == 0 {
		return out.Fail("update failed", fmt.Errorf("no values to write"))
	}
	a, err := openApp(ctx, cmd, opts, needModels|needStore|needRemote)
	if err != nil {
		return out.Fail("update failed", err)
	}
	defer a.Close()

	sc, err := a.scope(ctx)
	if err != nil {
		return out.Fail("update failed", err)
	}
	ids, err := a.executor.Update(ctx, sc, doc.Query, values)
	if err != nil {
		return out.Fail("update failed", err)
	}
	return out.Success(WriteResult{Entity: doc.Query.Entity, IDs: nonNil(ids)})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <document>",
		Short: "Delete every object matching a query document",
		Long: `Delete every object matching the document's where clause, together with
their shadow records.

Examples:
  flexiql delete stale-contacts.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDelete(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	doc, err := readDocument(cmd, path)
	if err != nil {
		return out.Fail("delete failed", err)
	}
	a, err := openApp(ctx, cmd, opts, needModels|needStore|needRemote)
	if err != nil {
		return out.Fail("delete failed", err)
	}
	defer a.Close()

	sc, err := a.scope(ctx)
	if err != nil {
		return out.Fail("delete failed", err)
	}
	ids, err := a.executor.Delete(ctx, sc, doc.Query)
	if err != nil {
		return out.Fail("delete failed", err)
	}
	return out.Success(WriteResult{Entity: doc.Query.Entity, IDs: nonNil(ids)})
}

// readWriteDocument reads a document and merges --set pairs over its
// values. Pair values are decoded as YAML scalars, so "null" is nil and
// "12" is an integer.
func readWriteDocument(cmd *cobra.Command, path string, set []string) (*query.Document, map[string]any, error) {
	doc, err := readDocument(cmd, path)
	if err != nil {
		return nil, nil, err
	}
	values := make(map[string]any, len(doc.Values)+len(set))
	maps.Copy(values, doc.Values)
	for _, pair := range set {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, nil, fmt.Errorf("invalid --set %q: want field=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, nil, fmt.Errorf("invalid --set %q: %w", pair, err)
		}
		values[key] = v
	}
	return doc, values, nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
