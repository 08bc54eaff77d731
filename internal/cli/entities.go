package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/flexiql/internal/model"
)

// EntityInfo describes one entity for JSON output.
type EntityInfo struct {
	Name     string      `json:"name"`
	Table    string      `json:"table"`
	Access   string      `json:"access"`
	Fields   []FieldInfo `json:"fields,omitempty"`
	StoreVia string      `json:"store_via,omitempty"`
}

// FieldInfo describes one field for JSON output.
type FieldInfo struct {
	Name     string `json:"name"`
	Column   string `json:"column"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Key      bool   `json:"primary_key,omitempty"`
	Shadow   bool   `json:"shadow,omitempty"`
	Writable bool   `json:"writable"`
	Related  string `json:"related,omitempty"`
}

// NewEntitiesCommand creates the entities command.
func NewEntitiesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities [name]",
		Short: "List entity descriptors",
		Long: `List the loaded entity descriptors, or the fields of one entity.

Examples:
  flexiql entities
  flexiql entities invoice --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntities(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runEntities(opts *RootOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	a, err := openApp(commandContext(cmd), cmd, opts, needModels)
	if err != nil {
		return out.Fail("load entities", err)
	}
	defer a.Close()

	if len(args) == 1 {
		e, err := a.registry.Lookup(args[0])
		if err != nil {
			return out.Fail("load entities", err)
		}
		info := entityInfo(e, true)
		rows := make([][]string, 0, len(info.Fields))
		for _, f := range info.Fields {
			rows = append(rows, []string{
				f.Name, f.Column, f.Type,
				strconv.FormatBool(f.Nullable), strconv.FormatBool(f.Writable), fieldFlags(f),
			})
		}
		return out.Table([]string{"FIELD", "COLUMN", "TYPE", "NULLABLE", "WRITABLE", "FLAGS"}, rows, info)
	}

	infos := make([]EntityInfo, 0, len(a.registry.Names()))
	rows := make([][]string, 0, len(infos))
	for _, name := range a.registry.Names() {
		e, _ := a.registry.Entity(name)
		info := entityInfo(e, false)
		infos = append(infos, info)
		rows = append(rows, []string{info.Name, info.Table, info.Access, info.StoreVia})
	}
	return out.Table([]string{"ENTITY", "TABLE", "ACCESS", "STORE VIA"}, rows, infos)
}

func entityInfo(e *model.Entity, withFields bool) EntityInfo {
	info := EntityInfo{Name: e.Name, Table: e.Table, Access: "read-write"}
	switch {
	case e.View:
		info.Access = "view"
	case e.ReadOnly:
		info.Access = "read-only"
	}
	if via := e.StoreVia(); via != nil {
		info.StoreVia = via.Table + "." + via.Relation
	}
	if !withFields {
		return info
	}
	for _, f := range e.Fields {
		info.Fields = append(info.Fields, FieldInfo{
			Name:     f.Name,
			Column:   f.Column,
			Type:     f.Type.String(),
			Nullable: f.Nullable,
			Key:      f.PrimaryKey,
			Shadow:   f.Shadow,
			Writable: !e.Immutable() && (f.Shadow || e.IsWritable(f)),
			Related:  f.Related,
		})
	}
	return info
}

func fieldFlags(f FieldInfo) string {
	var flags []string
	if f.Key {
		flags = append(flags, "pk")
	}
	if f.Shadow {
		flags = append(flags, "shadow")
	}
	if f.Related != "" {
		flags = append(flags, "-> "+f.Related)
	}
	return strings.Join(flags, " ")
}
