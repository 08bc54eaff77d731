package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Descriptor files declare entities either as YAML (a list under
// "entities") or as CUE (a struct under "entity" keyed by entity name):
//
//	entity: "address-book": {
//	    table: "adresar"
//	    fields: [
//	        {name: "id", type: "integer", primary_key: true},
//	        {name: "name", column: "nazev", type: "text"},
//	        {name: "notes", type: "text", shadow: true, nullable: true},
//	    ]
//	}

type fileDoc struct {
	Entities []entityDoc `yaml:"entities" json:"entities"`
}

type entityDoc struct {
	Name                string     `yaml:"name" json:"name"`
	Table               string     `yaml:"table" json:"table"`
	View                bool       `yaml:"view" json:"view"`
	ReadOnly            bool       `yaml:"read_only" json:"read_only"`
	UseAccountingPeriod bool       `yaml:"use_accounting_period" json:"use_accounting_period"`
	ReadOnlyFields      []string   `yaml:"read_only_fields" json:"read_only_fields"`
	Fields              []fieldDoc `yaml:"fields" json:"fields"`
}

type fieldDoc struct {
	Name       string `yaml:"name" json:"name"`
	Column     string `yaml:"column" json:"column"`
	Type       string `yaml:"type" json:"type"`
	Nullable   bool   `yaml:"nullable" json:"nullable"`
	PrimaryKey bool   `yaml:"primary_key" json:"primary_key"`
	Shadow     bool   `yaml:"shadow" json:"shadow"`
	Default    any    `yaml:"default" json:"default"`
	Related    string `yaml:"related" json:"related"`
	Relation   string `yaml:"relation" json:"relation"`
}

// LoadPath loads descriptors from a file or from every .yaml, .yml and
// .cue file in a directory, and validates them into a Registry.
func LoadPath(path string) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load descriptors: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = findDescriptorFiles(path)
		if err != nil {
			return nil, fmt.Errorf("load descriptors: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("load descriptors: no descriptor files in %s", path)
		}
	}

	var entities []*Entity
	for _, f := range files {
		es, err := loadFile(f)
		if err != nil {
			return nil, err
		}
		entities = append(entities, es...)
	}
	return NewRegistry(entities...)
}

// LoadYAML reads YAML descriptors from r.
func LoadYAML(r io.Reader) ([]*Entity, error) {
	var doc fileDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode yaml descriptors: %w", err)
	}
	return convertEntities(doc.Entities)
}

// LoadCUE compiles CUE source and reads the "entity" struct.
func LoadCUE(filename string, src []byte) ([]*Entity, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", filename, err)
	}

	entitiesVal := v.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return nil, nil
	}
	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("%s: iterating entities: %w", filename, err)
	}

	var docs []entityDoc
	for iter.Next() {
		var doc entityDoc
		if err := iter.Value().Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: entity %s: %w", filename, iter.Label(), err)
		}
		if doc.Name == "" {
			doc.Name = iter.Label()
		}
		docs = append(docs, doc)
	}
	return convertEntities(docs)
}

func loadFile(path string) ([]*Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return LoadCUE(path, data)
	case ".yaml", ".yml", ".json":
		es, err := LoadYAML(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return es, nil
	default:
		return nil, fmt.Errorf("unsupported descriptor file %s", path)
	}
}

func findDescriptorFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".cue", ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func convertEntities(docs []entityDoc) ([]*Entity, error) {
	out := make([]*Entity, 0, len(docs))
	for _, d := range docs {
		e := &Entity{
			Name:                d.Name,
			Table:               d.Table,
			View:                d.View,
			ReadOnly:            d.ReadOnly,
			UseAccountingPeriod: d.UseAccountingPeriod,
			ReadOnlyFields:      d.ReadOnlyFields,
		}
		for _, fd := range d.Fields {
			ft, err := ParseFieldType(fd.Type)
			if err != nil {
				return nil, fmt.Errorf("entity %q: field %q: %w", d.Name, fd.Name, err)
			}
			e.Fields = append(e.Fields, &Field{
				Name:       fd.Name,
				Column:     fd.Column,
				Type:       ft,
				Nullable:   fd.Nullable,
				PrimaryKey: fd.PrimaryKey,
				Shadow:     fd.Shadow,
				Default:    fd.Default,
				Related:    fd.Related,
				Relation:   fd.Relation,
			})
		}
		out = append(out, e)
	}
	return out, nil
}
