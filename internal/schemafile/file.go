// Package schemafile loads type and table declarations from YAML and builds
// bind schemas and store table definitions from them.
//
// A file has two top-level lists:
//
//	types:
//	  - name: UserForm
//	    table: users
//	    permit_scopes: [admin, user]
//	    fields:
//	      - {name: id, type: integer}
//	      - {name: first_name, type: string, required: true}
//	      - name: country
//	        type: symbol
//	        permitted_values:
//	          admin: [de, fr, us]
//	          user: [de]
//	      - name: comments
//	        table: comments
//	        fields:
//	          - {name: id, type: integer}
//	          - {name: text, type: string}
//	          - {name: _destroy, type: boolean}
//	tables:
//	  - name: audit
//	    columns: [{name: message, type: string}]
//
// Tables are derived from every type or nested field that names one;
// entries under tables override derived definitions of the same name.
package schemafile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/bindery/pkg/types"
)

// File is the parsed form of a schema file.
type File struct {
	Types  []TypeDecl       `yaml:"types"`
	Tables []types.TableDef `yaml:"tables"`
}

// TypeDecl declares one top-level schema.
type TypeDecl struct {
	Name         string      `yaml:"name"`
	Extends      string      `yaml:"extends,omitempty"`
	Table        string      `yaml:"table,omitempty"`
	PermitScopes []string    `yaml:"permit_scopes,omitempty"`
	Fields       []FieldDecl `yaml:"fields"`
}

// FieldDecl declares one field. A field with nested Fields is a nested
// type; its Type is ignored.
type FieldDecl struct {
	Name            string      `yaml:"name"`
	Type            string      `yaml:"type,omitempty"`
	Array           *bool       `yaml:"array,omitempty"`
	Default         any         `yaml:"default,omitempty"`
	Required        bool        `yaml:"required,omitempty"`
	PermitScopes    []string    `yaml:"permit_scopes,omitempty"`
	PermittedValues ValueList   `yaml:"permitted_values,omitempty"`
	Inclusion       []any       `yaml:"inclusion,omitempty"`
	Length          *LengthDecl `yaml:"length,omitempty"`
	Format          string      `yaml:"format,omitempty"`
	Table           string      `yaml:"table,omitempty"`
	ForeignKey      string      `yaml:"foreign_key,omitempty"`
	Fields          []FieldDecl `yaml:"fields,omitempty"`
}

// LengthDecl bounds a string or list length. Max zero means unbounded.
type LengthDecl struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// IsNested reports whether the field declares a nested type.
func (f FieldDecl) IsNested() bool { return len(f.Fields) > 0 }

// ValueList is a permitted-values declaration: either one list for every
// scope or a map from scope to list. The scope "*" applies to scopes with
// no entry of their own.
type ValueList struct {
	All     []any
	ByScope map[string][]any
}

// UnmarshalYAML accepts a sequence or a mapping of sequences.
func (v *ValueList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var all []any
		if err := node.Decode(&all); err != nil {
			return err
		}
		v.All = all
		if v.All == nil {
			v.All = []any{}
		}
		return nil
	case yaml.MappingNode:
		var m map[string][]any
		if err := node.Decode(&m); err != nil {
			return err
		}
		v.ByScope = m
		return nil
	default:
		return fmt.Errorf("permitted_values: expected list or map, got %v", node.Kind)
	}
}

// MarshalYAML writes the list form when there is no per-scope map.
func (v ValueList) MarshalYAML() (any, error) {
	if v.ByScope != nil {
		return v.ByScope, nil
	}
	return v.All, nil
}

// IsZero reports whether nothing was declared, so omitempty drops it.
func (v ValueList) IsZero() bool { return v.All == nil && v.ByScope == nil }

// Values returns the list for scope. The second result is false when the
// declaration does not restrict values at all.
func (v ValueList) Values(scope string) ([]any, bool) {
	if v.IsZero() {
		return nil, false
	}
	if v.ByScope == nil {
		return v.All, true
	}
	if vals, ok := v.ByScope[scope]; ok {
		return vals, true
	}
	if vals, ok := v.ByScope["*"]; ok {
		return vals, true
	}
	return []any{}, true
}

// LoadFile reads and parses a schema file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML schema declarations.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing schema YAML: %w", err)
	}
	return &f, nil
}

// Marshal serializes a File to YAML.
func Marshal(f *File) ([]byte, error) {
	return yaml.Marshal(f)
}
