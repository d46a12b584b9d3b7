// Package extension implements the extensible property slot attached to
// every tracked halo.
//
// A slot's layout is described once, declaratively, by a Schema: an ordered
// field list carrying each field's kind, default value, inheritance policy
// and merger policy. The schema is the single source of truth for slot
// allocation, progenitor-inheritance copying, merger disposition and
// serialization; there are no parallel structs to keep in sync.
package extension

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind is a field's value type.
type Kind int

// Field kinds. Every kind is stored as one or more float64 words.
const (
	// KindFloat is a single scalar.
	KindFloat Kind = iota
	// KindInt is a scalar constrained to integral values.
	KindInt
	// KindVector3 is a three-component vector.
	KindVector3
)

// InheritPolicy controls what happens to a field when a tracked halo is
// copied from its progenitor.
type InheritPolicy int

// Inheritance policies.
const (
	// InheritCopy carries the progenitor's value forward.
	InheritCopy InheritPolicy = iota
	// InheritReset restores the field's default on inheritance.
	InheritReset
)

// MergePolicy controls how a field is folded into the merge target when its
// halo merges.
type MergePolicy int

// Merger policies.
const (
	// MergeSum adds the source value onto the target (conserved
	// quantities).
	MergeSum MergePolicy = iota
	// MergeKeep leaves the target's value untouched.
	MergeKeep
	// MergeMax keeps the component-wise maximum of source and target.
	MergeMax
)

// FieldSpec declares one slot field.
type FieldSpec struct {
	Name    string
	Kind    Kind
	Default float64
	Inherit InheritPolicy
	Merge   MergePolicy
}

// words returns the field's storage width.
func (f FieldSpec) words() int {
	if f.Kind == KindVector3 {
		return 3
	}

	return 1
}

// Schema is a compiled field list. It is immutable after construction and
// safe to share across workers.
type Schema struct {
	fields  []FieldSpec
	offsets []int
	words   int
	index   map[string]int
}

// NewSchema compiles a field list into a schema.
func NewSchema(fields []FieldSpec) (*Schema, error) {
	s := &Schema{
		fields:  make([]FieldSpec, len(fields)),
		offsets: make([]int, len(fields)),
		index:   make(map[string]int, len(fields)),
	}

	copy(s.fields, fields)

	for i, field := range s.fields {
		if field.Name == "" {
			return nil, fmt.Errorf("extension: field %d has no name", i)
		}

		if _, dup := s.index[field.Name]; dup {
			return nil, fmt.Errorf("extension: duplicate field %q", field.Name)
		}

		if field.Kind < KindFloat || field.Kind > KindVector3 {
			return nil, fmt.Errorf("extension: field %q has unknown kind %d", field.Name, field.Kind)
		}

		s.index[field.Name] = i
		s.offsets[i] = s.words
		s.words += field.words()
	}

	return s, nil
}

// Default returns the built-in schema used when no schema file is
// configured: a minimal set of baryonic reservoirs plus bookkeeping for the
// reference physics module.
func Default() *Schema {
	s, err := NewSchema([]FieldSpec{
		{Name: "hot_gas", Kind: KindFloat, Inherit: InheritCopy, Merge: MergeSum},
		{Name: "cold_gas", Kind: KindFloat, Inherit: InheritCopy, Merge: MergeSum},
		{Name: "stellar_mass", Kind: KindFloat, Inherit: InheritCopy, Merge: MergeSum},
		{Name: "peak_mvir", Kind: KindFloat, Inherit: InheritCopy, Merge: MergeMax},
		{Name: "accreted_mass", Kind: KindFloat, Inherit: InheritReset, Merge: MergeKeep},
	})
	if err != nil {
		panic(err)
	}

	return s
}

// Words returns the slot width in float64 words.
func (s *Schema) Words() int {
	return s.words
}

// Fields returns the declared field list.
func (s *Schema) Fields() []FieldSpec {
	return s.fields
}

// FieldIndex returns the position of a named field.
func (s *Schema) FieldIndex(name string) (int, bool) {
	i, ok := s.index[name]

	return i, ok
}

// schemaFile is the YAML shape of a schema file.
type schemaFile struct {
	Fields []schemaField `yaml:"fields"`
}

type schemaField struct {
	Name    string  `yaml:"name"`
	Kind    string  `yaml:"kind"`
	Default float64 `yaml:"default"`
	Inherit string  `yaml:"inherit"`
	Merge   string  `yaml:"merge"`
}

var kindNames = map[string]Kind{
	"float": KindFloat,
	"int":   KindInt,
	"vec3":  KindVector3,
}

var inheritNames = map[string]InheritPolicy{
	"":      InheritCopy,
	"copy":  InheritCopy,
	"reset": InheritReset,
}

var mergeNames = map[string]MergePolicy{
	"":     MergeSum,
	"sum":  MergeSum,
	"keep": MergeKeep,
	"max":  MergeMax,
}

// Load reads and compiles a YAML schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extension: read schema: %w", err)
	}

	var file schemaFile

	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("extension: parse schema: %w", err)
	}

	if len(file.Fields) == 0 {
		return nil, fmt.Errorf("extension: schema %s declares no fields", path)
	}

	fields := make([]FieldSpec, 0, len(file.Fields))

	for _, raw := range file.Fields {
		kind, ok := kindNames[raw.Kind]
		if !ok {
			return nil, fmt.Errorf("extension: field %q has unknown kind %q", raw.Name, raw.Kind)
		}

		inherit, ok := inheritNames[raw.Inherit]
		if !ok {
			return nil, fmt.Errorf("extension: field %q has unknown inherit policy %q", raw.Name, raw.Inherit)
		}

		merge, ok := mergeNames[raw.Merge]
		if !ok {
			return nil, fmt.Errorf("extension: field %q has unknown merge policy %q", raw.Name, raw.Merge)
		}

		fields = append(fields, FieldSpec{
			Name:    raw.Name,
			Kind:    kind,
			Default: raw.Default,
			Inherit: inherit,
			Merge:   merge,
		})
	}

	return NewSchema(fields)
}
