// Package physics defines the plug-in layer that galaxy-physics code hooks
// into. The tracking engine hands each module the workspace of one FOF group
// per evolutionary step; modules may read every tracked halo and read/write
// its extension slot, but the structural fields (type, virial properties,
// links) are read-only to them by construction: modules only ever see value
// copies of the halos themselves.
package physics

import (
	"fmt"
	"sort"

	"github.com/darrencroton/mimic/pkg/extension"
	"github.com/darrencroton/mimic/pkg/halo"
)

// GroupStep is one FOF group's evolutionary step as presented to physics
// modules.
type GroupStep struct {
	// Snapshot is the snapshot being evolved.
	Snapshot int32
	// DeltaT is the time elapsed since the previous snapshot.
	DeltaT float64
	// Schema describes the extension slots.
	Schema *extension.Schema

	halos []halo.Halo
}

// NewGroupStep wraps one group's workspace slice for module consumption.
func NewGroupStep(snapshot int32, deltaT float64, schema *extension.Schema, halos []halo.Halo) GroupStep {
	return GroupStep{Snapshot: snapshot, DeltaT: deltaT, Schema: schema, halos: halos}
}

// Len returns the number of tracked halos in the group.
func (g GroupStep) Len() int {
	return len(g.halos)
}

// Halo returns a value copy of the i-th tracked halo. Mutating the copy has
// no effect on the engine's state.
func (g GroupStep) Halo(i int) halo.Halo {
	return g.halos[i]
}

// Slot returns the i-th halo's extension slot for read/write access through
// the step's schema.
func (g GroupStep) Slot(i int) extension.Slot {
	return g.halos[i].Extension
}

// Module is one physics plug-in. Bind runs once, before any EvolveGroup
// call, and resolves whatever schema fields the module needs; after Bind a
// module must hold no mutable state of its own, since one instance serves
// every worker concurrently. EvolveGroup is called once per FOF group per
// snapshot, after the group has been joined and before its halos are
// committed to the processed history.
type Module interface {
	Name() string
	Description() string
	Bind(schema *extension.Schema) error
	EvolveGroup(step GroupStep) error
}

// Registry holds the available modules keyed by name.
type Registry struct {
	modules map[string]Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: map[string]Module{}}
}

// Register adds a module. Registering two modules under one name is a
// programmer error.
func (r *Registry) Register(module Module) {
	if _, dup := r.modules[module.Name()]; dup {
		panic(fmt.Sprintf("physics: duplicate module %q", module.Name()))
	}

	r.modules[module.Name()] = module
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Select resolves a list of module names into modules, in the given order,
// and binds each one against the schema.
func (r *Registry) Select(names []string, schema *extension.Schema) ([]Module, error) {
	selected := make([]Module, 0, len(names))

	for _, name := range names {
		module, ok := r.modules[name]
		if !ok {
			return nil, fmt.Errorf("physics: unknown module %q (available: %v)", name, r.Names())
		}

		if err := module.Bind(schema); err != nil {
			return nil, err
		}

		selected = append(selected, module)
	}

	return selected, nil
}

// DefaultRegistry returns a registry with the built-in modules registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewReservoir())

	return r
}
