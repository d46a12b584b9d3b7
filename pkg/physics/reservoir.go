package physics

import (
	"fmt"

	"github.com/darrencroton/mimic/pkg/extension"
	"github.com/darrencroton/mimic/pkg/halo"
)

// cosmicBaryonFraction is the share of accreted mass treated as baryonic by
// the reference module.
const cosmicBaryonFraction = 0.17

// Reservoir is the reference physics module. It demonstrates the extension
// slot contract without committing to real galaxy physics: per step it
// credits the baryonic share of each halo's virial-mass growth to the hot
// gas reservoir and records the peak virial mass ever reached.
type Reservoir struct {
	hotGas   int
	peakMvir int
	accreted int
}

// NewReservoir creates the reference module against the default schema
// field names.
func NewReservoir() *Reservoir {
	return &Reservoir{hotGas: -1, peakMvir: -1, accreted: -1}
}

// Name implements Module.
func (m *Reservoir) Name() string {
	return "reservoir"
}

// Description implements Module.
func (m *Reservoir) Description() string {
	return "tracks baryonic accretion into the hot gas reservoir and the peak virial mass"
}

// Bind implements Module. It resolves the schema field indices up front;
// EvolveGroup then never mutates the module, so one bound instance is safe
// to share across workers.
func (m *Reservoir) Bind(schema *extension.Schema) error {
	names := []string{"hot_gas", "peak_mvir", "accreted_mass"}
	targets := []*int{&m.hotGas, &m.peakMvir, &m.accreted}

	for i, name := range names {
		idx, ok := schema.FieldIndex(name)
		if !ok {
			return fmt.Errorf("physics: reservoir module requires schema field %q", name)
		}

		*targets[i] = idx
	}

	return nil
}

// EvolveGroup implements Module.
func (m *Reservoir) EvolveGroup(step GroupStep) error {
	if m.hotGas < 0 {
		panic("physics: reservoir module evolved before Bind")
	}

	for i := range step.Len() {
		tracked := step.Halo(i)
		if tracked.Type == halo.TypeMerged {
			continue
		}

		slot := step.Slot(i)

		peak := step.Schema.Get(slot, m.peakMvir)
		growth := tracked.Mvir - peak

		if tracked.Mvir > peak {
			step.Schema.Set(slot, m.peakMvir, tracked.Mvir)
		}

		// Only first-time growth above the previous peak accretes fresh
		// baryons; re-accretion after stripping is not double counted.
		if growth > 0 {
			step.Schema.Add(slot, m.hotGas, cosmicBaryonFraction*growth)
			step.Schema.Set(slot, m.accreted, growth)
		} else {
			step.Schema.Set(slot, m.accreted, 0)
		}
	}

	return nil
}
