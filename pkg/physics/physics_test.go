package physics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darrencroton/mimic/pkg/arena"
	"github.com/darrencroton/mimic/pkg/extension"
	"github.com/darrencroton/mimic/pkg/halo"
)

func TestRegistryRegisterAndSelect(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()

	assert.Equal(t, []string{"reservoir"}, r.Names())

	modules, err := r.Select([]string{"reservoir"}, extension.Default())
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "reservoir", modules[0].Name())

	_, err = r.Select([]string{"winds"}, extension.Default())
	assert.Error(t, err)

	assert.Panics(t, func() { r.Register(NewReservoir()) })
}

func TestGroupStepExposesValueCopies(t *testing.T) {
	t.Parallel()

	halos := []halo.Halo{{Mvir: 10, Type: halo.TypeCentral}}
	step := NewGroupStep(3, 0.1, extension.Default(), halos)

	require.Equal(t, 1, step.Len())

	copied := step.Halo(0)
	copied.Mvir = 999

	assert.InDelta(t, 10.0, step.Halo(0).Mvir, 1e-12)
	assert.Equal(t, int32(3), step.Snapshot)
}

func TestReservoirCreditsBaryonicGrowth(t *testing.T) {
	t.Parallel()

	a := arena.New()
	schema := extension.Default()
	module := NewReservoir()
	require.NoError(t, module.Bind(schema))

	slot := schema.NewSlot(a)
	halos := []halo.Halo{{Mvir: 100, Type: halo.TypeCentral, Extension: slot}}

	require.NoError(t, module.EvolveGroup(NewGroupStep(0, 0.1, schema, halos)))

	hotGas, _ := schema.FieldIndex("hot_gas")
	peak, _ := schema.FieldIndex("peak_mvir")
	accreted, _ := schema.FieldIndex("accreted_mass")

	assert.InDelta(t, 0.17*100, schema.Get(slot, hotGas), 1e-9)
	assert.InDelta(t, 100.0, schema.Get(slot, peak), 1e-9)
	assert.InDelta(t, 100.0, schema.Get(slot, accreted), 1e-9)

	// A later step below the recorded peak accretes nothing.
	halos[0].Mvir = 80
	require.NoError(t, module.EvolveGroup(NewGroupStep(1, 0.1, schema, halos)))

	assert.InDelta(t, 0.17*100, schema.Get(slot, hotGas), 1e-9)
	assert.InDelta(t, 100.0, schema.Get(slot, peak), 1e-9)
	assert.Zero(t, schema.Get(slot, accreted))

	// Regrowth past the peak only credits the above-peak share.
	halos[0].Mvir = 110
	require.NoError(t, module.EvolveGroup(NewGroupStep(2, 0.1, schema, halos)))

	assert.InDelta(t, 0.17*110, schema.Get(slot, hotGas), 1e-9)
	assert.InDelta(t, 110.0, schema.Get(slot, peak), 1e-9)

	schema.ReleaseSlot(a, slot)
	a.AssertNoLeaks()
}

func TestReservoirSkipsMergedHalos(t *testing.T) {
	t.Parallel()

	a := arena.New()
	schema := extension.Default()
	module := NewReservoir()
	require.NoError(t, module.Bind(schema))

	halos := []halo.Halo{{Mvir: 50, Type: halo.TypeMerged}}

	assert.NotPanics(t, func() {
		require.NoError(t, module.EvolveGroup(NewGroupStep(0, 0.1, schema, halos)))
	})

	a.AssertNoLeaks()
}

func TestReservoirRequiresSchemaFields(t *testing.T) {
	t.Parallel()

	bare, err := extension.NewSchema([]extension.FieldSpec{{Name: "other"}})
	require.NoError(t, err)

	assert.Error(t, NewReservoir().Bind(bare))

	r := NewRegistry()
	r.Register(NewReservoir())

	_, err = r.Select([]string{"reservoir"}, bare)
	assert.Error(t, err)
}

// One bound module instance serves every worker, so concurrent group steps
// against distinct workspaces must not interfere.
func TestReservoirSafeAcrossConcurrentGroups(t *testing.T) {
	t.Parallel()

	schema := extension.Default()
	module := NewReservoir()
	require.NoError(t, module.Bind(schema))

	hotGas, _ := schema.FieldIndex("hot_gas")

	var wg sync.WaitGroup

	arenas := make([]*arena.Arena, 4)
	slots := make([]extension.Slot, 4)

	for w := range arenas {
		arenas[w] = arena.New()
		slots[w] = schema.NewSlot(arenas[w])

		wg.Add(1)

		go func() {
			defer wg.Done()

			halos := []halo.Halo{{Mvir: float64(100 * (w + 1)), Type: halo.TypeCentral, Extension: slots[w]}}

			for snap := int32(0); snap < 50; snap++ {
				if err := module.EvolveGroup(NewGroupStep(snap, 0.1, schema, halos)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	wg.Wait()

	for w := range arenas {
		assert.InDelta(t, 0.17*float64(100*(w+1)), schema.Get(slots[w], hotGas), 1e-9)

		schema.ReleaseSlot(arenas[w], slots[w])
		arenas[w].AssertNoLeaks()
	}
}
