package extension

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darrencroton/mimic/pkg/arena"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()

	s, err := NewSchema([]FieldSpec{
		{Name: "mass", Kind: KindFloat, Default: 1.5, Inherit: InheritCopy, Merge: MergeSum},
		{Name: "peak", Kind: KindFloat, Inherit: InheritCopy, Merge: MergeMax},
		{Name: "burst", Kind: KindFloat, Inherit: InheritReset, Merge: MergeKeep},
		{Name: "angmom", Kind: KindVector3, Inherit: InheritCopy, Merge: MergeSum},
	})
	require.NoError(t, err)

	return s
}

func TestSchemaLayout(t *testing.T) {
	t.Parallel()

	s := testSchema(t)

	assert.Equal(t, 6, s.Words())
	assert.Len(t, s.Fields(), 4)

	i, ok := s.FieldIndex("angmom")
	require.True(t, ok)
	assert.Equal(t, 3, i)

	_, ok = s.FieldIndex("missing")
	assert.False(t, ok)
}

func TestSchemaRejectsBadFields(t *testing.T) {
	t.Parallel()

	_, err := NewSchema([]FieldSpec{{Name: ""}})
	assert.Error(t, err)

	_, err = NewSchema([]FieldSpec{{Name: "a"}, {Name: "a"}})
	assert.Error(t, err)

	_, err = NewSchema([]FieldSpec{{Name: "a", Kind: Kind(42)}})
	assert.Error(t, err)
}

func TestNewSlotAppliesDefaults(t *testing.T) {
	t.Parallel()

	a := arena.New()
	s := testSchema(t)
	slot := s.NewSlot(a)

	require.True(t, slot.Valid())
	assert.InDelta(t, 1.5, s.Get(slot, 0), 1e-12)
	assert.Zero(t, s.Get(slot, 1))
	assert.Equal(t, [3]float64{}, s.GetVector(slot, 3))

	s.ReleaseSlot(a, slot)
	a.AssertNoLeaks()
}

func TestCloneHonorsInheritPolicies(t *testing.T) {
	t.Parallel()

	a := arena.New()
	s := testSchema(t)
	src := s.NewSlot(a)
	s.Set(src, 0, 10)
	s.Set(src, 2, 99)
	s.SetVector(src, 3, [3]float64{1, 2, 3})

	clone := s.CloneSlot(a, src)

	// Copied fields carry over, reset fields return to defaults.
	assert.InDelta(t, 10.0, s.Get(clone, 0), 1e-12)
	assert.Zero(t, s.Get(clone, 2))
	assert.Equal(t, [3]float64{1, 2, 3}, s.GetVector(clone, 3))

	// The clone is deep: mutating it must not touch the source.
	s.Set(clone, 0, -4)
	assert.InDelta(t, 10.0, s.Get(src, 0), 1e-12)

	s.ReleaseSlot(a, src)
	s.ReleaseSlot(a, clone)
	a.AssertNoLeaks()
}

func TestMergeFoldsAndReleasesSource(t *testing.T) {
	t.Parallel()

	a := arena.New()
	s := testSchema(t)

	dst := s.NewSlot(a)
	s.Set(dst, 0, 5)
	s.Set(dst, 1, 7)
	s.Set(dst, 2, 100)

	src := s.NewSlot(a)
	s.Set(src, 0, 3)
	s.Set(src, 1, 9)
	s.Set(src, 2, 50)
	s.SetVector(src, 3, [3]float64{1, 1, 1})

	s.MergeSlot(a, dst, src)

	assert.InDelta(t, 8.0, s.Get(dst, 0), 1e-12, "sum")
	assert.InDelta(t, 9.0, s.Get(dst, 1), 1e-12, "max")
	assert.InDelta(t, 100.0, s.Get(dst, 2), 1e-12, "keep")
	assert.Equal(t, [3]float64{1, 1, 1}, s.GetVector(dst, 3))

	// src was released inside MergeSlot; only dst remains.
	assert.Equal(t, int64(1), a.Stats(arena.CategoryExtensionData).Allocations)

	s.ReleaseSlot(a, dst)
	a.AssertNoLeaks()
}

func TestReleasedSlotUseIsFatal(t *testing.T) {
	t.Parallel()

	s := testSchema(t)

	var dead Slot

	assert.False(t, dead.Valid())
	assert.Panics(t, func() { s.Get(dead, 0) })
}

func TestLoadYAMLSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "schema.yaml")
	content := `fields:
  - name: hot_gas
    kind: float
    merge: sum
  - name: peak_mvir
    kind: float
    default: 0.5
    merge: max
  - name: accreted
    kind: float
    inherit: reset
    merge: keep
  - name: spin
    kind: vec3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6, s.Words())

	i, ok := s.FieldIndex("peak_mvir")
	require.True(t, ok)
	assert.Equal(t, MergeMax, s.Fields()[i].Merge)
	assert.InDelta(t, 0.5, s.Fields()[i].Default, 1e-12)

	i, ok = s.FieldIndex("accreted")
	require.True(t, ok)
	assert.Equal(t, InheritReset, s.Fields()[i].Inherit)
}

func TestLoadRejectsBadSchemas(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("fields: []\n"), 0o600))

	_, err = Load(empty)
	assert.Error(t, err)

	badKind := filepath.Join(dir, "badkind.yaml")
	require.NoError(t, os.WriteFile(badKind, []byte("fields:\n  - name: x\n    kind: matrix\n"), 0o600))

	_, err = Load(badKind)
	assert.Error(t, err)
}
