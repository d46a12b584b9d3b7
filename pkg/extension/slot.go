package extension

import (
	"fmt"

	"github.com/darrencroton/mimic/pkg/arena"
)

// Slot is one halo's extension storage: an opaque handle plus its backing
// words, allocated from the owning tree's arena under the extension-data
// category. A slot is exclusively owned by exactly one tracked halo; copies
// made on inheritance are deep, never aliased.
type Slot struct {
	handle arena.Handle
	values []float64
}

// Valid reports whether the slot is live (allocated and not yet released).
func (s Slot) Valid() bool {
	return s.values != nil
}

// NewSlot allocates a fresh slot with every field at its default.
func (sc *Schema) NewSlot(a *arena.Arena) Slot {
	handle, values := arena.AllocSlice[float64](a, sc.words, arena.CategoryExtensionData)
	slot := Slot{handle: handle, values: values}

	for i, field := range sc.fields {
		sc.fill(slot, i, field.Default)
	}

	return slot
}

// CloneSlot deep-copies a slot for progenitor inheritance, honoring each
// field's inheritance policy.
func (sc *Schema) CloneSlot(a *arena.Arena, src Slot) Slot {
	sc.check(src)

	handle, values := arena.AllocSlice[float64](a, sc.words, arena.CategoryExtensionData)
	clone := Slot{handle: handle, values: values}
	copy(clone.values, src.values)

	for i, field := range sc.fields {
		if field.Inherit == InheritReset {
			sc.fill(clone, i, field.Default)
		}
	}

	return clone
}

// MergeSlot folds src into dst under each field's merge policy and releases
// src. This is the transfer-on-merger disposition of a merged halo's
// extension data; after it returns src is dead.
func (sc *Schema) MergeSlot(a *arena.Arena, dst, src Slot) {
	sc.check(dst)
	sc.check(src)

	for i, field := range sc.fields {
		offset := sc.offsets[i]

		for w := range field.words() {
			switch field.Merge {
			case MergeSum:
				dst.values[offset+w] += src.values[offset+w]
			case MergeMax:
				if src.values[offset+w] > dst.values[offset+w] {
					dst.values[offset+w] = src.values[offset+w]
				}
			case MergeKeep:
			}
		}
	}

	sc.ReleaseSlot(a, src)
}

// ReleaseSlot returns the slot's storage to the arena.
func (sc *Schema) ReleaseSlot(a *arena.Arena, slot Slot) {
	sc.check(slot)
	a.Release(slot.handle)
}

// Get reads a scalar field by index.
func (sc *Schema) Get(slot Slot, field int) float64 {
	sc.check(slot)

	return slot.values[sc.offsets[field]]
}

// Set writes a scalar field by index.
func (sc *Schema) Set(slot Slot, field int, value float64) {
	sc.check(slot)
	slot.values[sc.offsets[field]] = value
}

// Add accumulates onto a scalar field by index.
func (sc *Schema) Add(slot Slot, field int, delta float64) {
	sc.check(slot)
	slot.values[sc.offsets[field]] += delta
}

// GetVector reads a vec3 field by index.
func (sc *Schema) GetVector(slot Slot, field int) [3]float64 {
	sc.check(slot)
	offset := sc.offsets[field]

	return [3]float64{slot.values[offset], slot.values[offset+1], slot.values[offset+2]}
}

// SetVector writes a vec3 field by index.
func (sc *Schema) SetVector(slot Slot, field int, value [3]float64) {
	sc.check(slot)
	offset := sc.offsets[field]
	copy(slot.values[offset:offset+3], value[:])
}

// Values returns the slot's words in schema order for serialization. The
// returned slice aliases the slot; callers must not retain or mutate it.
func (sc *Schema) Values(slot Slot) []float64 {
	sc.check(slot)

	return slot.values
}

func (sc *Schema) fill(slot Slot, field int, value float64) {
	offset := sc.offsets[field]
	for w := range sc.fields[field].words() {
		slot.values[offset+w] = value
	}
}

func (sc *Schema) check(slot Slot) {
	if slot.values == nil {
		panic("extension: use of released or unallocated slot")
	}

	if len(slot.values) != sc.words {
		panic(fmt.Sprintf("extension: slot width %d does not match schema width %d",
			len(slot.values), sc.words))
	}
}
