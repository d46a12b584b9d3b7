package halo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "central", TypeCentral.String())
	assert.Equal(t, "satellite", TypeSatellite.String())
	assert.Equal(t, "orphan", TypeOrphan.String())
	assert.Equal(t, "merged", TypeMerged.String())
	assert.Equal(t, "type(9)", Type(9).String())
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	legal := map[[2]Type]bool{
		{TypeCentral, TypeCentral}:     true,
		{TypeCentral, TypeSatellite}:   true,
		{TypeCentral, TypeOrphan}:      true,
		{TypeCentral, TypeMerged}:      true,
		{TypeSatellite, TypeSatellite}: true,
		{TypeSatellite, TypeOrphan}:    true,
		{TypeSatellite, TypeMerged}:    true,
		{TypeOrphan, TypeOrphan}:       true,
		{TypeOrphan, TypeMerged}:       true,
	}

	types := []Type{TypeCentral, TypeSatellite, TypeOrphan, TypeMerged}

	for _, from := range types {
		for _, to := range types {
			assert.Equal(t, legal[[2]Type{from, to}], from.CanTransition(to),
				"%s to %s", from, to)
		}
	}
}

// A satellite whose subhalo becomes first in its group must not be promoted
// back to central.
func TestSatelliteNeverRegainsCentral(t *testing.T) {
	t.Parallel()

	assert.False(t, TypeSatellite.CanTransition(TypeCentral))
	assert.False(t, TypeOrphan.CanTransition(TypeCentral))
	assert.False(t, TypeOrphan.CanTransition(TypeSatellite))
}

func TestMergedIsTerminal(t *testing.T) {
	t.Parallel()

	for _, to := range []Type{TypeCentral, TypeSatellite, TypeOrphan, TypeMerged} {
		assert.False(t, TypeMerged.CanTransition(to), "merged to %s", to)
	}
}

func TestSetTypeEnforcesLegality(t *testing.T) {
	t.Parallel()

	h := &Halo{Type: TypeCentral}
	h.SetType(TypeSatellite)

	assert.Equal(t, TypeSatellite, h.Type)
	assert.Panics(t, func() { h.SetType(TypeCentral) })

	h.SetType(TypeMerged)

	assert.Panics(t, func() { h.SetType(TypeOrphan) })
}
