// Package halo defines the data model of the halo-tracking engine: the
// immutable raw halo records read from a merger-tree file, the per-halo
// bookkeeping entries, and the tracked halo entity that accumulates in the
// processed history.
package halo

import (
	"fmt"

	"github.com/darrencroton/mimic/pkg/extension"
)

// None is the sentinel for "no link" in every index-valued field.
const None int32 = -1

// Type classifies a tracked halo within its friends-of-friends group.
type Type uint8

// Tracked halo types. The numeric values are part of the output format.
const (
	// TypeCentral is the primary halo of its FOF group.
	TypeCentral Type = iota
	// TypeSatellite is a subhalo orbiting inside a FOF group.
	TypeSatellite
	// TypeOrphan is a satellite whose subhalo is no longer resolved; its
	// position and velocity are extrapolated.
	TypeOrphan
	// TypeMerged marks a halo that has been absorbed by its group's
	// central. Merged is terminal.
	TypeMerged
)

var typeNames = [...]string{"central", "satellite", "orphan", "merged"}

// String returns the type's canonical name.
func (t Type) String() string {
	if int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", uint8(t))
	}

	return typeNames[t]
}

// CanTransition reports whether a tracked halo may move from t to next.
// The legal moves are 0→1, 0→2, 1→2 and any→3; staying put is always
// allowed except out of TypeMerged, which is terminal.
func (t Type) CanTransition(next Type) bool {
	if t == TypeMerged {
		return false
	}

	if next == t || next == TypeMerged {
		return true
	}

	switch t {
	case TypeCentral:
		return next == TypeSatellite || next == TypeOrphan
	case TypeSatellite:
		return next == TypeOrphan
	default:
		return false
	}
}

// RawHalo is one immutable halo record of a merger tree, one per halo per
// snapshot. All links are indices into the same tree's raw array, or None.
// The progenitor links form a forest; FOF membership is a list per group
// headed by FirstInFOFGroup and threaded through NextInFOFGroup.
type RawHalo struct {
	Descendant      int32
	FirstProgenitor int32
	NextProgenitor  int32
	FirstInFOFGroup int32
	NextInFOFGroup  int32

	// Len is the particle count.
	Len int32
	// Mvir is the raw virial mass estimate from the halo finder; when it
	// is not positive the mass falls back to Len times the particle mass.
	Mvir float32

	Pos  [3]float32
	Vel  [3]float32
	Spin [3]float32

	VelDisp float32
	Vmax    float32

	MostBoundID int64
	SnapNum     int32
}

// Aux is the per-raw-halo bookkeeping entry for one tree traversal.
type Aux struct {
	// Done records that the raw halo has been folded into the output.
	// It transitions false→true exactly once.
	Done bool
	// Group is the FOF-group join state, meaningful only on the index of
	// a group's first halo. It is distinct from the per-halo Done flag.
	Group GroupState
	// HistoryFirst and HistoryCount locate the tracked halos attached to
	// this raw halo inside the processed history array.
	HistoryFirst int32
	HistoryCount int32
}

// GroupState is the per-FOF-group join progress marker.
type GroupState uint8

// FOF group join states, advanced strictly in order.
const (
	// GroupUnvisited means no member's progenitors have been resolved yet.
	GroupUnvisited GroupState = iota
	// GroupResolved means every member's progenitor subtree is built.
	GroupResolved
	// GroupJoined means the group has been joined and evolved.
	GroupJoined
)

// Halo is the tracked, mutable entity that lives in the workspace buffer
// during one evolutionary step and then becomes an immutable entry of the
// processed history array.
type Halo struct {
	// SnapNum is the snapshot this entry describes.
	SnapNum int32
	// Type is the halo's current classification.
	Type Type
	// RawIndex is the raw halo currently hosting this tracked halo.
	RawIndex int32
	// Len is the particle count inherited from the hosting raw halo.
	Len int32

	Pos  [3]float64
	Vel  [3]float64
	Spin [3]float64

	// Virial properties, refreshed only along the most-massive-progenitor
	// branch.
	Mvir    float64
	Rvir    float64
	Vvir    float64
	VelDisp float64
	Vmax    float64

	// Infall values are the virial properties captured at the last step
	// this halo was a central, fixed thereafter.
	InfallMvir float64
	InfallRvir float64
	InfallVvir float64
	InfallSnap int32

	// Central is the workspace/history index of this halo's group central,
	// resolved once per FOF group. It is a weak reference, not ownership.
	Central int32

	// MergeTarget is the raw index of the FOF-group central this halo
	// merged into, and MergeSnap the snapshot of the merger. Both are None
	// unless Type is TypeMerged.
	MergeTarget int32
	MergeSnap   int32
	// MergeEntry is the processed-history index of the absorbing central's
	// tracked entry, resolved at merger time so the output writer can emit
	// a direct reference. None unless Type is TypeMerged.
	MergeEntry int32

	// DeltaT is the time elapsed since the previous snapshot, in internal
	// time units.
	DeltaT float64

	// Extension is the opaque, exclusively owned property slot populated
	// by the physics module layer.
	Extension extension.Slot
}

// SetType transitions the halo's type, enforcing the legality table. An
// illegal transition is a programmer error and panics.
func (h *Halo) SetType(next Type) {
	if !h.Type.CanTransition(next) {
		panic(fmt.Sprintf("halo: illegal type transition %s→%s (raw index %d, snapshot %d)",
			h.Type, next, h.RawIndex, h.SnapNum))
	}

	h.Type = next
}
