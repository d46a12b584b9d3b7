// Package tree implements the halo-tracking engine: the recursive
// depth-first traversal of a merger tree's progenitor links, the joining of
// friends-of-friends groups into the workspace buffer, the halo lifecycle
// (creation, inheritance, type transition, merger), and the append-only
// processed history that downstream writers consume.
package tree

import (
	"fmt"
	"log/slog"

	"github.com/darrencroton/mimic/pkg/arena"
	"github.com/darrencroton/mimic/pkg/cosmology"
	"github.com/darrencroton/mimic/pkg/extension"
	"github.com/darrencroton/mimic/pkg/halo"
	"github.com/darrencroton/mimic/pkg/physics"
)

// initialWorkspaceCap seeds the workspace buffer; it grows geometrically
// with the largest FOF group encountered.
const initialWorkspaceCap = 64

// initialHistoryCap seeds the processed history array.
const initialHistoryCap = 256

// Config carries the per-tree context the builder needs.
type Config struct {
	// TreeID identifies the tree within its file, for identity encoding
	// and diagnostics.
	TreeID int64
	// FileNr identifies the tree file, for diagnostics.
	FileNr int32
	// Cosmology supplies redshifts, ages and the critical density.
	Cosmology *cosmology.Cosmology
	// Schema describes the extension slots attached to tracked halos.
	Schema *extension.Schema
	// Modules are the physics modules invoked per FOF-group step, in
	// order.
	Modules []physics.Module
	// Logger receives structured diagnostics; nil falls back to the
	// default logger.
	Logger *slog.Logger
}

// Stats aggregates one tree's build counters.
type Stats struct {
	// HalosTracked is the number of entries appended to the history.
	HalosTracked int64
	// FreshHalos counts halos created without a progenitor.
	FreshHalos int64
	// Mergers counts tracked halos absorbed by a group central.
	Mergers int64
	// GroupsJoined counts FOF-group join+evolve steps.
	GroupsJoined int64
	// MaxDepth is the deepest progenitor recursion reached.
	MaxDepth int
}

// memberSpan records where one group member's tracked halos sit in the
// workspace during a join.
type memberSpan struct {
	member int32
	first  int32
	count  int32
}

// State is the full traversal state of one tree. It is tree-scoped: every
// growable array inside it is allocated from the tree's arena, and Release
// must drain it before the arena's leak check runs.
type State struct {
	cfg Config
	raw []halo.RawHalo

	arena     *arena.Arena
	auxHandle arena.Handle
	aux       []halo.Aux

	workspace  *arena.Slice[halo.Halo]
	history    *arena.Slice[halo.Halo]
	snapCounts *arena.Slice[int32]
	spans      *arena.Slice[memberSpan]

	depth int
	stats Stats
}

// NewState prepares the traversal state for one tree. The raw array is
// owned by the caller (the tree loader) and must stay immutable and alive
// for the state's lifetime.
func NewState(a *arena.Arena, raw []halo.RawHalo, cfg Config) *State {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	auxHandle, aux := arena.AllocSlice[halo.Aux](a, len(raw), arena.CategoryHaloTracking)

	return &State{
		cfg:        cfg,
		raw:        raw,
		arena:      a,
		auxHandle:  auxHandle,
		aux:        aux,
		workspace:  arena.NewSlice[halo.Halo](a, initialWorkspaceCap, arena.CategoryHaloTracking),
		history:    arena.NewSlice[halo.Halo](a, initialHistoryCap, arena.CategoryHaloTracking),
		snapCounts: arena.NewSlice[int32](a, cfg.Cosmology.Snapshots(), arena.CategoryHaloTracking),
		spans:      arena.NewSlice[memberSpan](a, initialWorkspaceCap, arena.CategoryUtility),
	}
}

// History returns the processed history entries accumulated so far. The
// slice is invalidated by further Build calls.
func (s *State) History() []halo.Halo {
	return s.history.Items()
}

// SnapshotCounts returns the number of history entries per snapshot.
func (s *State) SnapshotCounts() []int32 {
	return s.snapCounts.Items()
}

// Aux returns the bookkeeping entry of one raw halo.
func (s *State) Aux(haloNr int32) halo.Aux {
	return s.aux[haloNr]
}

// Stats returns the build counters.
func (s *State) Stats() Stats {
	return s.stats
}

// TreeID returns the configured tree identifier.
func (s *State) TreeID() int64 {
	return s.cfg.TreeID
}

// Schema returns the extension schema in effect for this tree.
func (s *State) Schema() *extension.Schema {
	return s.cfg.Schema
}

// Release drains every arena allocation the state owns, including the
// extension slots of all history entries. The state must not be used
// afterwards.
func (s *State) Release() {
	s.workspace.Reset()

	entries := s.history.Items()
	for i := range entries {
		if entries[i].Extension.Valid() {
			s.cfg.Schema.ReleaseSlot(s.arena, entries[i].Extension)
			entries[i].Extension = extension.Slot{}
		}
	}

	s.history.Release()
	s.workspace.Release()
	s.snapCounts.Release()
	s.spans.Release()
	s.arena.Release(s.auxHandle)
	s.aux = nil
	s.raw = nil
}

func (s *State) fatalf(format string, args ...any) {
	prefix := fmt.Sprintf("tree %d (file %d): ", s.cfg.TreeID, s.cfg.FileNr)
	panic(prefix + fmt.Sprintf(format, args...))
}
