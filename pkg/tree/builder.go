package tree

import "github.com/darrencroton/mimic/pkg/halo"

// BuildAll builds every halo of the tree in ascending raw-index order,
// skipping halos already folded in by an earlier root's recursion.
func (s *State) BuildAll() {
	for haloNr := range s.raw {
		if !s.aux[haloNr].Done {
			s.Build(int32(haloNr))
		}
	}
}

// Build recursively ensures that every progenitor of the given halo, and of
// every other member of its FOF group, is fully built, then joins and
// evolves the group exactly once. Visitation is depth-first post-order on
// the progenitor relation; each raw halo is visited exactly once.
//
// Go grows goroutine stacks on demand, so the recursive form is kept even
// for trees thousands of snapshots deep.
func (s *State) Build(haloNr int32) {
	s.depth++
	if s.depth > len(s.raw) {
		s.fatalf("progenitor recursion exceeded halo count %d at halo %d: cyclic links", len(s.raw), haloNr)
	}

	if s.depth > s.stats.MaxDepth {
		s.stats.MaxDepth = s.depth
	}

	aux := &s.aux[haloNr]
	if aux.Done {
		s.fatalf("halo %d built twice", haloNr)
	}

	aux.Done = true

	for prog := s.raw[haloNr].FirstProgenitor; prog != halo.None; prog = s.raw[prog].NextProgenitor {
		if !s.aux[prog].Done {
			s.Build(prog)
		}
	}

	// The join must not run before the progenitors of every member of the
	// group are resolved, so the group fans out into each member's
	// progenitor chain before it is marked resolved.
	fofNr := s.raw[haloNr].FirstInFOFGroup
	fofAux := &s.aux[fofNr]

	if fofAux.Group == halo.GroupUnvisited {
		fofAux.Group = halo.GroupResolved

		for member := fofNr; member != halo.None; member = s.raw[member].NextInFOFGroup {
			for prog := s.raw[member].FirstProgenitor; prog != halo.None; prog = s.raw[prog].NextProgenitor {
				if !s.aux[prog].Done {
					s.Build(prog)
				}
			}
		}
	}

	if fofAux.Group == halo.GroupResolved {
		fofAux.Group = halo.GroupJoined
		s.joinAndEvolve(fofNr)
	}

	s.depth--
}
