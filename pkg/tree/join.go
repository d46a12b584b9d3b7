package tree

import (
	"github.com/darrencroton/mimic/pkg/extension"
	"github.com/darrencroton/mimic/pkg/halo"
	"github.com/darrencroton/mimic/pkg/physics"
	"github.com/darrencroton/mimic/pkg/safeconv"
	"github.com/darrencroton/mimic/pkg/virial"
)

// joinAndEvolve performs the join+evolve step for one FOF group: it gathers
// every member's inherited tracked halos into the workspace, resolves the
// group central, folds in structural mergers, runs the physics modules, and
// commits the surviving workspace to the processed history.
func (s *State) joinAndEvolve(fofNr int32) {
	s.workspace.Reset()
	s.spans.Reset()

	snap := s.raw[fofNr].SnapNum
	deltaT := s.cfg.Cosmology.DeltaT(snap)

	for member := fofNr; member != halo.None; member = s.raw[member].NextInFOFGroup {
		first := s.workspace.Len()
		s.joinMember(member, fofNr, snap, deltaT)
		s.spans.Append(memberSpan{
			member: member,
			first:  safeconv.MustIntToInt32(first),
			count:  safeconv.MustIntToInt32(s.workspace.Len() - first),
		})
	}

	base := safeconv.MustIntToInt32(s.history.Len())

	// The central back-reference is a weak relation resolved once per
	// group; entries store it in history coordinates, which the group's
	// contiguous append makes known ahead of time.
	centralWS := s.resolveCentral()
	centralHist := halo.None

	if centralWS != halo.None {
		centralHist = base + centralWS
	}

	workspace := s.workspace.Items()
	for i := range workspace {
		workspace[i].Central = centralHist
	}

	s.sweepMergers(fofNr, snap, centralWS, centralHist)

	if len(s.cfg.Modules) > 0 && len(workspace) > 0 {
		step := physics.NewGroupStep(snap, deltaT, s.cfg.Schema, workspace)

		for _, module := range s.cfg.Modules {
			err := module.EvolveGroup(step)
			if err != nil {
				s.fatalf("physics module %s failed at snapshot %d: %v", module.Name(), snap, err)
			}
		}
	}

	s.history.Extend(workspace)

	for _, span := range s.spans.Items() {
		aux := &s.aux[span.member]
		aux.HistoryFirst = base + span.first
		aux.HistoryCount = span.count
	}

	s.bumpSnapshotCount(snap, safeconv.MustIntToInt32(len(workspace)))
	s.stats.HalosTracked += int64(len(workspace))
	s.stats.GroupsJoined++
	s.workspace.Reset()
}

// joinMember copies the tracked halos of one member's progenitors into the
// workspace, refreshing virial properties only on entries inherited from
// the most-massive progenitor, and creates a fresh halo when the member has
// no progenitor at all.
func (s *State) joinMember(member, fofNr, snap int32, deltaT float64) {
	raw := &s.raw[member]
	mostMassive := s.mostMassiveProgenitor(member)
	copied := 0

	for prog := raw.FirstProgenitor; prog != halo.None; prog = s.raw[prog].NextProgenitor {
		progAux := s.aux[prog]

		for i := progAux.HistoryFirst; i < progAux.HistoryFirst+progAux.HistoryCount; i++ {
			src := s.history.At(int(i))
			if src.Type == halo.TypeMerged {
				// Merged is terminal; a merged entry is never carried
				// forward.
				continue
			}

			tracked := *src
			tracked.Extension = s.cfg.Schema.CloneSlot(s.arena, src.Extension)
			tracked.SnapNum = snap
			tracked.DeltaT = deltaT
			tracked.RawIndex = member

			s.advance(&tracked, prog == mostMassive, member, fofNr)
			s.workspace.Append(tracked)

			copied++
		}
	}

	if copied == 0 && raw.FirstProgenitor == halo.None {
		s.workspace.Append(s.initHalo(member, fofNr, snap, deltaT))
		s.stats.FreshHalos++
	}
}

// advance applies the lifecycle step to one inherited tracked halo.
func (s *State) advance(tracked *halo.Halo, fromMostMassive bool, member, fofNr int32) {
	if fromMostMassive && tracked.Type <= halo.TypeSatellite {
		// The tracked halo still matches a resolved subhalo; refresh its
		// structural state from the raw record.
		s.refresh(tracked, member)

		if member != fofNr && tracked.Type == halo.TypeCentral {
			s.captureInfall(tracked)
			tracked.SetType(halo.TypeSatellite)
		}

		return
	}

	if tracked.Type <= halo.TypeSatellite {
		// Subhalo identification lost in this snapshot.
		if tracked.Type == halo.TypeCentral {
			s.captureInfall(tracked)
		}

		tracked.SetType(halo.TypeOrphan)
	}

	// Orphans keep their last virial values and coast ballistically.
	s.extrapolate(tracked)
}

// initHalo creates a tracked halo for a raw halo with no progenitor.
func (s *State) initHalo(member, fofNr, snap int32, deltaT float64) halo.Halo {
	tracked := halo.Halo{
		SnapNum:     snap,
		RawIndex:    member,
		Central:     halo.None,
		MergeTarget: halo.None,
		MergeSnap:   halo.None,
		MergeEntry:  halo.None,
		DeltaT:      deltaT,
		Extension:   s.cfg.Schema.NewSlot(s.arena),
	}

	if member != fofNr {
		tracked.Type = halo.TypeSatellite
	}

	s.refresh(&tracked, member)
	s.captureInfall(&tracked)

	return tracked
}

// refresh updates a tracked halo's structural state from its current raw
// record. Virial properties are only recomputed when the raw halo is
// physically valid; degenerate records retain the previous values.
func (s *State) refresh(tracked *halo.Halo, member int32) {
	raw := &s.raw[member]

	tracked.Len = raw.Len
	tracked.Vmax = float64(raw.Vmax)
	tracked.VelDisp = float64(raw.VelDisp)

	for i := range 3 {
		tracked.Pos[i] = float64(raw.Pos[i])
		tracked.Vel[i] = float64(raw.Vel[i])
		tracked.Spin[i] = float64(raw.Spin[i])
	}

	if virial.Valid(raw) {
		tracked.Mvir = virial.Mass(raw, s.cfg.Cosmology)
		tracked.Rvir = virial.Radius(raw, s.cfg.Cosmology)
		tracked.Vvir = virial.Velocity(raw, s.cfg.Cosmology)
	}
}

// captureInfall fixes the halo's current virial values as its infall
// reference. Called at creation and at the step a halo leaves TypeCentral.
func (s *State) captureInfall(tracked *halo.Halo) {
	tracked.InfallMvir = tracked.Mvir
	tracked.InfallRvir = tracked.Rvir
	tracked.InfallVvir = tracked.Vvir
	tracked.InfallSnap = tracked.SnapNum
}

// extrapolate advances an orphan's position ballistically; there is no raw
// subhalo left to read from.
func (s *State) extrapolate(tracked *halo.Halo) {
	for i := range 3 {
		tracked.Pos[i] += tracked.Vel[i] * tracked.DeltaT
	}
}

// mostMassiveProgenitor selects the progenitor carrying the main branch:
// highest virial mass, then highest particle count, then lowest raw index.
func (s *State) mostMassiveProgenitor(member int32) int32 {
	best := halo.None

	var bestMass float64

	var bestLen int32

	for prog := s.raw[member].FirstProgenitor; prog != halo.None; prog = s.raw[prog].NextProgenitor {
		mass := virial.Mass(&s.raw[prog], s.cfg.Cosmology)

		var better bool

		switch {
		case best == halo.None:
			better = true
		case mass != bestMass:
			better = mass > bestMass
		case s.raw[prog].Len != bestLen:
			better = s.raw[prog].Len > bestLen
		default:
			better = prog < best
		}

		if better {
			best = prog
			bestMass = mass
			bestLen = s.raw[prog].Len
		}
	}

	return best
}

// resolveCentral returns the workspace index of the group's central entry:
// the first member's tracked halo that still matches a subhalo.
func (s *State) resolveCentral() int32 {
	if s.spans.Len() == 0 {
		return halo.None
	}

	span := s.spans.At(0)
	workspace := s.workspace.Items()

	for i := span.first; i < span.first+span.count; i++ {
		if workspace[i].Type <= halo.TypeSatellite {
			return i
		}
	}

	return halo.None
}

// sweepMergers folds in structural mergers: any tracked halo whose owning
// raw halo has no descendant in this snapshot is absent from the workspace
// and is therefore recorded as merged into this group's central. Its
// extension slot is transferred to the central under the schema's per-field
// merge policies (or released when the group has no central), and the
// merger is audit-logged.
func (s *State) sweepMergers(fofNr, snap, centralWS, centralHist int32) {
	workspace := s.workspace.Items()
	history := s.history.Items()

	for _, span := range s.spans.Items() {
		for prog := s.raw[span.member].FirstProgenitor; prog != halo.None; prog = s.raw[prog].NextProgenitor {
			for q := s.raw[prog].FirstInFOFGroup; q != halo.None; q = s.raw[q].NextInFOFGroup {
				if s.raw[q].Descendant != halo.None {
					continue
				}

				qAux := s.aux[q]

				for i := qAux.HistoryFirst; i < qAux.HistoryFirst+qAux.HistoryCount; i++ {
					entry := &history[i]
					if entry.Type == halo.TypeMerged {
						continue
					}

					entry.SetType(halo.TypeMerged)
					entry.MergeTarget = fofNr
					entry.MergeSnap = snap
					entry.MergeEntry = centralHist

					if entry.Extension.Valid() {
						if centralWS != halo.None {
							s.cfg.Schema.MergeSlot(s.arena, workspace[centralWS].Extension, entry.Extension)
						} else {
							s.cfg.Schema.ReleaseSlot(s.arena, entry.Extension)
						}

						entry.Extension = extension.Slot{}
					}

					s.stats.Mergers++
					s.cfg.Logger.Debug("halo merged",
						"tree", s.cfg.TreeID,
						"halo", q,
						"target", fofNr,
						"snapshot", snap)
				}
			}
		}
	}
}

func (s *State) bumpSnapshotCount(snap, count int32) {
	for s.snapCounts.Len() <= int(snap) {
		s.snapCounts.Append(0)
	}

	s.snapCounts.Items()[snap] += count
}
