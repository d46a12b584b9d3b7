// Package virial computes virial properties of raw halos against a
// cosmology context. All functions are pure and stateless.
//
// The numeric contract inverts M = (4/3)π·Δc·ρcrit·R³ for the radius and
// derives the circular velocity from V = √(G·M/R). Results are NaN/Inf-free
// for any physically valid halo (positive mass or positive particle count).
// Calling any of these on a zero-particle, zero-mass halo is undefined;
// callers must guard with Valid.
package virial

import (
	"math"

	"github.com/darrencroton/mimic/pkg/cosmology"
	"github.com/darrencroton/mimic/pkg/halo"
)

// Valid reports whether the raw halo carries enough information for the
// virial functions to be defined.
func Valid(raw *halo.RawHalo) bool {
	return raw.Mvir > 0 || raw.Len > 0
}

// Mass returns the halo's virial mass in internal units: the halo finder's
// estimate when present, otherwise particle count times particle mass.
func Mass(raw *halo.RawHalo, cosmo *cosmology.Cosmology) float64 {
	if raw.Mvir > 0 {
		return float64(raw.Mvir)
	}

	return float64(raw.Len) * cosmo.ParticleMass
}

// Radius returns the virial radius implied by the halo's mass and the
// critical density at its snapshot's redshift.
func Radius(raw *halo.RawHalo, cosmo *cosmology.Cosmology) float64 {
	mass := Mass(raw, cosmo)
	rhoCrit := cosmo.CriticalDensity(cosmo.Redshift(raw.SnapNum))

	return math.Cbrt(3 * mass / (4 * math.Pi * cosmo.Overdensity * rhoCrit))
}

// Velocity returns the circular velocity at the virial radius. The radius is
// derived internally from the same raw halo, so the two are always
// consistent.
func Velocity(raw *halo.RawHalo, cosmo *cosmology.Cosmology) float64 {
	mass := Mass(raw, cosmo)
	radius := Radius(raw, cosmo)

	return math.Sqrt(cosmology.Gravity * mass / radius)
}
