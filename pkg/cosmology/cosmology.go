// Package cosmology supplies the background-cosmology context the virial
// property engine and the tree builder evaluate halos against: density
// parameters, the critical density as a function of redshift, and the cosmic
// age of each simulation snapshot.
//
// Internal units follow the simulation convention: lengths in Mpc/h, masses
// in 1e10 Msun/h, velocities in km/s. Time is therefore measured in
// Mpc/(km/s) ≈ 0.98 Gyr/h.
package cosmology

import (
	"fmt"
	"math"
)

// Gravity is Newton's constant in internal units
// ((Mpc/h)·(km/s)²/(1e10 Msun/h)).
const Gravity = 43007.1

// hubbleInternal is 100 km/s/Mpc expressed in internal units.
const hubbleInternal = 0.1

// ageIntegrationSteps is the Simpson-rule resolution for the cosmic age
// integral. Must be even.
const ageIntegrationSteps = 1000

// Params holds the configured cosmological parameters.
type Params struct {
	// HubbleH is the dimensionless Hubble parameter h.
	HubbleH float64
	// OmegaM is the matter density parameter at z=0.
	OmegaM float64
	// OmegaLambda is the dark-energy density parameter at z=0.
	OmegaLambda float64
	// ParticleMass is the simulation particle mass in 1e10 Msun/h.
	ParticleMass float64
	// Overdensity is the virial overdensity threshold Δc relative to the
	// critical density.
	Overdensity float64
}

// Cosmology combines the configured parameters with the snapshot table of
// one simulation. It is immutable after construction and safe to share
// across workers.
type Cosmology struct {
	Params

	scaleFactors []float64
	redshifts    []float64
	ages         []float64
}

// New builds a cosmology context from parameters and the ordered list of
// snapshot scale factors (ascending, each in (0, 1]).
func New(params Params, scaleFactors []float64) (*Cosmology, error) {
	if len(scaleFactors) == 0 {
		return nil, fmt.Errorf("cosmology: empty snapshot scale-factor list")
	}

	c := &Cosmology{
		Params:       params,
		scaleFactors: make([]float64, len(scaleFactors)),
		redshifts:    make([]float64, len(scaleFactors)),
		ages:         make([]float64, len(scaleFactors)),
	}

	previous := 0.0

	for i, a := range scaleFactors {
		if a <= previous || a > 1 {
			return nil, fmt.Errorf("cosmology: scale factor %g at snapshot %d is not ascending in (0,1]", a, i)
		}

		c.scaleFactors[i] = a
		c.redshifts[i] = 1/a - 1
		c.ages[i] = c.ageAt(a)
		previous = a
	}

	return c, nil
}

// Snapshots returns the number of snapshots in the table.
func (c *Cosmology) Snapshots() int {
	return len(c.scaleFactors)
}

// Redshift returns the redshift of the given snapshot.
func (c *Cosmology) Redshift(snapshot int32) float64 {
	return c.redshifts[c.checkSnapshot(snapshot)]
}

// Age returns the cosmic age of the given snapshot in internal time units.
func (c *Cosmology) Age(snapshot int32) float64 {
	return c.ages[c.checkSnapshot(snapshot)]
}

// DeltaT returns the time elapsed between the given snapshot and its
// predecessor. For the first snapshot it returns the age itself.
func (c *Cosmology) DeltaT(snapshot int32) float64 {
	idx := c.checkSnapshot(snapshot)
	if idx == 0 {
		return c.ages[0]
	}

	return c.ages[idx] - c.ages[idx-1]
}

// HubbleAt returns H(z) in internal units.
func (c *Cosmology) HubbleAt(redshift float64) float64 {
	zplus1 := 1 + redshift
	hubble0 := hubbleInternal * c.HubbleH
	omegaK := 1 - c.OmegaM - c.OmegaLambda

	return hubble0 * math.Sqrt(c.OmegaLambda+omegaK*zplus1*zplus1+c.OmegaM*zplus1*zplus1*zplus1)
}

// CriticalDensity returns ρcrit(z) = 3H(z)²/8πG in internal units
// (1e10 Msun/h per (Mpc/h)³).
func (c *Cosmology) CriticalDensity(redshift float64) float64 {
	hubble := c.HubbleAt(redshift)

	return 3 * hubble * hubble / (8 * math.Pi * Gravity)
}

// ageAt integrates dt = da/(a·H(a)) from a≈0 to the given scale factor with
// the composite Simpson rule.
func (c *Cosmology) ageAt(scaleFactor float64) float64 {
	integrand := func(a float64) float64 {
		return 1 / (a * c.HubbleAt(1/a-1))
	}

	// The integrand diverges slowly toward a=0; starting just above zero
	// loses a negligible slice of cosmic time for any snapshot table.
	lower := scaleFactor * 1e-8
	step := (scaleFactor - lower) / ageIntegrationSteps
	sum := integrand(lower) + integrand(scaleFactor)

	for i := 1; i < ageIntegrationSteps; i++ {
		a := lower + float64(i)*step
		if i%2 == 1 {
			sum += 4 * integrand(a)
		} else {
			sum += 2 * integrand(a)
		}
	}

	return sum * step / 3
}

func (c *Cosmology) checkSnapshot(snapshot int32) int {
	if snapshot < 0 || int(snapshot) >= len(c.scaleFactors) {
		panic(fmt.Sprintf("cosmology: snapshot %d outside table of %d entries",
			snapshot, len(c.scaleFactors)))
	}

	return int(snapshot)
}
