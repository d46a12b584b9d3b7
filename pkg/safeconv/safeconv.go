// Package safeconv provides checked integer conversions that panic on
// overflow. Use only where a bounds violation is logically impossible and
// therefore a programmer error.
package safeconv

import "math"

// MustIntToInt32 converts int to int32, panics on bounds violation.
func MustIntToInt32(v int) int32 {
	if v < math.MinInt32 || v > math.MaxInt32 {
		panic("safeconv: int to int32 out of bounds")
	}

	return int32(v)
}
