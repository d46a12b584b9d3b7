package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNarrowRegimeFactors(t *testing.T) {
	t.Parallel()

	e := NewEncoder(8)

	assert.Equal(t, FileFactor/TreeFactor, e.TreeCap())
	assert.Equal(t, int64(5)+TreeFactor*3+FileFactor*2, e.Encode(2, 3, 5))
}

func TestWideRegimeShrinksFileFactor(t *testing.T) {
	t.Parallel()

	narrow := NewEncoder(WideFileThreshold - 1)
	wide := NewEncoder(WideFileThreshold)

	assert.Equal(t, narrow.TreeCap()/10, wide.TreeCap())
	assert.Equal(t, int64(5)+TreeFactor*3+(FileFactor/10)*2, wide.Encode(2, 3, 5))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, maxFiles := range []int{64, 50_000} {
		e := NewEncoder(maxFiles)

		for _, fileNr := range []int64{0, 1, int64(maxFiles) - 1} {
			for _, treeID := range []int64{0, 7, e.TreeCap() - 1} {
				for _, haloIdx := range []int64{0, 42, TreeFactor - 1} {
					id := e.Encode(fileNr, treeID, haloIdx)
					f, tr, h := e.Decode(id)

					require.Equal(t, fileNr, f)
					require.Equal(t, treeID, tr)
					require.Equal(t, haloIdx, h)
				}
			}
		}
	}
}

// Distinct triples must never alias, including at the range edges.
func TestUniquenessAcrossComponents(t *testing.T) {
	t.Parallel()

	e := NewEncoder(WideFileThreshold)
	seen := map[int64]bool{}

	for _, fileNr := range []int64{0, 1, WideFileThreshold - 1} {
		for _, treeID := range []int64{0, 1, e.TreeCap() - 1} {
			for _, haloIdx := range []int64{0, 1, TreeFactor - 1} {
				id := e.Encode(fileNr, treeID, haloIdx)

				require.False(t, seen[id], "id %d aliased", id)
				seen[id] = true
			}
		}
	}
}

func TestRangeViolationsAreFatal(t *testing.T) {
	t.Parallel()

	e := NewEncoder(4)

	assert.Panics(t, func() { e.Encode(0, 0, -1) })
	assert.Panics(t, func() { e.Encode(0, 0, TreeFactor) })
	assert.Panics(t, func() { e.Encode(0, -1, 0) })
	assert.Panics(t, func() { e.Encode(0, e.TreeCap(), 0) })
	assert.Panics(t, func() { e.Encode(-1, 0, 0) })
	assert.Panics(t, func() { e.Encode(4, 0, 0) })
}

func TestNewEncoderValidation(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewEncoder(0) })
	assert.Panics(t, func() { NewEncoder(-3) })
	assert.NotPanics(t, func() { NewEncoder(1) })

	// Wide regime caps out where fileNr*fileFactor would overflow int64.
	fileCap := int((1<<63 - 1) / (FileFactor / 10))

	assert.NotPanics(t, func() { NewEncoder(fileCap) })
	assert.Panics(t, func() { NewEncoder(fileCap + 1) })
}
