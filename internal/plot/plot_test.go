package plot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darrencroton/mimic/internal/writer"
	"github.com/darrencroton/mimic/pkg/arena"
	"github.com/darrencroton/mimic/pkg/cosmology"
	"github.com/darrencroton/mimic/pkg/extension"
	"github.com/darrencroton/mimic/pkg/halo"
	"github.com/darrencroton/mimic/pkg/identity"
	"github.com/darrencroton/mimic/pkg/tree"
)

func writeCatalogue(t *testing.T, path string) {
	t.Helper()

	cosmo, err := cosmology.New(cosmology.Params{
		HubbleH:      0.73,
		OmegaM:       0.25,
		OmegaLambda:  0.75,
		ParticleMass: 0.086,
		Overdensity:  200,
	}, []float64{0.5, 1.0})
	require.NoError(t, err)

	raw := []halo.RawHalo{
		{SnapNum: 0, Descendant: 1, FirstProgenitor: halo.None, NextProgenitor: halo.None,
			FirstInFOFGroup: 0, NextInFOFGroup: halo.None, Mvir: 50, Len: 500},
		{SnapNum: 1, Descendant: halo.None, FirstProgenitor: 0, NextProgenitor: halo.None,
			FirstInFOFGroup: 1, NextInFOFGroup: halo.None, Mvir: 60, Len: 600},
	}

	schema := extension.Default()
	c, err := writer.NewCatalogue(path, 0, identity.NewEncoder(1), schema.Words())
	require.NoError(t, err)

	a := arena.New()
	state := tree.NewState(a, raw, tree.Config{Cosmology: cosmo, Schema: schema})
	state.BuildAll()

	require.NoError(t, c.WriteTree(a, state))
	require.NoError(t, c.Close())

	state.Release()
	a.AssertNoLeaks()
}

func TestAggregateCounts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "catalogue_0.dat")
	writeCatalogue(t, first)

	data, err := Aggregate([]string{first, first})
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 2}, data.SnapshotCounts)
	assert.Equal(t, 2, data.trees)
	assert.Len(t, data.finalMasses, 2, "one surviving final-snapshot halo per tree")
}

func TestAggregateEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := Aggregate(nil)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestWriteHTMLRendersCharts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	catalogue := filepath.Join(dir, "catalogue_0.dat")
	writeCatalogue(t, catalogue)

	data, err := Aggregate([]string{catalogue})
	require.NoError(t, err)

	out := filepath.Join(dir, "summary.html")
	require.NoError(t, data.WriteHTML(out))

	rendered, err := os.ReadFile(out)
	require.NoError(t, err)

	html := string(rendered)
	assert.True(t, strings.Contains(html, "Tracked halos per snapshot"))
	assert.True(t, strings.Contains(html, "mass function"))
}
