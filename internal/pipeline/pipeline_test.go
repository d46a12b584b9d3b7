package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darrencroton/mimic/internal/config"
	"github.com/darrencroton/mimic/internal/loader"
	"github.com/darrencroton/mimic/internal/writer"
	"github.com/darrencroton/mimic/pkg/halo"
)

// chainTree is a two-snapshot central plus a satellite that vanishes into
// it, the smallest tree exercising creation, inheritance and a merger.
func chainTree() []halo.RawHalo {
	return []halo.RawHalo{
		{SnapNum: 0, Descendant: 2, FirstProgenitor: halo.None, NextProgenitor: halo.None,
			FirstInFOFGroup: 0, NextInFOFGroup: 1, Mvir: 100, Len: 1000},
		{SnapNum: 0, Descendant: halo.None, FirstProgenitor: halo.None, NextProgenitor: halo.None,
			FirstInFOFGroup: 0, NextInFOFGroup: halo.None, Mvir: 10, Len: 100},
		{SnapNum: 1, Descendant: halo.None, FirstProgenitor: 0, NextProgenitor: halo.None,
			FirstInFOFGroup: 2, NextInFOFGroup: halo.None, Mvir: 110, Len: 1100},
	}
}

func testConfig(t *testing.T, files int) *config.Config {
	t.Helper()

	inputDir := t.TempDir()
	outputDir := t.TempDir()

	for fileNr := range files {
		path := filepath.Join(inputDir, fmt.Sprintf("trees_%d.dat", fileNr))
		require.NoError(t, loader.WriteFile(path, [][]halo.RawHalo{chainTree(), chainTree()}))
	}

	cfg := &config.Config{
		Cosmology: config.Cosmology{
			HubbleH:      0.73,
			OmegaM:       0.25,
			OmegaLambda:  0.75,
			ParticleMass: 0.086,
			Overdensity:  200,
		},
		Snapshots: config.Snapshots{ScaleFactors: []float64{0.5, 1.0}},
		IO: config.IO{
			InputDir:    inputDir,
			InputPrefix: "trees_",
			InputSuffix: ".dat",
			OutputDir:   outputDir,
		},
		Files:    config.Files{FirstFile: 0, LastFile: files - 1},
		Pipeline: config.Pipeline{Workers: 2, OnError: "abort", DebugArena: true},
		Physics:  config.Physics{Modules: []string{"reservoir"}},
	}
	require.NoError(t, cfg.Validate())

	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunProcessesAllFiles(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 3)

	runner, err := New(cfg, quietLogger())
	require.NoError(t, err)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.Files)
	assert.Equal(t, int64(6), summary.Trees)
	assert.Equal(t, int64(18), summary.Halos, "3 history entries per tree")
	assert.Equal(t, int64(12), summary.FreshHalos)
	assert.Equal(t, int64(6), summary.Mergers)
	assert.Positive(t, summary.PeakArena)
	assert.Empty(t, summary.SkippedFiles)

	// One catalogue per file, each decodable and complete.
	for fileNr := range 3 {
		path := filepath.Join(cfg.IO.OutputDir, fmt.Sprintf("catalogue_%d.dat", fileNr))

		r, openErr := writer.OpenReader(path)
		require.NoError(t, openErr)

		blocks, readErr := r.ReadAll()
		require.NoError(t, readErr)
		require.Len(t, blocks, 2)
		assert.Len(t, blocks[0].Records, 3)
		require.NoError(t, r.Close())
	}

	metrics, err := runner.Metrics().Snapshot()
	require.NoError(t, err)
	assert.InDelta(t, 3, metrics["mimic_files_processed_total"], 1e-9)
	assert.InDelta(t, 18, metrics["mimic_halos_tracked_total"], 1e-9)
}

func TestAbortPolicyFailsRunOnBadFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 2)
	corruptFile(t, cfg, 1)

	runner, err := New(cfg, quietLogger())
	require.NoError(t, err)

	_, err = runner.Run(context.Background())
	assert.Error(t, err)
}

func TestSkipFilePolicyContinues(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 3)
	cfg.Pipeline.OnError = "skip-file"
	corruptFile(t, cfg, 1)

	runner, err := New(cfg, quietLogger())
	require.NoError(t, err)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Files)
	assert.Equal(t, []int{1}, summary.SkippedFiles)
}

func TestRunHonorsCancellation(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 2)

	runner, err := New(cfg, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runner.Run(ctx)
	assert.Error(t, err)
}

func TestNewRejectsUnknownModule(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 1)
	cfg.Physics.Modules = []string{"supernovae"}

	_, err := New(cfg, quietLogger())
	assert.Error(t, err)
}

// corruptFile truncates one input file so its header no longer parses.
func corruptFile(t *testing.T, cfg *config.Config, fileNr int) {
	t.Helper()

	path := filepath.Join(cfg.IO.InputDir, fmt.Sprintf("trees_%d.dat", fileNr))
	require.NoError(t, os.WriteFile(path, []byte{1, 0}, 0o600))
}
