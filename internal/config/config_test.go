package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Cosmology: Cosmology{
			HubbleH:      DefaultHubbleH,
			OmegaM:       DefaultOmegaM,
			OmegaLambda:  DefaultOmegaLambda,
			ParticleMass: DefaultParticleMass,
			Overdensity:  DefaultOverdensity,
		},
		Snapshots: Snapshots{ScaleFactors: []float64{0.5, 1.0}},
		IO:        IO{InputDir: "/in", OutputDir: "/out", InputPrefix: "trees_", InputSuffix: ".dat"},
		Files:     Files{FirstFile: 0, LastFile: 7},
		Pipeline:  Pipeline{Workers: 2, OnError: "abort"},
	}
}

func TestValidateAccepts(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	// MaxFiles defaults to one past the last file.
	assert.Equal(t, 8, cfg.Files.MaxFiles)
}

func TestValidateRequiredFields(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.IO.InputDir = ""
	assert.ErrorIs(t, cfg.Validate(), ErrNoInput)

	cfg = validConfig()
	cfg.IO.OutputDir = ""
	assert.ErrorIs(t, cfg.Validate(), ErrNoOutput)

	cfg = validConfig()
	cfg.Snapshots.ScaleFactors = nil
	assert.ErrorIs(t, cfg.Validate(), ErrNoSnapshots)
}

func TestValidateFileRange(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Files.FirstFile = -1
	assert.ErrorIs(t, cfg.Validate(), ErrBadFileRange)

	cfg = validConfig()
	cfg.Files.LastFile = cfg.Files.FirstFile - 1
	assert.ErrorIs(t, cfg.Validate(), ErrBadFileRange)

	cfg = validConfig()
	cfg.Files.MaxFiles = cfg.Files.LastFile
	assert.ErrorIs(t, cfg.Validate(), ErrBadFileRange)
}

func TestValidatePipeline(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Pipeline.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Pipeline.OnError = "retry"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Pipeline.OnError = "skip-file"
	assert.NoError(t, cfg.Validate())
}

func TestValidateCosmology(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Cosmology.HubbleH = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Cosmology.Overdensity = -1
	assert.Error(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
cosmology:
  hubble_h: 0.7
snapshots:
  scale_factors: [0.25, 0.5, 1.0]
io:
  input_dir: /data/trees
  output_dir: /data/out
  compress: true
files:
  first_file: 0
  last_file: 3
pipeline:
  workers: 4
  on_error: skip-file
physics:
  modules: [reservoir]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.7, cfg.Cosmology.HubbleH, 1e-12)
	assert.InDelta(t, DefaultOmegaM, cfg.Cosmology.OmegaM, 1e-12, "unset keys fall back to defaults")
	assert.Equal(t, []float64{0.25, 0.5, 1.0}, cfg.Snapshots.ScaleFactors)
	assert.True(t, cfg.IO.Compress)
	assert.Equal(t, "trees_", cfg.IO.InputPrefix)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "skip-file", cfg.Pipeline.OnError)
	assert.Equal(t, []string{"reservoir"}, cfg.Physics.Modules)
	assert.Equal(t, 4, cfg.Files.MaxFiles)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("io:\n  input_dir: /only/input\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
