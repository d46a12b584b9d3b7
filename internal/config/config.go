// Package config defines the run configuration and its loader.
package config

import (
	"errors"
	"fmt"
)

// Defaults applied when neither the config file nor the environment sets a
// value.
const (
	DefaultHubbleH      = 0.73
	DefaultOmegaM       = 0.25
	DefaultOmegaLambda  = 0.75
	DefaultParticleMass = 0.086 // 1e10 Msun/h
	DefaultOverdensity  = 200.0

	DefaultWorkers     = 1
	DefaultOnError     = "abort"
	DefaultInputSuffix = ".dat"
)

// Sentinel validation errors.
var (
	ErrNoInput      = errors.New("config: io.input_dir is required")
	ErrNoOutput     = errors.New("config: io.output_dir is required")
	ErrNoSnapshots  = errors.New("config: snapshots.scale_factors is required")
	ErrBadFileRange = errors.New("config: files.first_file/last_file range is invalid")
)

// Config is the full run configuration.
type Config struct {
	Cosmology Cosmology `mapstructure:"cosmology"`
	Snapshots Snapshots `mapstructure:"snapshots"`
	IO        IO        `mapstructure:"io"`
	Files     Files     `mapstructure:"files"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Extension Extension `mapstructure:"extension"`
	Physics   Physics   `mapstructure:"physics"`
}

// Cosmology configures the background cosmology.
type Cosmology struct {
	HubbleH      float64 `mapstructure:"hubble_h"`
	OmegaM       float64 `mapstructure:"omega_m"`
	OmegaLambda  float64 `mapstructure:"omega_lambda"`
	ParticleMass float64 `mapstructure:"particle_mass"`
	Overdensity  float64 `mapstructure:"overdensity"`
}

// Snapshots configures the simulation snapshot table.
type Snapshots struct {
	// ScaleFactors is the ascending list of snapshot scale factors.
	ScaleFactors []float64 `mapstructure:"scale_factors"`
}

// IO configures file locations.
type IO struct {
	// InputDir holds the tree files, named <prefix><fileNr><suffix>.
	InputDir    string `mapstructure:"input_dir"`
	InputPrefix string `mapstructure:"input_prefix"`
	InputSuffix string `mapstructure:"input_suffix"`
	// OutputDir receives one catalogue per input file.
	OutputDir string `mapstructure:"output_dir"`
	// Compress writes lz4-compressed catalogues.
	Compress bool `mapstructure:"compress"`
}

// Files configures the file range and the identity-encoding regime.
type Files struct {
	FirstFile int `mapstructure:"first_file"`
	LastFile  int `mapstructure:"last_file"`
	// MaxFiles is the dataset-wide file count that selects the identity
	// encoder's regime; defaults to LastFile+1.
	MaxFiles int `mapstructure:"max_files"`
}

// Pipeline configures the driver.
type Pipeline struct {
	Workers int `mapstructure:"workers"`
	// OnError is "abort" (fail the run) or "skip-file" (log and continue
	// with the remaining files).
	OnError string `mapstructure:"on_error"`
	// DebugArena enables guard regions around arena allocations.
	DebugArena bool `mapstructure:"debug_arena"`
}

// Extension configures the halo extension slots.
type Extension struct {
	// SchemaPath points at a YAML schema; empty selects the built-in
	// schema.
	SchemaPath string `mapstructure:"schema_path"`
}

// Physics selects the physics modules to run, in order.
type Physics struct {
	Modules []string `mapstructure:"modules"`
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.IO.InputDir == "" {
		return ErrNoInput
	}

	if c.IO.OutputDir == "" {
		return ErrNoOutput
	}

	if len(c.Snapshots.ScaleFactors) == 0 {
		return ErrNoSnapshots
	}

	if c.Files.FirstFile < 0 || c.Files.LastFile < c.Files.FirstFile {
		return fmt.Errorf("%w: [%d,%d]", ErrBadFileRange, c.Files.FirstFile, c.Files.LastFile)
	}

	if c.Files.MaxFiles == 0 {
		c.Files.MaxFiles = c.Files.LastFile + 1
	}

	if c.Files.MaxFiles <= c.Files.LastFile {
		return fmt.Errorf("%w: max_files %d does not cover last_file %d",
			ErrBadFileRange, c.Files.MaxFiles, c.Files.LastFile)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("config: pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}

	if c.Pipeline.OnError != "abort" && c.Pipeline.OnError != "skip-file" {
		return fmt.Errorf("config: pipeline.on_error must be abort or skip-file, got %q", c.Pipeline.OnError)
	}

	if c.Cosmology.Overdensity <= 0 || c.Cosmology.HubbleH <= 0 {
		return fmt.Errorf("config: non-physical cosmology (h=%g, overdensity=%g)",
			c.Cosmology.HubbleH, c.Cosmology.Overdensity)
	}

	return nil
}
