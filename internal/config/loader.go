package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".mimic"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for mimic settings.
const envPrefix = "MIMIC"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Load loads configuration from file, env vars, and defaults. If configPath
// is non-empty it is used as the explicit config file path; otherwise the
// config file is searched in CWD and $HOME. A missing config file is not an
// error; defaults and the environment are used.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("cosmology.hubble_h", DefaultHubbleH)
	viperCfg.SetDefault("cosmology.omega_m", DefaultOmegaM)
	viperCfg.SetDefault("cosmology.omega_lambda", DefaultOmegaLambda)
	viperCfg.SetDefault("cosmology.particle_mass", DefaultParticleMass)
	viperCfg.SetDefault("cosmology.overdensity", DefaultOverdensity)

	viperCfg.SetDefault("snapshots.scale_factors", []float64{})

	viperCfg.SetDefault("io.input_prefix", "trees_")
	viperCfg.SetDefault("io.input_suffix", DefaultInputSuffix)
	viperCfg.SetDefault("io.compress", false)

	viperCfg.SetDefault("files.first_file", 0)
	viperCfg.SetDefault("files.last_file", 0)
	viperCfg.SetDefault("files.max_files", 0)

	viperCfg.SetDefault("pipeline.workers", DefaultWorkers)
	viperCfg.SetDefault("pipeline.on_error", DefaultOnError)
	viperCfg.SetDefault("pipeline.debug_arena", false)

	viperCfg.SetDefault("extension.schema_path", "")
	viperCfg.SetDefault("physics.modules", []string{"reservoir"})
}
