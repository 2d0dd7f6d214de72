// Package config handles configuration loading and management for tractus.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for tractus.
type Config struct {
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Data      DataConfig      `mapstructure:"data"`
	TUI       TUIConfig       `mapstructure:"tui"`
}

// PipelineConfig holds the statistical parameters threaded through a run.
type PipelineConfig struct {
	// Threshold is the mean-skeleton threshold. Lower values (e.g. 0.15)
	// are recommended for cohorts with systematically low FA.
	Threshold float64 `mapstructure:"threshold"`
	// Permutations is the permutation count for the hypothesis test.
	Permutations int `mapstructure:"permutations"`
	// AllMeasures enables the secondary AD/MD/RD analysis path.
	AllMeasures bool `mapstructure:"all_measures"`
}

// SchedulerConfig holds batch-scheduler settings.
type SchedulerConfig struct {
	// SubmitCommand is the cluster submission binary. Empty means run
	// jobs as local processes.
	SubmitCommand string `mapstructure:"submit_command"`
	// WaitCommand blocks until a scheduler job id completes.
	WaitCommand string `mapstructure:"wait_command"`
	// Cores is the CPU reservation per heavy job.
	Cores int `mapstructure:"cores"`
	// MemoryMB is the memory ceiling per heavy job, in megabytes.
	MemoryMB int `mapstructure:"memory_mb"`
	// WallTime is the wall-clock ceiling per heavy job.
	WallTime time.Duration `mapstructure:"wall_time"`
	// SingleHost requests all reserved CPUs on one host.
	SingleHost bool `mapstructure:"single_host"`
}

// DataConfig holds dataset locations.
type DataConfig struct {
	// Root is the subject-data root the enumerator resolves against.
	Root string `mapstructure:"root"`
	// Template is the registration target image.
	Template string `mapstructure:"template"`
}

// TUIConfig holds live status view settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// FillThreshold is the probability cutoff above which a statistical map
// voxel counts as significant before filling. Fixed, not configurable.
const FillThreshold = 0.95

// RangeError reports a numeric parameter outside its accepted range.
type RangeError struct {
	Field string
	Value string
	Want  string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: value %s out of range (want %s)", e.Field, e.Value, e.Want)
}

// Validate checks the numeric range contracts of the pipeline parameters.
func (c *Config) Validate() error {
	if c.Pipeline.Threshold <= 0 || c.Pipeline.Threshold >= 1 {
		return &RangeError{
			Field: "pipeline.threshold",
			Value: fmt.Sprintf("%g", c.Pipeline.Threshold),
			Want:  "0 < threshold < 1",
		}
	}
	if c.Pipeline.Permutations <= 0 {
		return &RangeError{
			Field: "pipeline.permutations",
			Value: fmt.Sprintf("%d", c.Pipeline.Permutations),
			Want:  "> 0",
		}
	}
	if c.Scheduler.Cores <= 0 {
		return &RangeError{
			Field: "scheduler.cores",
			Value: fmt.Sprintf("%d", c.Scheduler.Cores),
			Want:  "> 0",
		}
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (TRACTUS_*)
// 2. Project config (.tractus.yaml in current directory or parent)
// 3. User config (~/.config/tractus/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("TRACTUS")
	v.AutomaticEnv()
	v.BindEnv("scheduler.submit_command", "TRACTUS_SUBMIT")
	v.BindEnv("data.root", "TRACTUS_DATA_ROOT")
	v.BindEnv("data.template", "TRACTUS_TEMPLATE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Data.Root = os.ExpandEnv(cfg.Data.Root)
	cfg.Data.Template = os.ExpandEnv(cfg.Data.Template)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Data.Root = os.ExpandEnv(cfg.Data.Root)
	cfg.Data.Template = os.ExpandEnv(cfg.Data.Template)

	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.threshold", 0.20)
	v.SetDefault("pipeline.permutations", 5000)
	v.SetDefault("pipeline.all_measures", false)

	v.SetDefault("scheduler.submit_command", "")
	v.SetDefault("scheduler.wait_command", "")
	v.SetDefault("scheduler.cores", 4)
	v.SetDefault("scheduler.memory_mb", 8192)
	v.SetDefault("scheduler.wall_time", "24h")
	v.SetDefault("scheduler.single_host", true)

	v.SetDefault("data.root", "")
	v.SetDefault("data.template", "")

	v.SetDefault("tui.refresh_rate", "500ms")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Threshold:    0.20,
			Permutations: 5000,
		},
		Scheduler: SchedulerConfig{
			Cores:      4,
			MemoryMB:   8192,
			WallTime:   24 * time.Hour,
			SingleHost: true,
		},
		TUI: TUIConfig{
			RefreshRate: 500 * time.Millisecond,
		},
	}
}

// getUserConfigDir returns the XDG config directory for tractus.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tractus")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "tractus")
	}
	return filepath.Join(home, ".config", "tractus")
}

// findProjectConfig searches for .tractus.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".tractus.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
