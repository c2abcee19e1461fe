// Package config loads eemfit settings from defaults, a YAML file and the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/cwbudde/eemfit/internal/fit"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values
const (
	EnvThreads  = "EEMFIT_THREADS"
	EnvPopSize  = "EEMFIT_POP_SIZE"
	EnvSeed     = "EEMFIT_SEED"
	EnvDataDir  = "EEMFIT_DATA_DIR"
	EnvLogLevel = "EEMFIT_LOG_LEVEL"
)

// Config is the complete eemfit configuration.
//
// Safe to read concurrently. Not safe to modify after Load returns.
type Config struct {
	// Optimizer controls the guided minimization.
	Optimizer OptimizerConfig `json:"optimizer" yaml:"optimizer"`

	// Local controls the local minimizer.
	Local LocalConfig `json:"local" yaml:"local"`

	// BroadSearch controls the global search used by the "broad" bounds mode.
	BroadSearch BroadSearchConfig `json:"broad_search" yaml:"broad_search"`

	// AtomTypes is the atom classification, Element or ElemBond.
	AtomTypes string `json:"atom_types" yaml:"atom_types"`

	// Store selects where finished runs are persisted.
	Store StoreConfig `json:"store" yaml:"store"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// OptimizerConfig contains the guided minimization settings.
type OptimizerConfig struct {
	Threads           int    `json:"threads" yaml:"threads"`
	PopulationSize    int    `json:"population_size" yaml:"population_size"`
	Seed              int64  `json:"seed" yaml:"seed"`
	Sampler           string `json:"sampler" yaml:"sampler"`
	Bounds            string `json:"bounds" yaml:"bounds"`
	PartialIterations int    `json:"partial_iterations" yaml:"partial_iterations"`
	FinalIterations   int    `json:"final_iterations" yaml:"final_iterations"`
}

// LocalConfig contains the local minimizer settings.
type LocalConfig struct {
	Method       string  `json:"method" yaml:"method"`
	Patience     int     `json:"patience" yaml:"patience"`
	Threshold    float64 `json:"threshold" yaml:"threshold"`
	StepFraction float64 `json:"step_fraction" yaml:"step_fraction"`
	MinStep      float64 `json:"min_step" yaml:"min_step"`
}

// BroadSearchConfig contains the global bounds search settings.
type BroadSearchConfig struct {
	Iterations int     `json:"iterations" yaml:"iterations"`
	Population int     `json:"population" yaml:"population"`
	Margin     float64 `json:"margin" yaml:"margin"`
}

// StoreConfig selects the run store backend.
type StoreConfig struct {
	Backend    string `json:"backend" yaml:"backend"` // "fs" or "sqlite"
	DataDir    string `json:"data_dir" yaml:"data_dir"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := fit.DefaultOptions()
	return Config{
		Optimizer: OptimizerConfig{
			Threads:           runtime.NumCPU(),
			PopulationSize:    opts.PopulationSize,
			Seed:              opts.Seed,
			Sampler:           string(opts.Sampler),
			Bounds:            string(opts.BoundsMode),
			PartialIterations: opts.PartialIterations,
			FinalIterations:   opts.FinalIterations,
		},
		Local: LocalConfig{
			Method:       string(opts.Minimizer.Method),
			Patience:     opts.Minimizer.Convergence.Patience,
			Threshold:    opts.Minimizer.Convergence.Threshold,
			StepFraction: opts.Minimizer.StepFraction,
			MinStep:      opts.Minimizer.MinStep,
		},
		BroadSearch: BroadSearchConfig{
			Iterations: opts.BroadSearch.Iterations,
			Population: opts.BroadSearch.Population,
			Margin:     opts.BroadSearch.Margin,
		},
		AtomTypes: string(chem.ClassifyElemBond),
		Store: StoreConfig{
			Backend: "fs",
			DataDir: "./data",
		},
		LogLevel: "info",
	}
}

// Load merges configuration with priority: env > file > defaults.
// An empty path or a missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv(EnvThreads); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Optimizer.Threads = i
		}
	}
	if v := os.Getenv(EnvPopSize); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Optimizer.PopulationSize = i
		}
	}
	if v := os.Getenv(EnvSeed); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Optimizer.Seed = i
		}
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks the configuration. Every error matches fit.ErrConfig.
func (c Config) Validate() error {
	opts, err := c.Options()
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, err := c.Classification(); err != nil {
		return &fit.ConfigError{Field: "atom_types", Reason: err.Error()}
	}
	if c.BroadSearch.Iterations < 1 {
		return &fit.ConfigError{Field: "broad_search.iterations", Reason: "must be >= 1"}
	}
	if c.BroadSearch.Margin <= 0 || c.BroadSearch.Margin > 1 {
		return &fit.ConfigError{Field: "broad_search.margin", Reason: "must be in (0, 1]"}
	}
	if c.Local.Patience < 1 {
		return &fit.ConfigError{Field: "local.patience", Reason: "must be >= 1"}
	}
	switch c.Store.Backend {
	case "fs", "sqlite":
	default:
		return &fit.ConfigError{Field: "store.backend", Reason: fmt.Sprintf("unknown backend %q", c.Store.Backend)}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &fit.ConfigError{Field: "log_level", Reason: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	return nil
}

// Classification returns the configured atom classification.
func (c Config) Classification() (chem.Classification, error) {
	return chem.ParseClassification(c.AtomTypes)
}

// Options converts the configuration into engine options.
func (c Config) Options() (fit.Options, error) {
	opts := fit.DefaultOptions()
	opts.PopulationSize = c.Optimizer.PopulationSize
	opts.Threads = c.Optimizer.Threads
	opts.Seed = c.Optimizer.Seed
	opts.PartialIterations = c.Optimizer.PartialIterations
	opts.FinalIterations = c.Optimizer.FinalIterations

	switch s := fit.Sampler(c.Optimizer.Sampler); s {
	case fit.SamplerUniform, fit.SamplerLatinHypercube:
		opts.Sampler = s
	default:
		return opts, &fit.ConfigError{Field: "optimizer.sampler", Reason: fmt.Sprintf("unknown sampler %q", s)}
	}
	switch b := fit.BoundsMode(c.Optimizer.Bounds); b {
	case fit.BoundsFixed, fit.BoundsBroadSearch:
		opts.BoundsMode = b
	default:
		return opts, &fit.ConfigError{Field: "optimizer.bounds", Reason: fmt.Sprintf("unknown mode %q", b)}
	}
	switch m := fit.Method(c.Local.Method); m {
	case fit.MethodCoordinate, fit.MethodNelderMead:
		opts.Minimizer.Method = m
	default:
		return opts, &fit.ConfigError{Field: "local.method", Reason: fmt.Sprintf("unknown method %q", m)}
	}

	opts.Minimizer.StepFraction = c.Local.StepFraction
	opts.Minimizer.MinStep = c.Local.MinStep
	opts.Minimizer.Convergence = fit.ConvergenceConfig{
		Enabled:   true,
		Patience:  c.Local.Patience,
		Threshold: c.Local.Threshold,
	}

	opts.BroadSearch.Iterations = c.BroadSearch.Iterations
	opts.BroadSearch.Population = c.BroadSearch.Population
	opts.BroadSearch.Margin = c.BroadSearch.Margin
	opts.BroadSearch.Seed = c.Optimizer.Seed
	return opts, nil
}
