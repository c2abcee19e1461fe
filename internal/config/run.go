package config

import "github.com/cwbudde/eemfit/internal/store"

// Overlay returns c with the non-zero settings of a run request applied.
// The result still has to be validated.
func (c Config) Overlay(rc store.RunConfig) Config {
	if rc.AtomTypes != "" {
		c.AtomTypes = rc.AtomTypes
	}
	if rc.PopulationSize != 0 {
		c.Optimizer.PopulationSize = rc.PopulationSize
	}
	if rc.Threads != 0 {
		c.Optimizer.Threads = rc.Threads
	}
	if rc.Seed != 0 {
		c.Optimizer.Seed = rc.Seed
	}
	if rc.Sampler != "" {
		c.Optimizer.Sampler = rc.Sampler
	}
	if rc.Bounds != "" {
		c.Optimizer.Bounds = rc.Bounds
	}
	if rc.Method != "" {
		c.Local.Method = rc.Method
	}
	if rc.PartialIterations != 0 {
		c.Optimizer.PartialIterations = rc.PartialIterations
	}
	if rc.FinalIterations != 0 {
		c.Optimizer.FinalIterations = rc.FinalIterations
	}
	return c
}

// RunConfig records the settings of c for a run on the given inputs.
func (c Config) RunConfig(sdfPath, chgPath string) store.RunConfig {
	cls, _ := c.Classification()
	return store.RunConfig{
		SDFPath:           sdfPath,
		CHGPath:           chgPath,
		AtomTypes:         string(cls),
		PopulationSize:    c.Optimizer.PopulationSize,
		Threads:           c.Optimizer.Threads,
		Seed:              c.Optimizer.Seed,
		Sampler:           c.Optimizer.Sampler,
		Bounds:            c.Optimizer.Bounds,
		Method:            c.Local.Method,
		PartialIterations: c.Optimizer.PartialIterations,
		FinalIterations:   c.Optimizer.FinalIterations,
	}
}
