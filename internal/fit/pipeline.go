package fit

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/sourcegraph/conc/pool"
)

// Phase is a state of the guided minimization
type Phase string

const (
	PhaseInit                Phase = "init"
	PhasePopulationGenerated Phase = "population_generated"
	PhaseEvaluated           Phase = "evaluated"
	PhasePartiallyMinimized  Phase = "partially_minimized"
	PhaseBestSelected        Phase = "best_selected"
	PhaseFinalRefined        Phase = "final_refined"
	PhaseDone                Phase = "done"
)

var phaseOrder = []Phase{
	PhaseInit,
	PhasePopulationGenerated,
	PhaseEvaluated,
	PhasePartiallyMinimized,
	PhaseBestSelected,
	PhaseFinalRefined,
	PhaseDone,
}

// PhaseEvent is emitted after every transition
type PhaseEvent struct {
	Phase        Phase
	PopulationID string
	// Best is the current best fit, zero before BestSelected
	Best      Stats
	Minimized int
	Elapsed   time.Duration
}

// Options configure a guided minimization run
type Options struct {
	PopulationSize    int
	Threads           int
	Seed              int64
	Sampler           Sampler
	BoundsMode        BoundsMode
	PartialIterations int // Local search budget for promising candidates
	FinalIterations   int // Local search budget for the best candidate
	Minimizer         MinimizerConfig
	BroadSearch       BroadSearchConfig
}

// DefaultOptions returns a configuration suitable for small training sets
func DefaultOptions() Options {
	return Options{
		PopulationSize:    100,
		Threads:           1,
		Seed:              42,
		Sampler:           SamplerLatinHypercube,
		BoundsMode:        BoundsFixed,
		PartialIterations: 5,
		FinalIterations:   50,
		Minimizer:         DefaultMinimizerConfig(),
		BroadSearch:       DefaultBroadSearchConfig(),
	}
}

// Validate checks the options for configuration errors
func (o Options) Validate() error {
	if o.PopulationSize <= 0 {
		return &ConfigError{Field: "population size", Reason: fmt.Sprintf("must be positive, got %d", o.PopulationSize)}
	}
	if o.Threads <= 0 {
		return &ConfigError{Field: "threads", Reason: fmt.Sprintf("must be positive, got %d", o.Threads)}
	}
	if o.PartialIterations < 0 || o.FinalIterations < 0 {
		return &ConfigError{Field: "iterations", Reason: "cannot be negative"}
	}
	if o.FinalIterations < o.PartialIterations {
		return &ConfigError{Field: "iterations", Reason: "final budget must not be smaller than the partial budget"}
	}
	if o.Minimizer.StepFraction <= 0 {
		return &ConfigError{Field: "local.step_fraction", Reason: "must be positive"}
	}
	return nil
}

// Engine runs the guided minimization: population sampling, parallel
// evaluation, selective local refinement and final refinement of the best.
type Engine struct {
	ts      *chem.TrainingSet
	calc    ChargeCalculator
	opts    Options
	observe func(PhaseEvent)

	phase Phase
	start time.Time
}

// NewEngine validates the options and prepares an engine
func NewEngine(ts *chem.TrainingSet, calc ChargeCalculator, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if ts.TypeCount() == 0 {
		return nil, &ConfigError{Field: "atom types", Reason: "training set has none"}
	}
	return &Engine{ts: ts, calc: calc, opts: opts, phase: PhaseInit}, nil
}

// OnPhase registers a callback invoked synchronously after each transition
func (e *Engine) OnPhase(fn func(PhaseEvent)) {
	e.observe = fn
}

// Phase returns the state the engine has reached
func (e *Engine) Phase() Phase {
	return e.phase
}

func (e *Engine) transition(next Phase, ev PhaseEvent) {
	cur := -1
	for i, p := range phaseOrder {
		if p == e.phase {
			cur = i
		}
	}
	if cur+1 >= len(phaseOrder) || phaseOrder[cur+1] != next {
		panic(fmt.Sprintf("fit: illegal transition %s -> %s", e.phase, next))
	}
	e.phase = next

	ev.Phase = next
	ev.Elapsed = time.Since(e.start)
	slog.Info("Guided minimization phase",
		"phase", string(next),
		"best_r2", ev.Best.R2,
		"best_rmsd", ev.Best.RMSD,
		"minimized", ev.Minimized,
	)
	if e.observe != nil {
		e.observe(ev)
	}
}

// Run executes the full state machine and returns the refined best candidate.
// The returned candidate is detached from the discarded population.
// Cancelling ctx stops the worker pool from starting new candidates.
func (e *Engine) Run(ctx context.Context) (*Candidate, error) {
	if e.phase != PhaseInit {
		return nil, fmt.Errorf("engine already ran (phase %s)", e.phase)
	}
	e.start = time.Now()

	bounds, err := ComputeBounds(e.ts, e.opts.BoundsMode, e.calc, e.opts.BroadSearch)
	if err != nil {
		return nil, fmt.Errorf("compute bounds: %w", err)
	}

	slog.Info("Generating population", "size", e.opts.PopulationSize, "sampler", string(e.opts.Sampler))
	rng := rand.New(rand.NewSource(e.opts.Seed))
	pop, err := GeneratePopulation(e.ts, bounds, e.opts.PopulationSize, e.opts.Sampler, rng)
	if err != nil {
		return nil, fmt.Errorf("generate population: %w", err)
	}
	defer pop.Release()
	e.transition(PhasePopulationGenerated, PhaseEvent{PopulationID: pop.ID})

	if err := e.evaluateAll(ctx, pop.Candidates); err != nil {
		return nil, fmt.Errorf("evaluate population: %w", err)
	}
	e.transition(PhaseEvaluated, PhaseEvent{PopulationID: pop.ID})

	minimizer := NewMinimizer(e.ts, e.calc, bounds, e.opts.Minimizer)
	minimized, err := MinimizePromising(ctx, pop, minimizer, e.opts.PartialIterations, e.opts.Threads)
	if err != nil {
		return nil, fmt.Errorf("minimize population: %w", err)
	}
	if minimized == 0 {
		return nil, &noPromisingError{populationSize: pop.Size()}
	}
	// Refined parameters invalidated the cached statistics
	if err := e.evaluateAll(ctx, pop.Candidates); err != nil {
		return nil, fmt.Errorf("re-evaluate population: %w", err)
	}
	e.transition(PhasePartiallyMinimized, PhaseEvent{PopulationID: pop.ID, Minimized: minimized})

	best, err := pop.SelectBest()
	if err != nil {
		return nil, fmt.Errorf("select best: %w", err)
	}
	e.transition(PhaseBestSelected, PhaseEvent{PopulationID: pop.ID, Best: best.Stats, Minimized: minimized})

	soFarBest := NewCandidate(e.ts)
	soFarBest.SetParams(best.Params)
	if err := Evaluate(e.ts, e.calc, soFarBest); err != nil {
		return nil, err
	}
	if _, err := minimizer.Minimize(soFarBest, e.opts.FinalIterations); err != nil {
		return nil, fmt.Errorf("final refinement: %w", err)
	}
	if err := Evaluate(e.ts, e.calc, soFarBest); err != nil {
		return nil, err
	}
	best.SetParams(soFarBest.Params)
	if err := Evaluate(e.ts, e.calc, best); err != nil {
		return nil, err
	}
	e.transition(PhaseFinalRefined, PhaseEvent{PopulationID: pop.ID, Best: soFarBest.Stats, Minimized: minimized})

	e.transition(PhaseDone, PhaseEvent{PopulationID: pop.ID, Best: soFarBest.Stats, Minimized: minimized})
	return soFarBest, nil
}

// evaluateAll computes charges and statistics of every stale candidate on the worker pool
func (e *Engine) evaluateAll(ctx context.Context, candidates []*Candidate) error {
	p := pool.New().WithMaxGoroutines(e.opts.Threads).WithContext(ctx).WithCancelOnError()
	for _, c := range candidates {
		if !c.Stale() {
			continue
		}
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return Evaluate(e.ts, e.calc, c)
		})
	}
	return p.Wait()
}

// MinimizePromising refines every candidate with R2 > 0.2 and R > 0 for up to
// iterations sweeps. Refined parameters are copied back into the population,
// leaving those candidates stale; the caller must re-evaluate them.
// It returns the number of refined candidates.
func MinimizePromising(ctx context.Context, pop *Population, minimizer *Minimizer, iterations, threads int) (int, error) {
	for _, c := range pop.Candidates {
		if c.Stale() {
			return 0, fmt.Errorf("candidate %d has stale statistics", c.Index)
		}
	}

	var quiteGood atomic.Int64
	p := pool.New().WithMaxGoroutines(max(threads, 1)).WithContext(ctx).WithCancelOnError()
	for _, c := range pop.Candidates {
		if !Promising(c.Stats) {
			continue
		}
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			quiteGood.Add(1)

			work := c.Clone()
			work.Index = c.Index
			if _, err := minimizer.Minimize(work, iterations); err != nil {
				return err
			}
			c.SetParams(work.Params)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return int(quiteGood.Load()), err
	}

	n := int(quiteGood.Load())
	slog.Info("Minimized promising candidates", "population", pop.Size(), "minimized", n)
	return n, nil
}
