package fit

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/eemfit/internal/chem"
	"gonum.org/v1/gonum/optimize"
)

// Method selects the local search algorithm
type Method string

const (
	// MethodCoordinate is a pattern search that perturbs one scalar at a time
	MethodCoordinate Method = "coordinate"
	// MethodNelderMead runs gonum's Nelder-Mead simplex search
	MethodNelderMead Method = "nelder-mead"
)

// MinimizerConfig tunes the local search
type MinimizerConfig struct {
	Method Method

	// StepFraction is the initial step as a fraction of each bound's width
	StepFraction float64
	// MinStep stops shrinking a coordinate step below this size
	MinStep float64

	Convergence ConvergenceConfig
}

// DefaultMinimizerConfig returns the coordinate search, stopping after one idle sweep
func DefaultMinimizerConfig() MinimizerConfig {
	return MinimizerConfig{
		Method:       MethodCoordinate,
		StepFraction: 0.1,
		MinStep:      1e-6,
		Convergence:  DefaultConvergenceConfig(),
	}
}

// Minimizer refines the parameters of a single candidate.
// It only ever replaces the incumbent with a strictly better trial point,
// so the fit of the candidate never gets worse.
type Minimizer struct {
	ts     *chem.TrainingSet
	calc   ChargeCalculator
	bounds *Bounds
	config MinimizerConfig
}

// NewMinimizer creates a local minimizer. Bounds only scale the step sizes;
// refined parameters may leave them.
func NewMinimizer(ts *chem.TrainingSet, calc ChargeCalculator, bounds *Bounds, config MinimizerConfig) *Minimizer {
	return &Minimizer{ts: ts, calc: calc, bounds: bounds, config: config}
}

// Minimize runs at most iterations sweeps on c. On return c holds the best
// parameters found together with matching charges and statistics.
// It returns the number of sweeps performed.
func (m *Minimizer) Minimize(c *Candidate, iterations int) (int, error) {
	if c.Stale() {
		if err := Evaluate(m.ts, m.calc, c); err != nil {
			return 0, err
		}
	}
	if iterations <= 0 {
		return 0, nil
	}

	switch m.config.Method {
	case MethodCoordinate, "":
		return m.coordinate(c, iterations)
	case MethodNelderMead:
		return m.nelderMead(c, iterations)
	default:
		return 0, &ConfigError{Field: "local.method", Reason: fmt.Sprintf("unknown method %q", m.config.Method)}
	}
}

func (m *Minimizer) initialSteps(x []float64) []float64 {
	steps := make([]float64, len(x))
	for i := range steps {
		w := 0.0
		if m.bounds != nil && i < len(m.bounds.Lower) {
			w = m.bounds.Width(i)
		}
		if w <= 0 {
			w = math.Max(math.Abs(x[i]), 1)
		}
		steps[i] = m.config.StepFraction * w
	}
	return steps
}

func (m *Minimizer) coordinate(c *Candidate, iterations int) (int, error) {
	incumbent := c.Clone()
	trial := c.Clone()
	trial.Index = c.Index
	x := incumbent.Vector()
	steps := m.initialSteps(x)

	tracker := NewConvergenceTracker(m.config.Convergence)
	tracker.Start(incumbent.Stats)

	sweeps := 0
	for sweeps < iterations {
		sweeps++
		for i := range x {
			if steps[i] < m.config.MinStep {
				continue
			}
			improved := false
			for _, dir := range [2]float64{1, -1} {
				old := x[i]
				x[i] = old + dir*steps[i]
				trial.SetVector(x)
				if err := Evaluate(m.ts, m.calc, trial); err != nil {
					return sweeps, err
				}
				if Better(trial.Stats, incumbent.Stats) {
					incumbent.copyFrom(trial)
					improved = true
					break
				}
				x[i] = old
			}
			if !improved {
				steps[i] /= 2
			}
		}

		if tracker.Update(incumbent.Stats) {
			break
		}
	}

	slog.Debug("Coordinate search finished",
		"candidate", c.Index,
		"sweeps", sweeps,
		"r2", incumbent.Stats.R2,
		"rmsd", incumbent.Stats.RMSD,
		"scores", tracker.History(),
		"stale", tracker.StaleCount(),
	)

	c.copyFrom(incumbent)
	return sweeps, nil
}

func (m *Minimizer) nelderMead(c *Candidate, iterations int) (int, error) {
	trial := c.Clone()
	trial.Index = c.Index
	x0 := c.Vector()
	steps := m.initialSteps(x0)

	var evalErr error
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if evalErr != nil {
				return math.Inf(1)
			}
			trial.SetVector(x)
			if err := Evaluate(m.ts, m.calc, trial); err != nil {
				evalErr = err
				return math.Inf(1)
			}
			return 1 - Score(trial.Stats)
		},
	}

	var simplex float64
	for _, s := range steps {
		simplex = math.Max(simplex, s)
	}

	settings := &optimize.Settings{
		MajorIterations: iterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   m.config.Convergence.Threshold,
			Iterations: max(m.config.Convergence.Patience, 1) * len(x0),
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: simplex})
	if evalErr != nil {
		return 0, evalErr
	}
	if result == nil {
		if err == nil {
			err = errors.New("optimizer returned no result")
		}
		return 0, fmt.Errorf("nelder-mead: %w", err)
	}

	trial.SetVector(result.X)
	if err := Evaluate(m.ts, m.calc, trial); err != nil {
		return result.MajorIterations, err
	}
	if Better(trial.Stats, c.Stats) {
		c.copyFrom(trial)
	}

	slog.Debug("Nelder-Mead search finished",
		"candidate", c.Index,
		"iterations", result.MajorIterations,
		"status", result.Status.String(),
		"r2", c.Stats.R2,
	)
	return result.MajorIterations, nil
}
