package fit

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/cwbudde/eemfit/internal/opt"
)

// BoundsMode selects how parameter bounds are derived
type BoundsMode string

const (
	// BoundsFixed uses intervals calibrated on earlier full scans
	BoundsFixed BoundsMode = "fixed"
	// BoundsBroadSearch derives wide intervals from ionization energies and
	// electron affinities, then narrows them around a global search optimum
	BoundsBroadSearch BoundsMode = "broad"
)

type interval struct{ lo, hi float64 }

var (
	fixedKappa = interval{0.05, 0.6}

	fixedAlpha = map[string]interval{
		"H":  {2.2, 2.8},
		"C":  {2.3, 2.8},
		"N":  {2.4, 2.9},
		"O":  {2.4, 3.2},
		"S":  {2.1, 2.8},
		"P":  {2.0, 2.7},
		"F":  {2.6, 3.4},
		"Cl": {2.3, 3.0},
		"Br": {2.2, 2.9},
	}
	fixedBeta = map[string]interval{
		"H":  {0.4, 1.4},
		"C":  {0.2, 0.8},
		"N":  {0.2, 1.0},
		"O":  {0.2, 1.2},
		"S":  {0.1, 0.9},
		"P":  {0.1, 0.9},
		"F":  {0.3, 1.5},
		"Cl": {0.2, 1.2},
		"Br": {0.2, 1.2},
	}
	defaultAlpha = interval{2.0, 3.2}
	defaultBeta  = interval{0.1, 1.2}
)

// Scales mapping Mulliken electronegativity and hardness (eV) onto EEM A and B
const (
	alphaPerElectronegativity = 0.4
	betaPerHardness           = 0.05
	broadSpread               = 0.5
)

var broadKappa = interval{0.0, 1.5}

// BroadSearchConfig tunes the global search used by BoundsBroadSearch
type BroadSearchConfig struct {
	Iterations int
	Population int
	// Margin is the half-width of the final interval as a fraction of the broad width
	Margin float64
	Seed   int64
}

// DefaultBroadSearchConfig returns a short search suitable for small training sets
func DefaultBroadSearchConfig() BroadSearchConfig {
	return BroadSearchConfig{
		Iterations: 30,
		Population: opt.MinPopulation,
		Margin:     0.25,
		Seed:       1,
	}
}

// ComputeBounds returns one [min,max] interval per tunable scalar.
// calc is only used by BoundsBroadSearch and may be nil for BoundsFixed.
func ComputeBounds(ts *chem.TrainingSet, mode BoundsMode, calc ChargeCalculator, broad BroadSearchConfig) (*Bounds, error) {
	if ts.TypeCount() == 0 {
		return nil, &ConfigError{Field: "atom types", Reason: "training set has none"}
	}

	var (
		b   *Bounds
		err error
	)
	switch mode {
	case BoundsFixed, "":
		b = fixedBounds(ts)
	case BoundsBroadSearch:
		if calc == nil {
			return nil, &ConfigError{Field: "bounds", Reason: "broad search requires a charge calculator"}
		}
		b, err = broadSearchBounds(ts, calc, broad)
		if err != nil {
			return nil, err
		}
	default:
		return nil, &ConfigError{Field: "bounds mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}

	if err := b.Validate(ts); err != nil {
		return nil, err
	}
	return b, nil
}

func fixedBounds(ts *chem.TrainingSet) *Bounds {
	t := ts.TypeCount()
	b := NewBounds(t)
	b.Lower[0], b.Upper[0] = fixedKappa.lo, fixedKappa.hi

	for i, at := range ts.AtomTypes {
		a, ok := fixedAlpha[at.Element.Symbol]
		if !ok {
			a = defaultAlpha
		}
		be, ok := fixedBeta[at.Element.Symbol]
		if !ok {
			be = defaultBeta
		}
		b.Lower[1+i], b.Upper[1+i] = a.lo, a.hi
		b.Lower[1+t+i], b.Upper[1+t+i] = be.lo, be.hi
	}
	return b
}

// physicalBounds derives wide intervals from tabulated ionization energies and affinities.
func physicalBounds(ts *chem.TrainingSet) *Bounds {
	t := ts.TypeCount()
	b := NewBounds(t)
	b.Lower[0], b.Upper[0] = broadKappa.lo, broadKappa.hi

	for i, at := range ts.AtomTypes {
		a := alphaPerElectronegativity * at.Element.Electronegativity()
		be := betaPerHardness * at.Element.Hardness()
		b.Lower[1+i], b.Upper[1+i] = a*(1-broadSpread), a*(1+broadSpread)
		b.Lower[1+t+i], b.Upper[1+t+i] = be*(1-broadSpread), be*(1+broadSpread)
	}
	return b
}

// brokenCost is reported to the global search for points the calculator rejects
const brokenCost = 10.0

func broadSearchBounds(ts *chem.TrainingSet, calc ChargeCalculator, cfg BroadSearchConfig) (*Bounds, error) {
	wide := physicalBounds(ts)
	if err := wide.Validate(ts); err != nil {
		return nil, err
	}

	var failures atomic.Int64
	eval := func(x []float64) float64 {
		probe := NewCandidate(ts)
		probe.SetVector(x)
		if err := Evaluate(ts, calc, probe); err != nil {
			failures.Add(1)
			return brokenCost
		}
		return 1 - Score(probe.Stats)
	}

	slog.Info("Broad search for parameter bounds",
		"dim", len(wide.Lower),
		"iterations", cfg.Iterations,
		"population", cfg.Population,
	)

	optimizer := opt.NewMayfly(cfg.Iterations, cfg.Population, cfg.Seed)
	best, cost, err := optimizer.Run(eval, wide.Lower, wide.Upper)
	if err != nil {
		return nil, fmt.Errorf("broad search: %w", err)
	}
	if n := failures.Load(); n > 0 {
		slog.Warn("Broad search skipped ill-conditioned points", "count", n)
	}
	slog.Info("Broad search complete", "best_r2", 1-cost)

	b := NewBounds(ts.TypeCount())
	for i := range best {
		half := cfg.Margin * wide.Width(i)
		b.Lower[i] = math.Max(wide.Lower[i], best[i]-half)
		b.Upper[i] = math.Min(wide.Upper[i], best[i]+half)
	}
	return b, nil
}
