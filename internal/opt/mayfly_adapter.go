package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopulation is the smallest population the mayfly library accepts
const MinPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	if popSize < MinPopulation {
		popSize = MinPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
// The library only supports one scalar bound for all dimensions, so the
// search runs in the unit cube and positions are mapped onto [lower, upper].
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	if len(lower) != len(upper) || len(lower) == 0 {
		return nil, 0, fmt.Errorf("invalid bounds: %d lower, %d upper", len(lower), len(upper))
	}
	dim := len(lower)

	toBox := func(u []float64, dst []float64) {
		for i := range dst {
			t := u[i]
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
			dst[i] = lower[i] + t*(upper[i]-lower[i])
		}
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 {
		x := make([]float64, dim)
		toBox(u, x)
		return eval(x)
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	best := make([]float64, dim)
	toBox(result.GlobalBest.Position, best)
	return best, result.GlobalBest.Cost, nil
}
