package fit

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/eemfit/internal/chem"
)

// Sampler selects how initial candidates are drawn from the bounds
type Sampler string

const (
	// SamplerUniform draws every scalar independently and uniformly
	SamplerUniform Sampler = "uniform"
	// SamplerLatinHypercube stratifies every scalar into size equal bins
	SamplerLatinHypercube Sampler = "lhs"
)

// GeneratePopulation allocates size candidates and samples their parameters
// within bounds. Charges are allocated but left unevaluated.
func GeneratePopulation(ts *chem.TrainingSet, bounds *Bounds, size int, sampler Sampler, rng *rand.Rand) (*Population, error) {
	if err := bounds.Validate(ts); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}

	pop, err := NewPopulation(ts, size)
	if err != nil {
		return nil, err
	}

	dim := len(bounds.Lower)
	vectors := make([][]float64, size)
	for i := range vectors {
		vectors[i] = make([]float64, dim)
	}

	switch sampler {
	case SamplerUniform, "":
		for i := range vectors {
			for d := 0; d < dim; d++ {
				vectors[i][d] = bounds.Lower[d] + rng.Float64()*bounds.Width(d)
			}
		}
	case SamplerLatinHypercube:
		for d := 0; d < dim; d++ {
			perm := rng.Perm(size)
			for i := range vectors {
				u := (float64(perm[i]) + rng.Float64()) / float64(size)
				vectors[i][d] = bounds.Lower[d] + u*bounds.Width(d)
			}
		}
	default:
		return nil, &ConfigError{Field: "sampler", Reason: fmt.Sprintf("unknown sampler %q", sampler)}
	}

	for i, c := range pop.Candidates {
		c.SetVector(vectors[i])
	}

	slog.Debug("Generated population", "population", pop.ID, "size", size, "sampler", string(sampler), "dim", dim)
	return pop, nil
}
