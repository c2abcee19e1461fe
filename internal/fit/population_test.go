package fit

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/cwbudde/eemfit/internal/chem"
)

func TestGeneratePopulationWithinBounds(t *testing.T) {
	ts := newTestSet(t)
	bounds, err := ComputeBounds(ts, BoundsFixed, nil, DefaultBroadSearchConfig())
	if err != nil {
		t.Fatalf("ComputeBounds failed: %v", err)
	}

	for _, sampler := range []Sampler{SamplerUniform, SamplerLatinHypercube} {
		t.Run(string(sampler), func(t *testing.T) {
			pop, err := GeneratePopulation(ts, bounds, 25, sampler, rand.New(rand.NewSource(3)))
			if err != nil {
				t.Fatalf("GeneratePopulation failed: %v", err)
			}
			if pop.Size() != 25 {
				t.Fatalf("Expected 25 candidates, got %d", pop.Size())
			}
			for _, c := range pop.Candidates {
				if !c.Stale() {
					t.Errorf("Candidate %d must be unevaluated", c.Index)
				}
				for d, v := range c.Vector() {
					if v < bounds.Lower[d] || v > bounds.Upper[d] {
						t.Errorf("Candidate %d: %s = %v outside [%v, %v]", c.Index, ParamName(ts, d), v, bounds.Lower[d], bounds.Upper[d])
					}
				}
			}
		})
	}
}

func TestLatinHypercubeStratifies(t *testing.T) {
	ts := newTestSet(t)
	bounds, _ := ComputeBounds(ts, BoundsFixed, nil, DefaultBroadSearchConfig())
	const size = 16

	pop, err := GeneratePopulation(ts, bounds, size, SamplerLatinHypercube, rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatalf("GeneratePopulation failed: %v", err)
	}

	for d := range bounds.Lower {
		seen := make([]bool, size)
		for _, c := range pop.Candidates {
			u := (c.Vector()[d] - bounds.Lower[d]) / bounds.Width(d)
			bin := min(int(math.Floor(u*size)), size-1)
			if seen[bin] {
				t.Fatalf("%s: two samples in bin %d", ParamName(ts, d), bin)
			}
			seen[bin] = true
		}
	}
}

func TestGeneratePopulationDeterministic(t *testing.T) {
	ts := newTestSet(t)
	bounds, _ := ComputeBounds(ts, BoundsFixed, nil, DefaultBroadSearchConfig())

	a, _ := GeneratePopulation(ts, bounds, 10, SamplerLatinHypercube, rand.New(rand.NewSource(99)))
	b, _ := GeneratePopulation(ts, bounds, 10, SamplerLatinHypercube, rand.New(rand.NewSource(99)))
	for i := range a.Candidates {
		va, vb := a.Candidates[i].Vector(), b.Candidates[i].Vector()
		for d := range va {
			if va[d] != vb[d] {
				t.Fatalf("Candidate %d differs at %s: %v vs %v", i, ParamName(ts, d), va[d], vb[d])
			}
		}
	}
	if a.ID == b.ID {
		t.Error("Populations must have distinct IDs")
	}
}

func TestGeneratePopulationRejectsInvertedBounds(t *testing.T) {
	ts := newTestSet(t)
	bounds, _ := ComputeBounds(ts, BoundsFixed, nil, DefaultBroadSearchConfig())
	bounds.Lower[2], bounds.Upper[2] = 3, 2

	_, err := GeneratePopulation(ts, bounds, 10, SamplerUniform, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "alpha[C 1]") {
		t.Errorf("Expected the offending parameter in the error, got %v", err)
	}
}

func TestGeneratePopulationErrors(t *testing.T) {
	ts := newTestSet(t)
	bounds, _ := ComputeBounds(ts, BoundsFixed, nil, DefaultBroadSearchConfig())
	rng := rand.New(rand.NewSource(1))

	if _, err := GeneratePopulation(ts, bounds, 0, SamplerUniform, rng); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for zero size, got %v", err)
	}
	if _, err := GeneratePopulation(ts, bounds, 5, Sampler("sobol"), rng); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for unknown sampler, got %v", err)
	}
	if _, err := GeneratePopulation(ts, NewBounds(1), 5, SamplerUniform, rng); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for mis-sized bounds, got %v", err)
	}
	bounds.Upper[0] = math.NaN()
	if _, err := GeneratePopulation(ts, bounds, 5, SamplerUniform, rng); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for NaN bound, got %v", err)
	}
}

func TestComputeBoundsFixed(t *testing.T) {
	ts := newTestSet(t)
	b, err := ComputeBounds(ts, BoundsFixed, nil, DefaultBroadSearchConfig())
	if err != nil {
		t.Fatalf("ComputeBounds failed: %v", err)
	}
	if b.Types() != 3 {
		t.Fatalf("Expected bounds for 3 types, got %d", b.Types())
	}
	if b.Lower[0] != fixedKappa.lo || b.Upper[0] != fixedKappa.hi {
		t.Errorf("Unexpected kappa bounds [%v, %v]", b.Lower[0], b.Upper[0])
	}
	if b.Lower[1] != fixedAlpha["H"].lo {
		t.Errorf("Expected H alpha lower %v, got %v", fixedAlpha["H"].lo, b.Lower[1])
	}
}

func TestComputeBoundsErrors(t *testing.T) {
	if _, err := ComputeBounds(&chem.TrainingSet{}, BoundsFixed, nil, DefaultBroadSearchConfig()); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for zero atom types, got %v", err)
	}

	ts := newTestSet(t)
	if _, err := ComputeBounds(ts, BoundsMode("narrow"), nil, DefaultBroadSearchConfig()); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for unknown mode, got %v", err)
	}
	if _, err := ComputeBounds(ts, BoundsBroadSearch, nil, DefaultBroadSearchConfig()); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for broad search without calculator, got %v", err)
	}
}

func TestComputeBoundsBroadSearch(t *testing.T) {
	ts := newTestSet(t)
	cfg := DefaultBroadSearchConfig()
	cfg.Iterations = 5

	b, err := ComputeBounds(ts, BoundsBroadSearch, alphaCalculator{}, cfg)
	if err != nil {
		t.Fatalf("ComputeBounds failed: %v", err)
	}

	wide := physicalBounds(ts)
	for i := range b.Lower {
		if b.Lower[i] < wide.Lower[i] || b.Upper[i] > wide.Upper[i] {
			t.Errorf("%s: [%v, %v] leaves the physical box [%v, %v]",
				ParamName(ts, i), b.Lower[i], b.Upper[i], wide.Lower[i], wide.Upper[i])
		}
		if b.Width(i) > 2*cfg.Margin*wide.Width(i)+1e-12 {
			t.Errorf("%s: interval not narrowed", ParamName(ts, i))
		}
	}
}

func TestComputeBoundsBroadSearchToleratesFailures(t *testing.T) {
	ts := newTestSet(t)
	cfg := DefaultBroadSearchConfig()
	cfg.Iterations = 2

	if _, err := ComputeBounds(ts, BoundsBroadSearch, failingCalculator{}, cfg); err != nil {
		t.Fatalf("Broad search must survive calculator failures, got %v", err)
	}
}
