package opt

import (
	"math"
	"testing"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42) // maxIters, popSize, seed

	dim := 3
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = -10
		upper[i] = 10
	}

	best, cost, err := optimizer.Run(sphere, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(best))
	}

	// Should converge close to zero
	if cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", cost)
	}

	for i, v := range best {
		if math.Abs(v) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}
}

func TestMayflyAdapterRespectsPerDimensionBounds(t *testing.T) {
	optimizer := NewMayfly(30, 20, 7)

	// Minimum of the shifted sphere lies outside the box on both axes
	shifted := func(x []float64) float64 {
		return (x[0]-10)*(x[0]-10) + (x[1]+10)*(x[1]+10)
	}
	lower := []float64{0, -2}
	upper := []float64{1, 5}

	best, _, err := optimizer.Run(shifted, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for i := range best {
		if best[i] < lower[i] || best[i] > upper[i] {
			t.Errorf("Parameter %d = %f outside [%f, %f]", i, best[i], lower[i], upper[i])
		}
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	// Run twice with same seed (popSize must be >=20 for mayfly v0.1.0)
	optimizer1 := NewMayfly(50, 20, 123)
	_, cost1, err := optimizer1.Run(sphere, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	optimizer2 := NewMayfly(50, 20, 123)
	_, cost2, err := optimizer2.Run(sphere, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}

func TestMayflyAdapterInvalidBounds(t *testing.T) {
	optimizer := NewMayfly(10, 20, 1)
	if _, _, err := optimizer.Run(sphere, []float64{0}, []float64{1, 2}); err == nil {
		t.Error("Expected error for mismatched bounds")
	}
}
