package opt

// Optimizer defines a bounded global optimization algorithm
type Optimizer interface {
	// Run minimizes eval inside the box [lower, upper].
	// Returns the best parameters and their cost.
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}
