package fit

import (
	"log/slog"
)

// ConvergenceConfig defines when a local search is considered settled
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool

	// Patience is the number of sweeps with no improvement before stopping.
	// A patience of 1 stops after the first sweep that finds no improving step.
	Patience int

	// Threshold is the minimum gain in Score, or in RMSD at equal Score,
	// that counts as progress
	Threshold float64
}

// DefaultConvergenceConfig stops after a single sweep without improvement
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  1,
		Threshold: 0,
	}
}

// ConvergenceTracker follows the incumbent of a local search sweep by sweep
// and detects a local optimum. Progress is judged with the same ordering
// as Better.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	scoreHistory    []float64
	lastSignificant Stats // Incumbent at the last significant improvement
	staleCount      int   // Sweeps without significant improvement
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{config: config}
}

// Start records the starting point without counting it as a sweep
func (c *ConvergenceTracker) Start(s Stats) {
	c.scoreHistory = append(c.scoreHistory[:0], Score(s))
	c.lastSignificant = s
	c.staleCount = 0
}

// Update records the incumbent after a sweep and returns true if convergence is detected
func (c *ConvergenceTracker) Update(s Stats) bool {
	c.scoreHistory = append(c.scoreHistory, Score(s))

	if !c.config.Enabled {
		return false
	}

	if c.progressed(s) {
		c.lastSignificant = s
		c.staleCount = 0
		return false
	}

	c.staleCount++
	slog.Debug("No significant improvement in sweep",
		"score", Score(s),
		"rmsd", s.RMSD,
		"last_significant", Score(c.lastSignificant),
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)
	return c.staleCount >= c.config.Patience
}

func (c *ConvergenceTracker) progressed(s Stats) bool {
	gain := Score(s) - Score(c.lastSignificant)
	if gain > c.config.Threshold {
		return true
	}
	return gain >= 0 && c.lastSignificant.RMSD-s.RMSD > c.config.Threshold
}

// History returns the Score after every sweep, starting point first
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.scoreHistory...)
}

// StaleCount returns the current number of sweeps without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}
