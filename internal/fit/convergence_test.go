package fit

import "testing"

// fitStats returns positively correlated statistics with the given R2
func fitStats(r2, rmsd float64) Stats {
	return Stats{R: r2, R2: r2, RMSD: rmsd}
}

func TestConvergenceTrackerPatienceOne(t *testing.T) {
	tracker := NewConvergenceTracker(DefaultConvergenceConfig())
	tracker.Start(fitStats(0.5, 0.2))

	if tracker.Update(fitStats(0.6, 0.2)) {
		t.Error("Improving sweep must not converge")
	}
	if !tracker.Update(fitStats(0.6, 0.2)) {
		t.Error("Expected convergence after one idle sweep")
	}
	if h := tracker.History(); len(h) != 3 || h[0] != 0.5 || h[2] != 0.6 {
		t.Errorf("Unexpected history %v", h)
	}
}

func TestConvergenceTrackerRMSDProgress(t *testing.T) {
	tracker := NewConvergenceTracker(DefaultConvergenceConfig())
	tracker.Start(fitStats(0.8, 0.3))

	// Same R2 with a lower RMSD is an improving sweep
	if tracker.Update(fitStats(0.8, 0.2)) {
		t.Error("Sweep that lowered RMSD must not converge")
	}
	if tracker.StaleCount() != 0 {
		t.Errorf("Expected stale count 0, got %d", tracker.StaleCount())
	}
	if !tracker.Update(fitStats(0.8, 0.2)) {
		t.Error("Expected convergence after an idle sweep")
	}
}

func TestConvergenceTrackerThreshold(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.01})
	tracker.Start(fitStats(0.5, 1))

	steps := []struct {
		r2   float64
		want bool
	}{
		{0.55, false},  // significant
		{0.555, false}, // below threshold, stale 1
		{0.556, true},  // stale 2
	}
	for i, s := range steps {
		if got := tracker.Update(fitStats(s.r2, 1)); got != s.want {
			t.Errorf("Step %d: Update(R2=%v) = %v, want %v", i, s.r2, got, s.want)
		}
	}
	if tracker.StaleCount() != 2 {
		t.Errorf("Expected stale count 2, got %d", tracker.StaleCount())
	}
}

func TestConvergenceTrackerDisabled(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: false})
	tracker.Start(fitStats(0.5, 1))
	for i := 0; i < 10; i++ {
		if tracker.Update(fitStats(0.5, 1)) {
			t.Fatal("Disabled tracker must never converge")
		}
	}
	if len(tracker.History()) != 11 {
		t.Errorf("Expected 11 history entries, got %d", len(tracker.History()))
	}
}
