package eem

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/cwbudde/eemfit/internal/fit"
)

func atom(symbol string, x float64) chem.Atom {
	el, _ := chem.LookupSymbol(symbol)
	return chem.Atom{Element: el, Position: [3]float64{x, 0, 0}, BondOrder: 1}
}

func diatomic(t *testing.T, a, b string, distance, charge float64) *chem.TrainingSet {
	t.Helper()
	ts, err := chem.NewTrainingSet([]chem.Molecule{{
		Name:        a + b,
		Atoms:       []chem.Atom{atom(a, 0), atom(b, distance)},
		TotalCharge: charge,
	}}, chem.ClassifyElemBond)
	if err != nil {
		t.Fatalf("Failed to build training set: %v", err)
	}
	return ts
}

func solve(t *testing.T, ts *chem.TrainingSet, p fit.Params) ([]float64, []float64, error) {
	t.Helper()
	s, err := NewSolver(ts)
	if err != nil {
		t.Fatalf("NewSolver failed: %v", err)
	}
	charges := make([]float64, ts.AtomCount())
	cond := make([]float64, ts.MoleculeCount())
	return charges, cond, s.CalculateCharges(ts, p, charges, cond)
}

func TestSolverSymmetricMolecule(t *testing.T) {
	ts := diatomic(t, "H", "H", 0.74, 1)
	p := fit.NewParams(ts.TypeCount())
	p.Kappa = 0.5
	p.Alpha[0], p.Beta[0] = 2.4, 0.9

	charges, cond, err := solve(t, ts, p)
	if err != nil {
		t.Fatalf("CalculateCharges failed: %v", err)
	}
	if math.Abs(charges[0]-0.5) > 1e-12 || math.Abs(charges[1]-0.5) > 1e-12 {
		t.Errorf("Expected equal charges of 0.5, got %v", charges)
	}
	if cond[0] <= 0 || math.IsInf(cond[0], 0) {
		t.Errorf("Expected finite positive condition number, got %v", cond[0])
	}
}

func TestSolverMatchesAnalyticDiatomic(t *testing.T) {
	ts := diatomic(t, "H", "F", 1, 0)
	h, _ := ts.TypeIndex("H", 1)
	f, _ := ts.TypeIndex("F", 1)

	p := fit.NewParams(ts.TypeCount())
	p.Kappa = 0.5
	p.Alpha[h], p.Beta[h] = 2, 1
	p.Alpha[f], p.Beta[f] = 3, 1

	charges, _, err := solve(t, ts, p)
	if err != nil {
		t.Fatalf("CalculateCharges failed: %v", err)
	}

	// q_H = (A_F - A_H) / (B_H + B_F - 2κ/R)
	want := (3.0 - 2.0) / (1 + 1 - 2*0.5/1)
	if math.Abs(charges[0]-want) > 1e-12 || math.Abs(charges[1]+want) > 1e-12 {
		t.Errorf("Expected charges (%v, %v), got %v", want, -want, charges)
	}
}

func TestSolverSingularSystem(t *testing.T) {
	ts := diatomic(t, "H", "H", 0.74, 0)
	p := fit.NewParams(ts.TypeCount())

	_, _, err := solve(t, ts, p)
	if err == nil {
		t.Fatal("Expected error for singular system")
	}

	var nerr *fit.NumericalError
	if !errors.As(err, &nerr) {
		t.Fatalf("Expected NumericalError, got %T: %v", err, err)
	}
	if nerr.Molecule != "HH" {
		t.Errorf("Expected molecule HH in error, got %q", nerr.Molecule)
	}
	if !errors.Is(err, ErrSingular) {
		t.Errorf("Expected ErrSingular, got %v", err)
	}
}

func TestNewSolverRejectsOverlappingAtoms(t *testing.T) {
	ts := diatomic(t, "H", "H", 0, 0)
	if _, err := NewSolver(ts); err == nil {
		t.Error("Expected error for overlapping atoms")
	}
}

func TestSolverRejectsForeignTrainingSet(t *testing.T) {
	ts := diatomic(t, "H", "H", 0.74, 0)
	other := diatomic(t, "H", "H", 0.74, 0)
	s, err := NewSolver(ts)
	if err != nil {
		t.Fatal(err)
	}
	p := fit.NewParams(other.TypeCount())
	if err := s.CalculateCharges(other, p, make([]float64, 2), make([]float64, 1)); err == nil {
		t.Error("Expected error for a different training set")
	}
}
