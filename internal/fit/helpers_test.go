package fit

import (
	"errors"
	"testing"

	"github.com/cwbudde/eemfit/internal/chem"
)

func testAtom(t *testing.T, symbol string, ref float64) chem.Atom {
	t.Helper()
	el, ok := chem.LookupSymbol(symbol)
	if !ok {
		t.Fatalf("Unknown element %s", symbol)
	}
	return chem.Atom{Element: el, BondOrder: 1, ReferenceCharge: ref}
}

// newTestSet builds two molecules over the atom types H 1, C 1 and O 1
func newTestSet(t *testing.T) *chem.TrainingSet {
	t.Helper()
	ts, err := chem.NewTrainingSet([]chem.Molecule{
		{Name: "hco", Atoms: []chem.Atom{testAtom(t, "H", 0.2), testAtom(t, "C", 0.0), testAtom(t, "O", -0.2)}},
		{Name: "ho", Atoms: []chem.Atom{testAtom(t, "H", 0.1), testAtom(t, "O", -0.1)}},
	}, chem.ClassifyElemBond)
	if err != nil {
		t.Fatalf("Failed to build training set: %v", err)
	}
	return ts
}

// alphaCalculator assigns every atom the alpha of its type. The fit is
// perfect when alpha decreases linearly from H over C to O.
type alphaCalculator struct{}

func (alphaCalculator) CalculateCharges(ts *chem.TrainingSet, p Params, charges, cond []float64) error {
	for i, m := range ts.Molecules {
		for j, a := range m.Atoms {
			charges[ts.Offset(i)+j] = p.Alpha[a.Type] - 2.5
		}
		cond[i] = 1 + p.Kappa
	}
	return nil
}

// referenceCalculator reproduces the reference charges scaled by factor
type referenceCalculator struct{ factor float64 }

func (r referenceCalculator) CalculateCharges(ts *chem.TrainingSet, p Params, charges, cond []float64) error {
	for i, m := range ts.Molecules {
		for j, a := range m.Atoms {
			charges[ts.Offset(i)+j] = r.factor * a.ReferenceCharge
		}
		cond[i] = 1
	}
	return nil
}

// mirrorCalculator reproduces the reference charges of the first molecule
// and their negation for every other molecule
type mirrorCalculator struct{}

func (mirrorCalculator) CalculateCharges(ts *chem.TrainingSet, p Params, charges, cond []float64) error {
	for i, m := range ts.Molecules {
		sign := 1.0
		if i > 0 {
			sign = -1
		}
		for j, a := range m.Atoms {
			charges[ts.Offset(i)+j] = sign * a.ReferenceCharge
		}
		cond[i] = 1
	}
	return nil
}

// flipCalculator reproduces the first molecule exactly. The last molecule
// gets the references scaled by 100 while the H alpha is above 2.55 and
// scaled by -0.01 below it, so that crossing the threshold trades a
// correlated fit for an anti-correlated one with a far lower RMSD.
type flipCalculator struct{}

func (flipCalculator) CalculateCharges(ts *chem.TrainingSet, p Params, charges, cond []float64) error {
	last := ts.MoleculeCount() - 1
	for i, m := range ts.Molecules {
		factor := 1.0
		if i == last {
			factor = 100
			if p.Alpha[0] < 2.55 {
				factor = -0.01
			}
		}
		for j, a := range m.Atoms {
			charges[ts.Offset(i)+j] = factor * a.ReferenceCharge
		}
		cond[i] = 1
	}
	return nil
}

var errBroken = errors.New("broken calculator")

type failingCalculator struct{}

func (failingCalculator) CalculateCharges(*chem.TrainingSet, Params, []float64, []float64) error {
	return errBroken
}

// evaluated returns a candidate evaluated with the given alphas for H, C and O
func evaluated(t *testing.T, ts *chem.TrainingSet, alphaH, alphaC, alphaO float64) *Candidate {
	t.Helper()
	c := NewCandidate(ts)
	p := NewParams(ts.TypeCount())
	p.Kappa = 0.3
	p.Alpha[0], p.Alpha[1], p.Alpha[2] = alphaH, alphaC, alphaO
	c.SetParams(p)
	if err := Evaluate(ts, alphaCalculator{}, c); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	return c
}
