// Package eem computes partial charges with the Electronegativity Equalization Method.
package eem

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/cwbudde/eemfit/internal/fit"
	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when the EEM system of a molecule cannot be solved.
var ErrSingular = errors.New("singular EEM system")

// Solver solves the EEM equations
//
//	B_i q_i + κ Σ_{j≠i} q_j / R_ij − χ = −A_i
//	Σ_i q_i = Q
//
// for every molecule of a training set. Inverse distances are precomputed;
// the solver is immutable and safe for concurrent use.
type Solver struct {
	ts      *chem.TrainingSet
	invDist [][]float64 // Per molecule, row-major n×n, zero diagonal
}

// NewSolver precomputes inverse interatomic distances for the training set
func NewSolver(ts *chem.TrainingSet) (*Solver, error) {
	s := &Solver{ts: ts, invDist: make([][]float64, ts.MoleculeCount())}
	for mi := range ts.Molecules {
		m := &ts.Molecules[mi]
		n := len(m.Atoms)
		inv := make([]float64, n*n)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				d := m.Distance(i, j)
				if d == 0 {
					return nil, fmt.Errorf("molecule %q: atoms %d and %d overlap", m.Name, i+1, j+1)
				}
				inv[i*n+j] = 1 / d
				inv[j*n+i] = 1 / d
			}
		}
		s.invDist[mi] = inv
	}
	return s, nil
}

// CalculateCharges implements fit.ChargeCalculator
func (s *Solver) CalculateCharges(ts *chem.TrainingSet, p fit.Params, charges, cond []float64) error {
	if ts != s.ts {
		return fmt.Errorf("solver was prepared for a different training set")
	}
	if len(charges) != ts.AtomCount() {
		return fmt.Errorf("charges buffer has %d entries, need %d", len(charges), ts.AtomCount())
	}

	for mi := range ts.Molecules {
		m := &ts.Molecules[mi]
		off := ts.Offset(mi)
		c, err := s.solveMolecule(mi, p, charges[off:off+len(m.Atoms)])
		if err != nil {
			return &fit.NumericalError{Candidate: -1, Molecule: m.Name, Err: err}
		}
		if mi < len(cond) {
			cond[mi] = c
		}
	}
	return nil
}

func (s *Solver) solveMolecule(mi int, p fit.Params, dst []float64) (float64, error) {
	m := &s.ts.Molecules[mi]
	n := len(m.Atoms)
	inv := s.invDist[mi]

	a := mat.NewDense(n+1, n+1, nil)
	b := mat.NewVecDense(n+1, nil)
	for i, atom := range m.Atoms {
		for j := 0; j < n; j++ {
			if i == j {
				a.Set(i, i, p.Beta[atom.Type])
			} else {
				a.Set(i, j, p.Kappa*inv[i*n+j])
			}
		}
		a.Set(i, n, -1)
		a.Set(n, i, 1)
		b.SetVec(i, -p.Alpha[atom.Type])
	}
	b.SetVec(n, m.TotalCharge)

	var lu mat.LU
	lu.Factorize(a)
	cond := lu.Cond()
	if math.IsInf(cond, 1) || math.IsNaN(cond) {
		return cond, ErrSingular
	}

	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, b); err != nil {
		var c mat.Condition
		if !errors.As(err, &c) {
			return cond, err
		}
		// Near-singular but solved; the condition number is reported in the statistics
		if x.Len() != n+1 {
			return cond, ErrSingular
		}
	}

	for i := 0; i < n; i++ {
		q := x.AtVec(i)
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return cond, fmt.Errorf("%w: non-finite charge on atom %d", ErrSingular, i+1)
		}
		dst[i] = q
	}
	return cond, nil
}
