package fit

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/eemfit/internal/chem"
	"gonum.org/v1/gonum/stat"
)

// CalculateStatistics overwrites all statistics of c from its charges.
// It never touches the parameters. Molecules whose reference or computed
// charges have zero variance are excluded from R, R2 and Spearman.
// The aggregate R is the mean of the per-molecule R and R2 is its square.
func CalculateStatistics(ts *chem.TrainingSet, c *Candidate) error {
	if len(c.Charges) != ts.AtomCount() {
		return fmt.Errorf("candidate has %d charges, training set has %d atoms", len(c.Charges), ts.AtomCount())
	}

	var (
		dSumAtoms   float64
		mseSum      float64
		rmsdSum     float64
		rSum        float64
		spearmanSum float64
		condSum     float64
		valid       int
	)

	typeSum := make([]float64, ts.TypeCount())
	for t := range c.AtomTypes {
		c.AtomTypes[t] = AtomTypeStats{}
	}

	for i := range ts.Molecules {
		m := &ts.Molecules[i]
		off := ts.Offset(i)
		n := len(m.Atoms)
		charges := c.Charges[off : off+n]

		var avg float64
		for _, q := range charges {
			if math.IsNaN(q) || math.IsInf(q, 0) {
				return &NumericalError{Candidate: c.Index, Molecule: m.Name, Err: fmt.Errorf("non-finite charge %v", q)}
			}
			avg += q
		}
		avg /= float64(n)

		var sum1, sum2, sum3, diff2, dSum, dMax float64
		for j, a := range m.Atoms {
			xd := a.ReferenceCharge - m.ReferenceAverage
			yd := charges[j] - avg
			sum1 += xd * yd
			sum2 += xd * xd
			sum3 += yd * yd

			diff := charges[j] - a.ReferenceCharge
			ad := math.Abs(diff)
			diff2 += diff * diff
			dSum += ad
			if ad > dMax {
				dMax = ad
			}

			typeSum[a.Type] += ad
			if ad > c.AtomTypes[a.Type].MaxD {
				c.AtomTypes[a.Type].MaxD = ad
			}
		}

		ms := MoleculeStats{
			AverageCharge: avg,
			RMSD:          math.Sqrt(diff2 / float64(n)),
			DAvg:          dSum / float64(n),
			DMax:          dMax,
		}
		if i < len(c.Conditions) {
			ms.Cond = c.Conditions[i]
		}

		if sum2 == 0 || sum3 == 0 {
			ms.Degenerate = true
		} else {
			r := sum1 / math.Sqrt(sum2*sum3)
			r = clamp(r, -1, 1)
			ms.R = r
			ms.R2 = r * r
			ms.Spearman = spearman(m, charges)

			rSum += ms.R
			spearmanSum += ms.Spearman
			valid++
		}
		c.Molecules[i] = ms

		mseSum += diff2
		rmsdSum += ms.RMSD
		dSumAtoms += dSum
		condSum += ms.Cond
	}

	mols := float64(ts.MoleculeCount())
	c.Stats = Stats{
		RMSD:       rmsdSum / mols,
		MSE:        mseSum,
		D:          dSumAtoms / float64(ts.AtomCount()),
		Cond:       condSum / mols,
		Degenerate: ts.MoleculeCount() - valid,
	}
	if valid > 0 {
		c.Stats.R = rSum / float64(valid)
		c.Stats.R2 = c.Stats.R * c.Stats.R
		c.Stats.Spearman = spearmanSum / float64(valid)
	}

	for t, at := range ts.AtomTypes {
		if at.Count > 0 {
			c.AtomTypes[t].AvgD = typeSum[t] / float64(at.Count)
		}
	}
	return nil
}

// spearman computes the rank correlation between reference and computed charges.
func spearman(m *chem.Molecule, charges []float64) float64 {
	ref := make([]float64, len(m.Atoms))
	for j, a := range m.Atoms {
		ref[j] = a.ReferenceCharge
	}
	r := stat.Correlation(ranks(ref), ranks(charges), nil)
	if math.IsNaN(r) {
		return 0
	}
	return clamp(r, -1, 1)
}

// ranks returns 1-based ranks, averaging ties
func ranks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, len(values))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		rank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = rank
		}
		i = j + 1
	}
	return out
}
