package chemio

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/cwbudde/eemfit/internal/fit"
)

// WriteReport writes aggregate, per-atom-type and per-molecule statistics of
// an evaluated candidate followed by a per-atom charge comparison.
func WriteReport(w io.Writer, ts *chem.TrainingSet, c *fit.Candidate) error {
	if c.Stale() {
		return fmt.Errorf("cannot report statistics of a stale candidate")
	}

	bw := bufio.NewWriter(w)
	s := c.Stats
	fmt.Fprintf(bw, "Total: R: %6.4f  R2: %6.4f  Spearman: %6.4f  RMSD: %6.4f  MSE: %6.4f  D: %6.4f  Cond: %.1f  Degenerate: %d\n",
		s.R, s.R2, s.Spearman, s.RMSD, s.MSE, s.D, s.Cond, s.Degenerate)
	fmt.Fprintf(bw, "Molecules: %d  Atoms: %d  Kappa: %6.4f\n\n", ts.MoleculeCount(), ts.AtomCount(), c.Kappa)

	fmt.Fprintf(bw, "%-8s %6s %9s %9s %9s %9s\n", "Type", "Count", "Alpha", "Beta", "D_avg", "D_max")
	for t, at := range ts.AtomTypes {
		fmt.Fprintf(bw, "%-8s %6d %9.4f %9.4f %9.4f %9.4f\n",
			at.Label(), at.Count, c.Alpha[t], c.Beta[t], c.AtomTypes[t].AvgD, c.AtomTypes[t].MaxD)
	}
	fmt.Fprintln(bw)

	for i := range ts.Molecules {
		m := &ts.Molecules[i]
		ms := c.Molecules[i]
		fmt.Fprintf(bw, "%s\t%s\tR: %6.4f  R2: %6.4f  Spearman: %6.4f  RMSD: %6.4f  D_avg: %6.4f  D_max: %6.4f  Cond: %.1f",
			m.Name, m.SumFormula(), ms.R, ms.R2, ms.Spearman, ms.RMSD, ms.DAvg, ms.DMax, ms.Cond)
		if ms.Degenerate {
			fmt.Fprint(bw, "  (degenerate)")
		}
		fmt.Fprintln(bw)

		off := ts.Offset(i)
		for j, a := range m.Atoms {
			q := c.Charges[off+j]
			fmt.Fprintf(bw, "%4d\t%2s\t%9.6f\t%9.6f\t%9.6f\n", j+1, a.Element.Symbol, a.ReferenceCharge, q, q-a.ReferenceCharge)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}
