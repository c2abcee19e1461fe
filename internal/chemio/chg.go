package chemio

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cwbudde/eemfit/internal/chem"
)

// ReadChargesFile assigns reference charges from a .chg file to the molecules
func ReadChargesFile(path string, molecules []chem.Molecule) error {
	rc, err := OpenMaybeGzip(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return ReadCharges(rc, path, molecules)
}

// ReadCharges parses records of the form
//
//	name
//	atom count
//	idx symbol charge   (one line per atom)
//	<blank line>
//
// and stores the charges in the matching molecule. Records for unknown
// molecules are skipped.
func ReadCharges(r io.Reader, name string, molecules []chem.Molecule) error {
	byName := make(map[string]int, len(molecules))
	for i := range molecules {
		byName[molecules[i].Name] = i
	}

	lr := newLineReader(r, name)
	unknown := 0
	for {
		molName, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		molName = strings.TrimSpace(molName)
		if molName == "" {
			continue
		}

		countLine, err := lr.must("atom count of " + molName)
		if err != nil {
			return err
		}
		count, err := strconv.Atoi(strings.TrimSpace(countLine))
		if err != nil || count <= 0 {
			return lr.errorf("invalid atom count %q for molecule %q", strings.TrimSpace(countLine), molName)
		}

		idx, known := byName[molName]
		if known && len(molecules[idx].Atoms) != count {
			return lr.errorf("molecule %q has %d atoms, charge record has %d", molName, len(molecules[idx].Atoms), count)
		}

		charges := make([]float64, count)
		for i := 0; i < count; i++ {
			line, err := lr.must("charges of " + molName)
			if err != nil {
				return err
			}
			fields := strings.Fields(line)
			if len(fields) < 3 {
				return lr.errorf("malformed charge line for molecule %q", molName)
			}
			q, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return lr.errorf("bad charge %q for molecule %q", fields[2], molName)
			}
			charges[i] = q
		}

		if !known {
			unknown++
			continue
		}
		m := &molecules[idx]
		for i := range m.Atoms {
			m.Atoms[i].ReferenceCharge = charges[i]
		}
		m.HasCharges = true
	}

	if unknown > 0 {
		slog.Warn("Charge records without matching molecule", "file", name, "count", unknown)
	}
	return nil
}

// WriteCharges writes one .chg record per molecule of the training set
func WriteCharges(w io.Writer, ts *chem.TrainingSet, charges []float64) error {
	if len(charges) != ts.AtomCount() {
		return fmt.Errorf("got %d charges for %d atoms", len(charges), ts.AtomCount())
	}

	bw := bufio.NewWriter(w)
	for i, m := range ts.Molecules {
		off := ts.Offset(i)
		fmt.Fprintf(bw, "%s\n%d\n", m.Name, len(m.Atoms))
		for j, a := range m.Atoms {
			fmt.Fprintf(bw, "%4d\t%2s\t%9.6f\n", j+1, a.Element.Symbol, charges[off+j])
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}
