package chem

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Atom is a single atom of a molecule
type Atom struct {
	Element         Element
	Position        [3]float64 // Cartesian coordinates in Å
	BondOrder       int        // Highest order of any bond the atom takes part in
	ReferenceCharge float64
	Type            int // Index into TrainingSet.AtomTypes, assigned by NewTrainingSet
}

// Molecule is one record of the training set
type Molecule struct {
	Name        string
	Atoms       []Atom
	TotalCharge float64 // Sum of formal charges
	HasCharges  bool    // Reference charges were loaded

	// ReferenceAverage is the mean reference charge, filled by NewTrainingSet
	ReferenceAverage float64
}

// Distance returns the Euclidean distance between atoms i and j.
func (m *Molecule) Distance(i, j int) float64 {
	a, b := m.Atoms[i].Position, m.Atoms[j].Position
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// SumFormula returns the Hill-ordered sum formula (C first, H second, rest alphabetical).
func (m *Molecule) SumFormula() string {
	counts := make(map[string]int)
	for _, a := range m.Atoms {
		counts[a.Element.Symbol]++
	}

	symbols := make([]string, 0, len(counts))
	for s := range counts {
		symbols = append(symbols, s)
	}
	_, hasCarbon := counts["C"]
	sort.Slice(symbols, func(i, j int) bool {
		ri, rj := hillRank(symbols[i], hasCarbon), hillRank(symbols[j], hasCarbon)
		if ri != rj {
			return ri < rj
		}
		return symbols[i] < symbols[j]
	})

	var b strings.Builder
	for _, s := range symbols {
		b.WriteString(s)
		if counts[s] > 1 {
			fmt.Fprintf(&b, "%d", counts[s])
		}
	}
	return b.String()
}

func hillRank(symbol string, hasCarbon bool) int {
	if !hasCarbon {
		return 2
	}
	switch symbol {
	case "C":
		return 0
	case "H":
		return 1
	}
	return 2
}
