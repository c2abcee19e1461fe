package chem

import (
	"errors"
	"fmt"
	"sort"
)

// Classification selects how atoms are grouped into atom types
type Classification string

const (
	// ClassifyElement groups atoms by element only
	ClassifyElement Classification = "Element"
	// ClassifyElemBond groups atoms by element and highest bond order
	ClassifyElemBond Classification = "ElemBond"
)

// ParseClassification converts a user supplied name into a Classification.
func ParseClassification(s string) (Classification, error) {
	switch Classification(s) {
	case ClassifyElement, ClassifyElemBond:
		return Classification(s), nil
	case "":
		return ClassifyElemBond, nil
	}
	return "", fmt.Errorf("unknown atom type classification: %q", s)
}

// AtomType is one class of atoms sharing the same alpha/beta parameters
type AtomType struct {
	Element   Element
	BondOrder int // Zero under ClassifyElement
	Count     int // Number of atoms of this type in the training set
}

// Label formats the type the way it appears in reports, e.g. "C 2" or "O".
func (t AtomType) Label() string {
	if t.BondOrder == 0 {
		return t.Element.Symbol
	}
	return fmt.Sprintf("%s %d", t.Element.Symbol, t.BondOrder)
}

// ErrEmptyTrainingSet is returned when no usable molecule remains.
var ErrEmptyTrainingSet = errors.New("training set contains no molecules")

// TrainingSet is the read-only collection of molecules the parameters are fitted against.
// It must not be mutated after NewTrainingSet returns; it is shared by all workers.
type TrainingSet struct {
	Molecules      []Molecule
	AtomTypes      []AtomType
	Classification Classification

	offsets   []int
	atomCount int
}

type typeKey struct {
	z, bond int
}

// NewTrainingSet assigns atom types and computes per-molecule reference averages.
func NewTrainingSet(molecules []Molecule, cls Classification) (*TrainingSet, error) {
	if len(molecules) == 0 {
		return nil, ErrEmptyTrainingSet
	}

	ts := &TrainingSet{
		Molecules:      molecules,
		Classification: cls,
		offsets:        make([]int, len(molecules)),
	}

	keys := make(map[typeKey]int)
	var order []typeKey
	for i := range ts.Molecules {
		m := &ts.Molecules[i]
		if len(m.Atoms) == 0 {
			return nil, fmt.Errorf("molecule %q has no atoms", m.Name)
		}
		ts.offsets[i] = ts.atomCount
		ts.atomCount += len(m.Atoms)

		var sum float64
		for _, a := range m.Atoms {
			sum += a.ReferenceCharge
			k := ts.keyFor(a)
			if _, ok := keys[k]; !ok {
				keys[k] = 0
				order = append(order, k)
			}
		}
		m.ReferenceAverage = sum / float64(len(m.Atoms))
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].z != order[j].z {
			return order[i].z < order[j].z
		}
		return order[i].bond < order[j].bond
	})

	ts.AtomTypes = make([]AtomType, len(order))
	for idx, k := range order {
		keys[k] = idx
		el, _ := LookupZ(k.z)
		ts.AtomTypes[idx] = AtomType{Element: el, BondOrder: k.bond}
	}

	for i := range ts.Molecules {
		for j := range ts.Molecules[i].Atoms {
			a := &ts.Molecules[i].Atoms[j]
			a.Type = keys[ts.keyFor(*a)]
			ts.AtomTypes[a.Type].Count++
		}
	}

	return ts, nil
}

func (ts *TrainingSet) keyFor(a Atom) typeKey {
	if ts.Classification == ClassifyElement {
		return typeKey{z: a.Element.Z}
	}
	return typeKey{z: a.Element.Z, bond: a.BondOrder}
}

// AtomCount returns the total number of atoms across all molecules.
func (ts *TrainingSet) AtomCount() int { return ts.atomCount }

// MoleculeCount returns the number of molecules.
func (ts *TrainingSet) MoleculeCount() int { return len(ts.Molecules) }

// TypeCount returns the number of distinct atom types.
func (ts *TrainingSet) TypeCount() int { return len(ts.AtomTypes) }

// Offset returns the global index of the first atom of molecule i.
func (ts *TrainingSet) Offset(i int) int { return ts.offsets[i] }

// TypeIndex finds the atom type for an element symbol and bond order.
// The bond order is ignored under ClassifyElement.
func (ts *TrainingSet) TypeIndex(symbol string, bondOrder int) (int, bool) {
	el, ok := LookupSymbol(symbol)
	if !ok {
		return 0, false
	}
	for i, t := range ts.AtomTypes {
		if t.Element.Z != el.Z {
			continue
		}
		if ts.Classification == ClassifyElement || t.BondOrder == bondOrder {
			return i, true
		}
	}
	return 0, false
}
