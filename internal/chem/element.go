package chem

import "strings"

// Element describes a chemical element known to the atom typer.
type Element struct {
	Z      int
	Symbol string
	// IonizationEnergy is the first ionization energy in eV
	IonizationEnergy float64
	// ElectronAffinity is the electron affinity in eV
	ElectronAffinity float64
}

// Electronegativity returns the Mulliken electronegativity (IE+EA)/2.
func (e Element) Electronegativity() float64 {
	return (e.IonizationEnergy + e.ElectronAffinity) / 2
}

// Hardness returns the chemical hardness IE-EA.
func (e Element) Hardness() float64 {
	return e.IonizationEnergy - e.ElectronAffinity
}

var elements = []Element{
	{1, "H", 13.598, 0.754},
	{3, "Li", 5.392, 0.618},
	{4, "Be", 9.323, 0.0},
	{5, "B", 8.298, 0.277},
	{6, "C", 11.260, 1.262},
	{7, "N", 14.534, -0.07},
	{8, "O", 13.618, 1.461},
	{9, "F", 17.423, 3.401},
	{11, "Na", 5.139, 0.548},
	{12, "Mg", 7.646, 0.0},
	{13, "Al", 5.986, 0.433},
	{14, "Si", 8.152, 1.390},
	{15, "P", 10.487, 0.746},
	{16, "S", 10.360, 2.077},
	{17, "Cl", 12.968, 3.613},
	{19, "K", 4.341, 0.501},
	{20, "Ca", 6.113, 0.025},
	{26, "Fe", 7.902, 0.151},
	{29, "Cu", 7.726, 1.235},
	{30, "Zn", 9.394, 0.0},
	{34, "Se", 9.752, 2.021},
	{35, "Br", 11.814, 3.364},
	{53, "I", 10.451, 3.059},
}

var (
	bySymbol = make(map[string]Element, len(elements))
	byZ      = make(map[int]Element, len(elements))
)

func init() {
	for _, e := range elements {
		bySymbol[strings.ToUpper(e.Symbol)] = e
		byZ[e.Z] = e
	}
}

// LookupSymbol finds an element by symbol (case-insensitive).
func LookupSymbol(symbol string) (Element, bool) {
	e, ok := bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return e, ok
}

// LookupZ finds an element by atomic number.
func LookupZ(z int) (Element, bool) {
	e, ok := byZ[z]
	return e, ok
}
