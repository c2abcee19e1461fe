package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/eemfit/internal/config"
)

type fixtureAtom struct {
	symbol  string
	x, y, z float64
	charge  float64
}

type fixtureMolecule struct {
	name  string
	atoms []fixtureAtom
	bonds [][3]int
}

var fixtureMolecules = []fixtureMolecule{
	{
		name: "water",
		atoms: []fixtureAtom{
			{"O", 0, 0, 0, -0.8},
			{"H", 0.9572, 0, 0, 0.4},
			{"H", -0.24, 0.9266, 0, 0.4},
		},
		bonds: [][3]int{{1, 2, 1}, {1, 3, 1}},
	},
	{
		name: "formaldehyde",
		atoms: []fixtureAtom{
			{"C", 0, 0, 0, 0.3},
			{"O", 1.21, 0, 0, -0.45},
			{"H", -0.55, 0.94, 0, 0.075},
			{"H", -0.55, -0.94, 0, 0.075},
		},
		bonds: [][3]int{{1, 2, 2}, {1, 3, 1}, {1, 4, 1}},
	},
	{
		name: "methanol",
		atoms: []fixtureAtom{
			{"C", 0, 0, 0, 0.12},
			{"O", 1.43, 0, 0, -0.68},
			{"H", 1.75, 0.9, 0, 0.42},
			{"H", -0.36, 1.03, 0, 0.05},
			{"H", -0.36, -0.51, 0.89, 0.045},
			{"H", -0.36, -0.51, -0.89, 0.045},
		},
		bonds: [][3]int{{1, 2, 1}, {2, 3, 1}, {1, 4, 1}, {1, 5, 1}, {1, 6, 1}},
	},
}

// writeTrainingSet writes the fixture molecules as SDF and reference charges
func writeTrainingSet(t *testing.T) (sdfPath, chgPath string) {
	t.Helper()

	var sdf, chg strings.Builder
	for _, m := range fixtureMolecules {
		fmt.Fprintf(&sdf, "%s\n  eemfit\n\n", m.name)
		fmt.Fprintf(&sdf, "%3d%3d  0  0  0  0  0  0  0  0999 V2000\n", len(m.atoms), len(m.bonds))
		for _, a := range m.atoms {
			fmt.Fprintf(&sdf, "%10.4f%10.4f%10.4f %-3s 0  0  0  0  0  0  0  0  0  0  0  0\n", a.x, a.y, a.z, a.symbol)
		}
		for _, b := range m.bonds {
			fmt.Fprintf(&sdf, "%3d%3d%3d  0\n", b[0], b[1], b[2])
		}
		sdf.WriteString("M  END\n$$$$\n")

		fmt.Fprintf(&chg, "%s\n%d\n", m.name, len(m.atoms))
		for i, a := range m.atoms {
			fmt.Fprintf(&chg, "%4d\t%2s\t%9.6f\n", i+1, a.symbol, a.charge)
		}
		chg.WriteString("\n")
	}

	dir := t.TempDir()
	sdfPath = filepath.Join(dir, "set.sdf")
	chgPath = filepath.Join(dir, "set.chg")
	if err := os.WriteFile(sdfPath, []byte(sdf.String()), 0644); err != nil {
		t.Fatalf("Failed to write SDF: %v", err)
	}
	if err := os.WriteFile(chgPath, []byte(chg.String()), 0644); err != nil {
		t.Fatalf("Failed to write charges: %v", err)
	}
	return sdfPath, chgPath
}

// testConfig returns a small, fast configuration
func testConfig() config.Config {
	cfg := config.Default()
	cfg.AtomTypes = "Element"
	cfg.Optimizer.Threads = 2
	cfg.Optimizer.PopulationSize = 30
	cfg.Optimizer.PartialIterations = 2
	cfg.Optimizer.FinalIterations = 5
	return cfg
}
