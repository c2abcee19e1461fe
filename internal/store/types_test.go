package store

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/cwbudde/eemfit/internal/fit"
)

func TestRunRecordValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*RunRecord)
		field  string
	}{
		{"valid", func(*RunRecord) {}, ""},
		{"empty id", func(r *RunRecord) { r.RunID = "" }, "RunID"},
		{"no types", func(r *RunRecord) { r.Parameters.Types = nil }, "Parameters.Types"},
		{"nan kappa", func(r *RunRecord) { r.Parameters.Kappa = math.NaN() }, "Parameters.Kappa"},
		{"inf alpha", func(r *RunRecord) { r.Parameters.Types[0].Alpha = math.Inf(1) }, "Parameters.Types[0]"},
		{"r2 above one", func(r *RunRecord) { r.Stats.R2 = 1.5 }, "Stats.R2"},
		{"negative rmsd", func(r *RunRecord) { r.Stats.RMSD = -1 }, "Stats.RMSD"},
		{"no sdf", func(r *RunRecord) { r.Config.SDFPath = "" }, "Config.SDFPath"},
		{"zero population", func(r *RunRecord) { r.Config.PopulationSize = 0 }, "Config.PopulationSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := createTestRun("run")
			tt.modify(rec)
			err := rec.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Expected valid record, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("Expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestRunRecordIsCompatible(t *testing.T) {
	rec := createTestRun("run")

	if err := rec.IsCompatible("ElemBond", []string{"C 1", "H 1"}); err != nil {
		t.Errorf("Expected compatible, got %v", err)
	}

	var cerr *CompatibilityError
	if err := rec.IsCompatible("Element", []string{"C"}); !errors.As(err, &cerr) || cerr.Field != "AtomTypes" {
		t.Errorf("Expected AtomTypes mismatch, got %v", err)
	}
	if err := rec.IsCompatible("ElemBond", []string{"O 2"}); !errors.As(err, &cerr) || cerr.Field != "Parameters" {
		t.Errorf("Expected missing parameter error, got %v", err)
	}
}

func testTrainingSet(t *testing.T) *chem.TrainingSet {
	t.Helper()
	h, _ := chem.LookupSymbol("H")
	o, _ := chem.LookupSymbol("O")
	ts, err := chem.NewTrainingSet([]chem.Molecule{{
		Name: "water",
		Atoms: []chem.Atom{
			{Element: o, BondOrder: 1, Position: [3]float64{0, 0, 0}},
			{Element: h, BondOrder: 1, Position: [3]float64{0.96, 0, 0}},
			{Element: h, BondOrder: 1, Position: [3]float64{-0.24, 0.93, 0}},
		},
	}}, chem.ClassifyElemBond)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestParameterSetRoundTrip(t *testing.T) {
	ts := testTrainingSet(t)
	p := fit.NewParams(ts.TypeCount())
	p.Kappa = 0.4
	p.Alpha[0], p.Beta[0] = 2.4, 0.9
	p.Alpha[1], p.Beta[1] = 2.9, 0.7

	ps := NewParameterSet(ts, p)
	if ps.Types[0].Label != "H 1" || ps.Types[0].Count != 2 {
		t.Errorf("Unexpected first type %+v", ps.Types[0])
	}

	got, err := ps.Params(ts)
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if got.Kappa != 0.4 || got.Alpha[1] != 2.9 || got.Beta[0] != 0.9 {
		t.Errorf("Round trip mismatch: %+v", got)
	}

	ps.Types = ps.Types[:1]
	if _, err := ps.Params(ts); err == nil {
		t.Error("Expected error for missing atom type")
	}
}

func TestNewRunRecord(t *testing.T) {
	ts := testTrainingSet(t)
	best := fit.NewCandidate(ts)
	best.Kappa = 0.3
	best.Stats = fit.Stats{R2: 0.7}

	rec := NewRunRecord("run-1", "pop-1", ts, best, 5, RunConfig{SDFPath: "w.sdf", PopulationSize: 10}, time.Now())
	if rec.PopulationID != "pop-1" || rec.Atoms != 3 || rec.Molecules != 1 {
		t.Errorf("Unexpected record %+v", rec)
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Expected valid record, got %v", err)
	}
	if rec.Duration() < 0 {
		t.Errorf("Negative duration %v", rec.Duration())
	}
}
