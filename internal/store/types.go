package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/cwbudde/eemfit/internal/fit"
)

// RunConfig holds the settings a run was started with.
type RunConfig struct {
	SDFPath           string `json:"sdfPath"`
	CHGPath           string `json:"chgPath"`
	AtomTypes         string `json:"atomTypes"` // Element or ElemBond
	PopulationSize    int    `json:"populationSize"`
	Threads           int    `json:"threads"`
	Seed              int64  `json:"seed"`
	Sampler           string `json:"sampler"`
	Bounds            string `json:"bounds"`
	Method            string `json:"method"`
	PartialIterations int    `json:"partialIterations"`
	FinalIterations   int    `json:"finalIterations"`
}

// TypeParams are the fitted parameters of one atom type
type TypeParams struct {
	Label string  `json:"label"` // e.g. "C 2"
	Count int     `json:"count"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// ParameterSet is a training-set independent copy of fitted parameters
type ParameterSet struct {
	Kappa float64      `json:"kappa"`
	Types []TypeParams `json:"types"`
}

// RunRecord is the persisted outcome of a finished fitting run.
//
// Only the refined best candidate is stored. The population is discarded
// when a run ends, so a stored run cannot be resumed; it can be used as the
// parameter source of later charge calculations.
type RunRecord struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// PopulationID identifies the population the best candidate came from
	PopulationID string `json:"populationId"`

	Config     RunConfig    `json:"config"`
	Parameters ParameterSet `json:"parameters"`
	Stats      fit.Stats    `json:"stats"`

	// Minimized is the number of candidates that qualified for partial minimization
	Minimized int `json:"minimized"`

	Molecules int `json:"molecules"`
	Atoms     int `json:"atoms"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// RunInfo contains metadata about a run without the parameter data.
// Used for listing runs efficiently.
type RunInfo struct {
	RunID      string    `json:"runId"`
	R2         float64   `json:"r2"`
	RMSD       float64   `json:"rmsd"`
	AtomTypes  int       `json:"atomTypes"`
	Molecules  int       `json:"molecules"`
	SDFPath    string    `json:"sdfPath"`
	FinishedAt time.Time `json:"finishedAt"`
}

// ToInfo converts a full RunRecord to RunInfo (metadata only).
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:      r.RunID,
		R2:         r.Stats.R2,
		RMSD:       r.Stats.RMSD,
		AtomTypes:  len(r.Parameters.Types),
		Molecules:  r.Molecules,
		SDFPath:    r.Config.SDFPath,
		FinishedAt: r.FinishedAt,
	}
}

// Duration returns the wall time of the run
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate checks if the record has valid data.
// Returns an error if any required field is missing or invalid.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.Parameters.Types) == 0 {
		return &ValidationError{Field: "Parameters.Types", Reason: "cannot be empty"}
	}
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	if !finite(r.Parameters.Kappa) {
		return &ValidationError{Field: "Parameters.Kappa", Reason: "must be finite"}
	}
	for i, tp := range r.Parameters.Types {
		if tp.Label == "" {
			return &ValidationError{Field: fmt.Sprintf("Parameters.Types[%d].Label", i), Reason: "cannot be empty"}
		}
		if !finite(tp.Alpha) || !finite(tp.Beta) {
			return &ValidationError{Field: fmt.Sprintf("Parameters.Types[%d]", i), Reason: "must be finite"}
		}
	}
	if r.Stats.R2 < 0 || r.Stats.R2 > 1 {
		return &ValidationError{Field: "Stats.R2", Reason: fmt.Sprintf("must be in [0, 1], got %g", r.Stats.R2)}
	}
	if r.Stats.RMSD < 0 {
		return &ValidationError{Field: "Stats.RMSD", Reason: "cannot be negative"}
	}
	if r.Molecules <= 0 || r.Atoms <= 0 {
		return &ValidationError{Field: "Molecules", Reason: "must be positive"}
	}
	if r.FinishedAt.IsZero() {
		return &ValidationError{Field: "FinishedAt", Reason: "cannot be zero"}
	}
	if r.Config.SDFPath == "" {
		return &ValidationError{Field: "Config.SDFPath", Reason: "cannot be empty"}
	}
	if r.Config.PopulationSize <= 0 {
		return &ValidationError{Field: "Config.PopulationSize", Reason: "must be positive"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if the stored parameters can be applied to a training
// set with the given classification and atom type labels.
func (r *RunRecord) IsCompatible(atomTypes string, labels []string) error {
	if r.Config.AtomTypes != atomTypes {
		return &CompatibilityError{
			Field:    "AtomTypes",
			Expected: r.Config.AtomTypes,
			Actual:   atomTypes,
		}
	}
	have := make(map[string]bool, len(r.Parameters.Types))
	for _, tp := range r.Parameters.Types {
		have[tp.Label] = true
	}
	for _, l := range labels {
		if !have[l] {
			return &CompatibilityError{
				Field:    "Parameters",
				Expected: "atom type " + l,
				Actual:   "none",
			}
		}
	}
	return nil
}

// CompatibilityError represents a parameter compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}

// NewParameterSet copies fitted parameters out of a training-set bound representation.
func NewParameterSet(ts *chem.TrainingSet, p fit.Params) ParameterSet {
	ps := ParameterSet{Kappa: p.Kappa, Types: make([]TypeParams, ts.TypeCount())}
	for t, at := range ts.AtomTypes {
		ps.Types[t] = TypeParams{Label: at.Label(), Count: at.Count, Alpha: p.Alpha[t], Beta: p.Beta[t]}
	}
	return ps
}

// Params maps the stored parameters onto the atom types of ts.
// Every atom type of ts must be present.
func (ps ParameterSet) Params(ts *chem.TrainingSet) (fit.Params, error) {
	byLabel := make(map[string]TypeParams, len(ps.Types))
	for _, tp := range ps.Types {
		byLabel[tp.Label] = tp
	}

	p := fit.NewParams(ts.TypeCount())
	p.Kappa = ps.Kappa
	for t, at := range ts.AtomTypes {
		tp, ok := byLabel[at.Label()]
		if !ok {
			return p, fmt.Errorf("no parameters for atom type %s", at.Label())
		}
		p.Alpha[t], p.Beta[t] = tp.Alpha, tp.Beta
	}
	return p, nil
}

// NewRunRecord creates a record for a finished run.
func NewRunRecord(runID, populationID string, ts *chem.TrainingSet, best *fit.Candidate, minimized int, config RunConfig, startedAt time.Time) *RunRecord {
	return &RunRecord{
		RunID:        runID,
		PopulationID: populationID,
		Config:       config,
		Parameters:   NewParameterSet(ts, best.Params),
		Stats:        best.Stats,
		Minimized:    minimized,
		Molecules:    ts.MoleculeCount(),
		Atoms:        ts.AtomCount(),
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
	}
}
