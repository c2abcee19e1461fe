package fit

import (
	"errors"
	"fmt"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/google/uuid"
)

// ChargeCalculator computes partial charges for a parameter set.
// Implementations must be deterministic and safe for concurrent use.
type ChargeCalculator interface {
	// CalculateCharges fills charges (one per atom of the training set) and
	// cond (one condition number per molecule).
	CalculateCharges(ts *chem.TrainingSet, p Params, charges, cond []float64) error
}

// Stats are the aggregate fit statistics of a candidate
type Stats struct {
	R        float64 `json:"r"`        // Mean of per-molecule Pearson R
	R2       float64 `json:"r2"`       // Square of R
	RMSD     float64 `json:"rmsd"`     // Mean of per-molecule RMSD
	MSE      float64 `json:"mse"`      // Sum of squared differences over all atoms
	D        float64 `json:"d"`        // Mean absolute deviation over all atoms
	Spearman float64 `json:"spearman"` // Mean of per-molecule Spearman rank correlation
	Cond     float64 `json:"cond"`     // Mean condition number of the EEM systems

	// Degenerate counts molecules left out of R, R2 and Spearman
	Degenerate int `json:"degenerate"`
}

// MoleculeStats are the fit statistics of a single molecule
type MoleculeStats struct {
	AverageCharge float64 `json:"averageCharge"`
	R             float64 `json:"r"`
	R2            float64 `json:"r2"`
	Spearman      float64 `json:"spearman"`
	RMSD          float64 `json:"rmsd"`
	DAvg          float64 `json:"dAvg"`
	DMax          float64 `json:"dMax"`
	Cond          float64 `json:"cond"`

	// Degenerate is set when the reference or computed charges have zero variance.
	// R, R2 and Spearman are zero in that case.
	Degenerate bool `json:"degenerate"`
}

// AtomTypeStats are absolute deviations accumulated over all atoms of a type
type AtomTypeStats struct {
	AvgD float64 `json:"avgD"`
	MaxD float64 `json:"maxD"`
}

// Candidate is one parameter vector together with its derived charges and statistics.
//
// Charges, Conditions and every statistics field are derived from Params.
// Changing parameters through SetParams or SetVector marks them stale until
// the next Evaluate.
type Candidate struct {
	Params

	Charges    []float64
	Conditions []float64

	Stats     Stats
	Molecules []MoleculeStats
	AtomTypes []AtomTypeStats

	// PopulationID identifies the owning population; it never controls lifetime.
	PopulationID string
	// Index is the position in the owning population, -1 when standalone.
	Index int

	stale bool
}

// NewCandidate allocates a standalone candidate sized for the training set
func NewCandidate(ts *chem.TrainingSet) *Candidate {
	return &Candidate{
		Params:     NewParams(ts.TypeCount()),
		Charges:    make([]float64, ts.AtomCount()),
		Conditions: make([]float64, ts.MoleculeCount()),
		Molecules:  make([]MoleculeStats, ts.MoleculeCount()),
		AtomTypes:  make([]AtomTypeStats, ts.TypeCount()),
		Index:      -1,
		stale:      true,
	}
}

// Stale reports whether derived fields no longer match the parameters
func (c *Candidate) Stale() bool { return c.stale }

// SetParams copies p into the candidate and invalidates derived fields
func (c *Candidate) SetParams(p Params) {
	c.Kappa = p.Kappa
	copy(c.Alpha, p.Alpha)
	copy(c.Beta, p.Beta)
	c.stale = true
}

// SetVector decodes a flat vector into the candidate and invalidates derived fields
func (c *Candidate) SetVector(v []float64) {
	c.DecodeFrom(v)
	c.stale = true
}

// Clone returns an independently allocated deep copy, detached from any population
func (c *Candidate) Clone() *Candidate {
	out := &Candidate{
		Params:     c.Params.Clone(),
		Charges:    append([]float64(nil), c.Charges...),
		Conditions: append([]float64(nil), c.Conditions...),
		Stats:      c.Stats,
		Molecules:  append([]MoleculeStats(nil), c.Molecules...),
		AtomTypes:  append([]AtomTypeStats(nil), c.AtomTypes...),
		Index:      -1,
		stale:      c.stale,
	}
	return out
}

// copyFrom overwrites parameters and derived data with those of src.
// Both candidates must be sized for the same training set.
func (c *Candidate) copyFrom(src *Candidate) {
	c.Kappa = src.Kappa
	copy(c.Alpha, src.Alpha)
	copy(c.Beta, src.Beta)
	copy(c.Charges, src.Charges)
	copy(c.Conditions, src.Conditions)
	copy(c.Molecules, src.Molecules)
	copy(c.AtomTypes, src.AtomTypes)
	c.Stats = src.Stats
	c.stale = src.stale
}

// Evaluate recomputes charges and statistics for the current parameters.
func Evaluate(ts *chem.TrainingSet, calc ChargeCalculator, c *Candidate) error {
	if err := calc.CalculateCharges(ts, c.Params, c.Charges, c.Conditions); err != nil {
		var numErr *NumericalError
		if errors.As(err, &numErr) {
			numErr.Candidate = c.Index
			return numErr
		}
		return &NumericalError{Candidate: c.Index, Err: err}
	}
	if err := CalculateStatistics(ts, c); err != nil {
		return err
	}
	c.stale = false
	return nil
}

// Score is R2 signed by the aggregate correlation, so that an
// anti-correlated fit always ranks below an uncorrelated one.
func Score(s Stats) float64 {
	if s.R < 0 {
		return -s.R2
	}
	return s.R2
}

// Better reports whether a is a strictly better fit than b:
// higher Score first, lower RMSD on ties.
func Better(a, b Stats) bool {
	if sa, sb := Score(a), Score(b); sa != sb {
		return sa > sb
	}
	return a.RMSD < b.RMSD
}

// Promising reports whether a candidate qualifies for local refinement
func Promising(s Stats) bool {
	return s.R2 > 0.2 && s.R > 0
}

// Population is the set of candidates considered in one optimization run.
// It owns the candidates and their arrays.
type Population struct {
	ID         string
	Candidates []*Candidate

	best int
}

// NewPopulation allocates size candidates for the training set
func NewPopulation(ts *chem.TrainingSet, size int) (*Population, error) {
	if size <= 0 {
		return nil, &ConfigError{Field: "population size", Reason: fmt.Sprintf("must be positive, got %d", size)}
	}

	p := &Population{
		ID:         uuid.New().String(),
		Candidates: make([]*Candidate, size),
		best:       -1,
	}
	for i := range p.Candidates {
		c := NewCandidate(ts)
		c.PopulationID = p.ID
		c.Index = i
		p.Candidates[i] = c
	}
	return p, nil
}

// Size returns the number of candidates
func (p *Population) Size() int { return len(p.Candidates) }

// SelectBest picks the best candidate by Better, ties resolved by population order.
// Every candidate must be evaluated.
func (p *Population) SelectBest() (*Candidate, error) {
	if len(p.Candidates) == 0 {
		return nil, &ConfigError{Field: "population", Reason: "is empty"}
	}

	best := -1
	for i, c := range p.Candidates {
		if c.Stale() {
			return nil, fmt.Errorf("candidate %d has stale statistics", i)
		}
		if best < 0 || Better(c.Stats, p.Candidates[best].Stats) {
			best = i
		}
	}
	p.best = best
	return p.Candidates[best], nil
}

// Best returns the candidate chosen by the last SelectBest, or nil
func (p *Population) Best() *Candidate {
	if p.best < 0 {
		return nil
	}
	return p.Candidates[p.best]
}

// Release drops all candidates. Candidates extracted with Clone stay valid.
func (p *Population) Release() {
	for i := range p.Candidates {
		p.Candidates[i] = nil
	}
	p.Candidates = nil
	p.best = -1
}
