package fit

import (
	"fmt"
	"math"

	"github.com/cwbudde/eemfit/internal/chem"
)

// Params holds one EEM parameter set
type Params struct {
	Kappa float64
	Alpha []float64 // Indexed by atom type
	Beta  []float64 // Indexed by atom type
}

// NewParams allocates a zeroed parameter set for t atom types
func NewParams(t int) Params {
	return Params{
		Alpha: make([]float64, t),
		Beta:  make([]float64, t),
	}
}

// Dim returns the number of tunable scalars (1 + 2T)
func (p Params) Dim() int {
	return 1 + 2*len(p.Alpha)
}

// Vector encodes the parameters as a flat slice: kappa, alpha[0..T), beta[0..T)
func (p Params) Vector() []float64 {
	v := make([]float64, p.Dim())
	p.EncodeTo(v)
	return v
}

// EncodeTo writes the flat encoding into dst, which must have length Dim()
func (p Params) EncodeTo(dst []float64) {
	t := len(p.Alpha)
	dst[0] = p.Kappa
	copy(dst[1:1+t], p.Alpha)
	copy(dst[1+t:1+2*t], p.Beta)
}

// DecodeFrom reads the flat encoding from src into p
func (p *Params) DecodeFrom(src []float64) {
	t := len(p.Alpha)
	p.Kappa = src[0]
	copy(p.Alpha, src[1:1+t])
	copy(p.Beta, src[1+t:1+2*t])
}

// Clone deep-copies the parameter set
func (p Params) Clone() Params {
	c := NewParams(len(p.Alpha))
	c.Kappa = p.Kappa
	copy(c.Alpha, p.Alpha)
	copy(c.Beta, p.Beta)
	return c
}

// ParamName names the i-th scalar of the flat encoding, e.g. "alpha[C 1]"
func ParamName(ts *chem.TrainingSet, i int) string {
	t := ts.TypeCount()
	switch {
	case i == 0:
		return "kappa"
	case i <= t:
		return fmt.Sprintf("alpha[%s]", ts.AtomTypes[i-1].Label())
	default:
		return fmt.Sprintf("beta[%s]", ts.AtomTypes[i-1-t].Label())
	}
}

// Bounds defines the sampling interval of every tunable scalar
type Bounds struct {
	Lower []float64
	Upper []float64
}

// NewBounds allocates bounds for t atom types
func NewBounds(t int) *Bounds {
	return &Bounds{
		Lower: make([]float64, 1+2*t),
		Upper: make([]float64, 1+2*t),
	}
}

// Types returns the number of atom types covered
func (b *Bounds) Types() int {
	return (len(b.Lower) - 1) / 2
}

// Width returns upper-lower of the i-th scalar
func (b *Bounds) Width(i int) float64 {
	return b.Upper[i] - b.Lower[i]
}

// Validate rejects malformed bounds. Every violation is a configuration error.
func (b *Bounds) Validate(ts *chem.TrainingSet) error {
	want := 1 + 2*ts.TypeCount()
	if len(b.Lower) != want || len(b.Upper) != want {
		return &ConfigError{
			Field:  "bounds",
			Reason: fmt.Sprintf("expected %d intervals, got %d/%d", want, len(b.Lower), len(b.Upper)),
		}
	}
	for i := range b.Lower {
		lo, hi := b.Lower[i], b.Upper[i]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return &ConfigError{Field: "bounds " + ParamName(ts, i), Reason: "must be finite"}
		}
		if lo > hi {
			return &ConfigError{
				Field:  "bounds " + ParamName(ts, i),
				Reason: fmt.Sprintf("min %g exceeds max %g", lo, hi),
			}
		}
	}
	return nil
}

// ClampVector clamps all parameters in a flat vector
func (b *Bounds) ClampVector(data []float64) {
	for i := range data {
		data[i] = clamp(data[i], b.Lower[i], b.Upper[i])
	}
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}
