package fit

import (
	"errors"
	"fmt"
)

// ErrConfig matches every configuration error of a run.
// Use errors.Is(err, ErrConfig) to detect them.
var ErrConfig = &ConfigError{}

// ConfigError is a fatal configuration problem. The run cannot produce a usable result.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "configuration error"
	}
	return "configuration error: " + e.Field + " " + e.Reason
}

func (e *ConfigError) Is(target error) bool {
	_, ok := target.(*ConfigError)
	return ok
}

// ErrNoPromisingCandidates is returned when no candidate of the population
// qualified for local refinement.
var ErrNoPromisingCandidates = errors.New("no candidate in population was worth minimizing")

// noPromisingError reports the population size so the user can enlarge it.
type noPromisingError struct {
	populationSize int
}

func (e *noPromisingError) Error() string {
	return fmt.Sprintf("%v; choose a population larger than %d or widen the bounds",
		ErrNoPromisingCandidates, e.populationSize)
}

func (e *noPromisingError) Is(target error) bool {
	return target == ErrNoPromisingCandidates || target == ErrConfig
}

// NumericalError is a fatal failure of the charge calculation for one candidate.
type NumericalError struct {
	Candidate int    // Population index, -1 for standalone candidates
	Molecule  string // Offending molecule, if known
	Err       error
}

func (e *NumericalError) Error() string {
	msg := fmt.Sprintf("numerical error in candidate %d", e.Candidate)
	if e.Molecule != "" {
		msg += fmt.Sprintf(" (molecule %q)", e.Molecule)
	}
	return msg + ": " + e.Err.Error()
}

func (e *NumericalError) Unwrap() error { return e.Err }
