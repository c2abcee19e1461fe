// Package chemio reads and writes the file formats used around a fit:
// SDF molecule sets, .chg charge files, .par parameter sets and charge reports.
package chemio

import "fmt"

// ParseError locates a problem in an input file
type ParseError struct {
	File   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}
