package chemio

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/cwbudde/eemfit/internal/fit"
)

// ParPathEnv names a directory searched for parameter files not found as given
const ParPathEnv = "EEMFIT_PAR_PATH"

type parameterSet struct {
	XMLName    xml.Name      `xml:"ParameterSet"`
	Parameters parametersXML `xml:"Parameters"`
}

type parametersXML struct {
	AtomType string       `xml:"AtomType,attr"`
	Kappa    string       `xml:"Kappa,attr"`
	Elements []elementXML `xml:"Element"`
}

type elementXML struct {
	Name  string    `xml:"Name,attr"`
	Bonds []bondXML `xml:"Bond"`
}

type bondXML struct {
	Type string `xml:"Type,attr,omitempty"`
	A    string `xml:"A,attr"`
	B    string `xml:"B,attr"`
}

// WriteParameters encodes p as a ParameterSet XML document
func WriteParameters(w io.Writer, ts *chem.TrainingSet, p fit.Params) error {
	doc := parameterSet{Parameters: parametersXML{
		AtomType: string(ts.Classification),
		Kappa:    formatParam(p.Kappa),
	}}

	for t, at := range ts.AtomTypes {
		n := len(doc.Parameters.Elements)
		if n == 0 || doc.Parameters.Elements[n-1].Name != at.Element.Symbol {
			doc.Parameters.Elements = append(doc.Parameters.Elements, elementXML{Name: at.Element.Symbol})
			n++
		}
		b := bondXML{A: formatParam(p.Alpha[t]), B: formatParam(p.Beta[t])}
		if ts.Classification == chem.ClassifyElemBond {
			b.Type = strconv.Itoa(at.BondOrder)
		}
		doc.Parameters.Elements[n-1].Bonds = append(doc.Parameters.Elements[n-1].Bonds, b)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// formatParam writes the shortest text that parses back to v exactly
func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// OpenParameters opens a parameter file, falling back to the EEMFIT_PAR_PATH directory
func OpenParameters(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err == nil {
		return f, nil
	}
	dir := os.Getenv(ParPathEnv)
	if !errors.Is(err, os.ErrNotExist) || dir == "" || filepath.IsAbs(path) {
		return nil, fmt.Errorf("failed to open parameter file: %w", err)
	}
	f, err2 := os.Open(filepath.Join(dir, path))
	if err2 != nil {
		return nil, fmt.Errorf("failed to open parameter file: %w", err)
	}
	return f, nil
}

// ReadParameters decodes a ParameterSet XML document for the training set.
// It returns the labels of atom types the file has no parameters for; their
// alpha and beta are left at zero.
func ReadParameters(r io.Reader, name string, ts *chem.TrainingSet) (fit.Params, []string, error) {
	p := fit.NewParams(ts.TypeCount())

	var doc parameterSet
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return p, nil, &ParseError{File: name, Reason: err.Error()}
	}

	cls, err := chem.ParseClassification(doc.Parameters.AtomType)
	if err != nil {
		return p, nil, &ParseError{File: name, Reason: err.Error()}
	}
	if cls != ts.Classification {
		return p, nil, &ParseError{File: name, Reason: fmt.Sprintf("parameters use %s atom types, training set uses %s", cls, ts.Classification)}
	}

	if p.Kappa, err = strconv.ParseFloat(doc.Parameters.Kappa, 64); err != nil {
		return p, nil, &ParseError{File: name, Reason: fmt.Sprintf("invalid kappa %q", doc.Parameters.Kappa)}
	}

	found := make([]bool, ts.TypeCount())
	for _, el := range doc.Parameters.Elements {
		for _, b := range el.Bonds {
			order := 0
			if cls == chem.ClassifyElemBond {
				if order, err = strconv.Atoi(b.Type); err != nil {
					return p, nil, &ParseError{File: name, Reason: fmt.Sprintf("invalid bond type %q for %s", b.Type, el.Name)}
				}
			}
			t, ok := ts.TypeIndex(el.Name, order)
			if !ok {
				continue
			}
			alpha, errA := strconv.ParseFloat(b.A, 64)
			beta, errB := strconv.ParseFloat(b.B, 64)
			if errA != nil || errB != nil {
				return p, nil, &ParseError{File: name, Reason: fmt.Sprintf("invalid parameters for %s", el.Name)}
			}
			p.Alpha[t], p.Beta[t] = alpha, beta
			found[t] = true
		}
	}

	var missing []string
	for t, ok := range found {
		if !ok {
			missing = append(missing, ts.AtomTypes[t].Label())
		}
	}
	return p, missing, nil
}
