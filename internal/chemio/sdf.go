package chemio

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/eemfit/internal/chem"
)

const maxBondOrder = 3

// lineReader counts lines for error reporting
type lineReader struct {
	scanner *bufio.Scanner
	file    string
	line    int
}

func newLineReader(r io.Reader, file string) *lineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &lineReader{scanner: scanner, file: file}
}

// next returns the next line without its line terminator
func (lr *lineReader) next() (string, error) {
	if !lr.scanner.Scan() {
		if err := lr.scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read %s: %w", lr.file, err)
		}
		return "", io.EOF
	}
	lr.line++
	return strings.TrimRight(lr.scanner.Text(), "\r"), nil
}

func (lr *lineReader) must(what string) (string, error) {
	line, err := lr.next()
	if err == io.EOF {
		return "", lr.errorf("unexpected end of file while reading %s", what)
	}
	return line, err
}

func (lr *lineReader) errorf(format string, args ...any) error {
	return &ParseError{File: lr.file, Line: lr.line, Reason: fmt.Sprintf(format, args...)}
}

// OpenMaybeGzip opens a file and transparently decompresses gzip content
func OpenMaybeGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, _ := br.Peek(2)
	if !bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		return struct {
			io.Reader
			io.Closer
		}{br, f}, nil
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, closers{gz, f}}, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ReadSDFFile reads all valid molecules from a (possibly gzipped) SDF file
func ReadSDFFile(path string) ([]chem.Molecule, error) {
	rc, err := OpenMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadSDF(rc, path)
}

// ReadSDF reads MOL V2000 and V3000 records. Molecules with unknown elements
// or bond orders above 3 are skipped.
func ReadSDF(r io.Reader, name string) ([]chem.Molecule, error) {
	lr := newLineReader(r, name)
	var molecules []chem.Molecule
	skipped := 0

	for {
		m, valid, err := readMolecule(lr)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !valid {
			skipped++
			slog.Warn("Skipping unsupported molecule", "name", m.Name, "file", name)
			continue
		}
		molecules = append(molecules, m)
	}

	slog.Info("Loaded molecules", "file", name, "count", len(molecules), "skipped", skipped)
	return molecules, nil
}

func readMolecule(lr *lineReader) (chem.Molecule, bool, error) {
	var m chem.Molecule

	// Header block: name, program line, comment
	name, err := lr.next()
	if err != nil {
		return m, false, err
	}
	m.Name = strings.TrimSpace(name)
	for i := 0; i < 2; i++ {
		if _, err := lr.next(); err != nil {
			if err == io.EOF && m.Name == "" {
				// Trailing blank lines
				return m, false, io.EOF
			}
			if err == io.EOF {
				return m, false, lr.errorf("unexpected end of file in header of %q", m.Name)
			}
			return m, false, err
		}
	}

	counts, err := lr.must("counts line of " + m.Name)
	if err != nil {
		return m, false, err
	}

	version := "V2000"
	if len(counts) >= 39 {
		version = strings.TrimSpace(counts[34:39])
	}

	var valid bool
	switch version {
	case "V2000":
		valid, err = readV2000(lr, &m, counts)
	case "V3000":
		valid, err = readV3000(lr, &m)
	default:
		return m, false, lr.errorf("molecule %q has unknown MOL version %q", m.Name, version)
	}
	return m, valid, err
}

func fixedInt(line string, start, width int) int {
	if start >= len(line) {
		return 0
	}
	end := min(start+width, len(line))
	v, _ := strconv.Atoi(strings.TrimSpace(line[start:end]))
	return v
}

func newAtom(symbol string, xyz [3]float64) (chem.Atom, bool) {
	el, ok := chem.LookupSymbol(symbol)
	return chem.Atom{Element: el, Position: xyz}, ok
}

func parseXYZ(fields []string) ([3]float64, error) {
	var xyz [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return xyz, err
		}
		xyz[i] = v
	}
	return xyz, nil
}

func bond(m *chem.Molecule, a1, a2, order int) bool {
	for _, a := range [2]int{a1, a2} {
		if m.Atoms[a-1].BondOrder < order {
			m.Atoms[a-1].BondOrder = order
		}
	}
	return order <= maxBondOrder
}

func readV2000(lr *lineReader, m *chem.Molecule, counts string) (bool, error) {
	nAtoms := fixedInt(counts, 0, 3)
	nBonds := fixedInt(counts, 3, 3)
	if nAtoms <= 0 {
		return false, lr.errorf("molecule %q has invalid atom count", m.Name)
	}

	valid := true
	m.Atoms = make([]chem.Atom, nAtoms)
	for i := 0; i < nAtoms; i++ {
		line, err := lr.must(fmt.Sprintf("atom %d of %s", i+1, m.Name))
		if err != nil {
			return false, err
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return false, lr.errorf("malformed atom line in molecule %q", m.Name)
		}
		xyz, err := parseXYZ(fields)
		if err != nil {
			return false, lr.errorf("bad coordinates in molecule %q: %v", m.Name, err)
		}
		atom, ok := newAtom(fields[3], xyz)
		valid = valid && ok
		m.Atoms[i] = atom
	}

	for i := 0; i < nBonds; i++ {
		line, err := lr.must(fmt.Sprintf("bond %d of %s", i+1, m.Name))
		if err != nil {
			return false, err
		}
		a1, a2, order := fixedInt(line, 0, 3), fixedInt(line, 3, 3), fixedInt(line, 6, 3)
		if a1 < 1 || a2 < 1 || a1 > nAtoms || a2 > nAtoms {
			return false, lr.errorf("invalid atom number in bond of molecule %q", m.Name)
		}
		valid = bond(m, a1, a2, order) && valid
	}

	// Properties block up to the record separator
	var charge int
	for {
		line, err := lr.must("properties of " + m.Name)
		if err != nil {
			return false, err
		}
		if strings.HasPrefix(line, "$$$$") {
			break
		}
		if strings.HasPrefix(line, "M  CHG") {
			entries := fixedInt(line, 6, 3)
			for e := 0; e < entries; e++ {
				charge += fixedInt(line, 14+8*e, 3)
			}
		}
	}
	m.TotalCharge = float64(charge)
	return valid, nil
}

func v30Payload(lr *lineReader, line, want string) (string, error) {
	if !strings.HasPrefix(line, "M  V30") {
		return "", lr.errorf("expected %s entry", want)
	}
	return strings.TrimSpace(line[len("M  V30"):]), nil
}

func expectV30(lr *lineReader, m *chem.Molecule, want string) error {
	line, err := lr.must(want + " of " + m.Name)
	if err != nil {
		return err
	}
	payload, err := v30Payload(lr, line, want)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(payload, want) {
		return lr.errorf("expected %q in molecule %q", want, m.Name)
	}
	return nil
}

func chargeField(line string) int {
	idx := strings.Index(line, "CHG=")
	if idx < 0 {
		return 0
	}
	rest := line[idx+4:]
	end := strings.IndexAny(rest, " \t")
	if end >= 0 {
		rest = rest[:end]
	}
	v, _ := strconv.Atoi(rest)
	return v
}

func readV3000(lr *lineReader, m *chem.Molecule) (bool, error) {
	if err := expectV30(lr, m, "BEGIN CTAB"); err != nil {
		return false, err
	}
	line, err := lr.must("COUNTS of " + m.Name)
	if err != nil {
		return false, err
	}
	payload, err := v30Payload(lr, line, "COUNTS")
	if err != nil {
		return false, err
	}
	fields := strings.Fields(payload)
	if len(fields) < 3 || fields[0] != "COUNTS" {
		return false, lr.errorf("malformed COUNTS entry in molecule %q", m.Name)
	}
	nAtoms, err1 := strconv.Atoi(fields[1])
	nBonds, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil || nAtoms <= 0 {
		return false, lr.errorf("invalid counts in molecule %q", m.Name)
	}

	if err := expectV30(lr, m, "BEGIN ATOM"); err != nil {
		return false, err
	}

	valid := true
	charge := 0
	m.Atoms = make([]chem.Atom, nAtoms)
	for i := 0; i < nAtoms; i++ {
		line, err := lr.must(fmt.Sprintf("atom %d of %s", i+1, m.Name))
		if err != nil {
			return false, err
		}
		payload, err := v30Payload(lr, line, "ATOM")
		if err != nil {
			return false, err
		}
		charge += chargeField(payload)
		// Entries ending in '-' continue on the next line
		for strings.HasSuffix(line, "-") {
			if line, err = lr.must("continued atom of " + m.Name); err != nil {
				return false, err
			}
			charge += chargeField(line)
		}

		fields := strings.Fields(payload)
		if len(fields) < 5 {
			return false, lr.errorf("malformed atom entry in molecule %q", m.Name)
		}
		xyz, err := parseXYZ(fields[2:5])
		if err != nil {
			return false, lr.errorf("bad coordinates in molecule %q: %v", m.Name, err)
		}
		atom, ok := newAtom(fields[1], xyz)
		valid = valid && ok
		m.Atoms[i] = atom
	}
	if err := expectV30(lr, m, "END ATOM"); err != nil {
		return false, err
	}

	if err := expectV30(lr, m, "BEGIN BOND"); err != nil {
		return false, err
	}
	for i := 0; i < nBonds; i++ {
		line, err := lr.must(fmt.Sprintf("bond %d of %s", i+1, m.Name))
		if err != nil {
			return false, err
		}
		payload, err := v30Payload(lr, line, "BOND")
		if err != nil {
			return false, err
		}
		f := strings.Fields(payload)
		if len(f) < 4 {
			return false, lr.errorf("malformed bond entry in molecule %q", m.Name)
		}
		order, _ := strconv.Atoi(f[1])
		a1, _ := strconv.Atoi(f[2])
		a2, _ := strconv.Atoi(f[3])
		if a1 < 1 || a2 < 1 || a1 > nAtoms || a2 > nAtoms {
			return false, lr.errorf("invalid atom number in bond of molecule %q", m.Name)
		}
		valid = bond(m, a1, a2, order) && valid
	}
	if err := expectV30(lr, m, "END BOND"); err != nil {
		return false, err
	}

	for _, stop := range []string{"M  V30 END CTAB", "$$$$"} {
		for {
			line, err := lr.must("end of " + m.Name)
			if err != nil {
				return false, err
			}
			if strings.HasPrefix(line, stop) {
				break
			}
		}
	}

	m.TotalCharge = float64(charge)
	return valid, nil
}
