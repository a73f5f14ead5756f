package structure

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Format is a coordinate file format.
type Format int

const (
	FormatPDB Format = iota
	FormatCIF
)

// FormatOf guesses the format from a file name.
func FormatOf(path string) Format {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".cif") || strings.HasSuffix(lower, ".mmcif") {
		return FormatCIF
	}
	return FormatPDB
}

// ParseFile reads the CA trace of a PDB or mmCIF file.
func ParseFile(path string) (Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return Structure{}, err
	}
	defer f.Close()
	s, err := Parse(f, FormatOf(path))
	if err != nil {
		return Structure{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse reads CA atoms from r. A structure without CA atoms is an error.
func Parse(r io.Reader, format Format) (Structure, error) {
	var (
		s   Structure
		err error
	)
	if format == FormatCIF {
		s, err = parseCIF(r)
	} else {
		s, err = parsePDB(r)
	}
	if err != nil {
		return Structure{}, err
	}
	if s.Len() == 0 {
		return Structure{}, ErrNoAtoms
	}
	return s, nil
}

func isAtomRecord(line string) bool {
	return strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM")
}

// parsePDB reads fixed-column ATOM/HETATM records.
func parsePDB(r io.Reader) (Structure, error) {
	var s Structure
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Text()
		if !isAtomRecord(line) {
			continue
		}
		if len(line) < 54 {
			return Structure{}, fmt.Errorf("%w: line %d is truncated", ErrMalformed, n)
		}
		if strings.TrimSpace(line[12:16]) != "CA" {
			continue
		}
		pos, err := parseVec(line[30:38], line[38:46], line[46:54])
		if err != nil {
			return Structure{}, fmt.Errorf("%w: line %d: %w", ErrMalformed, n, err)
		}
		s.Residues = append(s.Residues, Residue{
			Chain:  strings.TrimSpace(line[21:22]),
			Number: strings.TrimSpace(line[22:26]),
			Name:   strings.TrimSpace(line[17:20]),
			Pos:    pos,
		})
	}
	if err := sc.Err(); err != nil {
		return Structure{}, err
	}
	return s, nil
}

// parseCIF reads the _atom_site loop of an mmCIF file.
func parseCIF(r io.Reader) (Structure, error) {
	var (
		s       Structure
		cols    map[string]int
		inLoop  bool
		inAtoms bool
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "loop_":
			inLoop, inAtoms = true, false
			cols = nil
			continue
		case strings.HasPrefix(line, "_atom_site."):
			if cols == nil || !inLoop {
				cols = map[string]int{}
			}
			inLoop, inAtoms = true, true
			name := strings.Fields(strings.TrimPrefix(line, "_atom_site."))[0]
			cols[name] = len(cols)
			continue
		case strings.HasPrefix(line, "_") || strings.HasPrefix(line, "#") || line == "":
			if inAtoms && len(s.Residues) > 0 {
				return s, nil
			}
			inLoop, inAtoms = false, false
			continue
		}
		if !inAtoms || !isAtomRecord(line) {
			continue
		}

		fields := tokenize(line)
		idx := func(name, fallback string) int {
			if i, ok := cols[name]; ok {
				return i
			}
			if i, ok := cols[fallback]; ok {
				return i
			}
			return -1
		}
		atomCol := idx("label_atom_id", "auth_atom_id")
		chainCol := idx("label_asym_id", "auth_asym_id")
		seqCol := idx("label_seq_id", "auth_seq_id")
		resCol := idx("label_comp_id", "auth_comp_id")
		xCol, yCol, zCol := idx("Cartn_x", ""), idx("Cartn_y", ""), idx("Cartn_z", "")
		if atomCol < 0 || xCol < 0 || yCol < 0 || zCol < 0 {
			return Structure{}, fmt.Errorf("%w: _atom_site lacks coordinate columns", ErrMalformed)
		}
		if len(fields) < len(cols) {
			return Structure{}, fmt.Errorf("%w: line %d has %d of %d columns", ErrMalformed, n, len(fields), len(cols))
		}
		if fields[atomCol] != "CA" {
			continue
		}
		pos, err := parseVec(fields[xCol], fields[yCol], fields[zCol])
		if err != nil {
			return Structure{}, fmt.Errorf("%w: line %d: %w", ErrMalformed, n, err)
		}
		res := Residue{Pos: pos}
		if chainCol >= 0 {
			res.Chain = fields[chainCol]
		}
		if seqCol >= 0 {
			res.Number = fields[seqCol]
		}
		if resCol >= 0 {
			res.Name = fields[resCol]
		}
		s.Residues = append(s.Residues, res)
	}
	if err := sc.Err(); err != nil {
		return Structure{}, err
	}
	return s, nil
}

// tokenize splits a CIF data line on whitespace, honouring single and double quotes.
func tokenize(line string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote byte
		open  bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote && (i+1 == len(line) || line[i+1] == ' ' || line[i+1] == '\t') {
				quote = 0
				continue
			}
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			if open {
				out = append(out, cur.String())
				cur.Reset()
				open = false
			}
		case (c == '\'' || c == '"') && !open:
			quote = c
			open = true
		default:
			cur.WriteByte(c)
			open = true
		}
	}
	if open {
		out = append(out, cur.String())
	}
	return out
}

func parseVec(xs, ys, zs string) (Vec3, error) {
	var v Vec3
	for i, raw := range []string{xs, ys, zs} {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Vec3{}, err
		}
		v[i] = f
	}
	return v, nil
}
