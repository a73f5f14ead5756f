package structure

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

var backboneAtoms = map[string]bool{"N": true, "CA": true, "C": true, "O": true}

var keptHeaders = []string{"CRYST1", "ORIGX", "SCALE"}

// Sanitize rewrites a reference PDB so it cannot identify its source:
// only CRYST1/ORIGX/SCALE, backbone N/CA/C/O atoms masked to ALA, TER and END survive.
// It returns the number of residues (CA atoms) kept.
func Sanitize(r io.Reader, w io.Writer) (int, error) {
	sc := bufio.NewScanner(r)
	bw := bufio.NewWriter(w)
	serial, residues := 1, 0
	for sc.Scan() {
		line := sc.Text()
		rec := strings.TrimSpace(field(line, 0, 6))
		switch {
		case rec == "ATOM" || rec == "HETATM":
			if len(line) < 54 {
				return 0, fmt.Errorf("%w: truncated atom record", ErrMalformed)
			}
			name := strings.TrimSpace(line[12:16])
			if !backboneAtoms[name] {
				continue
			}
			if name == "CA" {
				residues++
			}
			fmt.Fprintf(bw, "ATOM  %5d%sALA%s\n", serial, line[11:17], line[20:])
			serial++
		case rec == "TER":
			fmt.Fprintf(bw, "TER   %5d      ALA%s\n", serial, field(line, 20, len(line)))
			serial++
		case rec == "END":
			fmt.Fprintln(bw, line)
		default:
			for _, p := range keptHeaders {
				if strings.HasPrefix(line, p) {
					fmt.Fprintln(bw, line)
					break
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if residues == 0 {
		return 0, ErrNoAtoms
	}
	return residues, bw.Flush()
}

func field(line string, from, to int) string {
	if from >= len(line) {
		return ""
	}
	if to > len(line) {
		to = len(line)
	}
	return line[from:to]
}

// WritePDB renders a CA-only PDB, the input format of external aligners.
func WritePDB(w io.Writer, s Structure) error {
	bw := bufio.NewWriter(w)
	prev := ""
	for i, r := range s.Residues {
		if prev != "" && r.Chain != prev {
			fmt.Fprintln(bw, "TER")
		}
		prev = r.Chain
		name := r.Name
		if name == "" {
			name = "ALA"
		}
		chain := r.Chain
		if len(chain) != 1 {
			chain = truncChain(chain)
		}
		num := r.Number
		if num == "" || num == "." {
			num = fmt.Sprint(i + 1)
		}
		fmt.Fprintf(bw, "ATOM  %5d  CA  %3s %1s%4s    %8.3f%8.3f%8.3f  1.00  0.00           C\n",
			i+1, name, chain, num, r.Pos[0], r.Pos[1], r.Pos[2])
	}
	fmt.Fprintln(bw, "TER")
	fmt.Fprintln(bw, "END")
	return bw.Flush()
}

func truncChain(c string) string {
	if c == "" {
		return "A"
	}
	return c[:1]
}
