// Package genome provides a FASTA-backed reference sequence store that
// serves one-hot encoded sequence windows.
package genome

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
)

// AlphabetSize is the number of encoded base channels (A, C, G, T).
const AlphabetSize = 4

// Genome holds reference chromosome sequences loaded from a FASTA file.
// Sequences are loaded once and never modified after Load.
type Genome struct {
	path      string
	sequences map[string]string // chromosome -> sequence
	order     []string          // chromosomes in file order
}

// New creates a sequence store for the given FASTA path. Call Load before use.
func New(path string) *Genome {
	return &Genome{
		path:      path,
		sequences: make(map[string]string),
	}
}

// Open creates and loads a sequence store in one step.
func Open(path string) (*Genome, error) {
	g := New(path)
	if err := g.Load(); err != nil {
		return nil, err
	}
	return g, nil
}

// Load parses the FASTA file and stores sequences indexed by chromosome.
func (g *Genome) Load() error {
	f, err := os.Open(g.path)
	if err != nil {
		return fmt.Errorf("open FASTA file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f

	// Handle gzipped files
	if strings.HasSuffix(g.path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return g.parseFASTA(reader)
}

// parseFASTA parses FASTA content. The chromosome name is the first
// whitespace-delimited token of the header, e.g. ">chr1 AC:CM000663.2".
func (g *Genome) parseFASTA(reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	// Increase buffer size for long sequence lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024) // 10MB max line

	var currentChrom string
	var currentSeq strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, ">") {
			if currentChrom != "" && currentSeq.Len() > 0 {
				g.sequences[currentChrom] = currentSeq.String()
				g.order = append(g.order, currentChrom)
			}
			currentChrom = parseHeader(line)
			currentSeq.Reset()
		} else {
			currentSeq.WriteString(strings.TrimSpace(line))
		}
	}

	if currentChrom != "" && currentSeq.Len() > 0 {
		g.sequences[currentChrom] = currentSeq.String()
		g.order = append(g.order, currentChrom)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan FASTA: %w", err)
	}

	return nil
}

// parseHeader extracts the chromosome name from a FASTA header line.
func parseHeader(header string) string {
	header = strings.TrimPrefix(header, ">")
	if idx := strings.IndexAny(header, " \t"); idx != -1 {
		return header[:idx]
	}
	return header
}

// Path returns the FASTA path this store was opened from.
func (g *Genome) Path() string {
	return g.path
}

// Chromosomes returns chromosome names in file order.
func (g *Genome) Chromosomes() []string {
	return g.order
}

// Len returns the length of a chromosome, or 0 if unknown.
func (g *Genome) Len(chrom string) int {
	return len(g.sequences[chrom])
}

// HasChromosome reports whether the store holds the given chromosome.
func (g *Genome) HasChromosome(chrom string) bool {
	_, ok := g.sequences[chrom]
	return ok
}

// GetEncodingFromCoords returns the one-hot encoding of [start, end) on the
// given chromosome and strand. Coordinates outside the chromosome are clipped,
// so the returned window may be shorter than requested; callers are expected
// to validate the length. Ambiguous bases encode as all-zero rows. Strand "-"
// returns the reverse-complement encoding.
func (g *Genome) GetEncodingFromCoords(chrom string, start, end int, strand string) ([][]float32, error) {
	seq, ok := g.sequences[chrom]
	if !ok {
		return nil, fmt.Errorf("unknown chromosome %q", chrom)
	}
	if strand != "+" && strand != "-" {
		return nil, fmt.Errorf("invalid strand %q", strand)
	}

	if start < 0 {
		start = 0
	}
	if end > len(seq) {
		end = len(seq)
	}
	if start >= end {
		return [][]float32{}, nil
	}

	window := seq[start:end]
	encoded := encodeSequence(window)
	if strand == "-" {
		reverseComplement(encoded)
	}
	return encoded, nil
}

// encodeSequence one-hot encodes a base string. Rows for bases outside
// {A, C, G, T} stay all-zero.
func encodeSequence(seq string) [][]float32 {
	encoded := make([][]float32, len(seq))
	for i := 0; i < len(seq); i++ {
		row := make([]float32, AlphabetSize)
		switch seq[i] {
		case 'A', 'a':
			row[0] = 1
		case 'C', 'c':
			row[1] = 1
		case 'G', 'g':
			row[2] = 1
		case 'T', 't':
			row[3] = 1
		}
		encoded[i] = row
	}
	return encoded
}

// reverseComplement reverses the row order and swaps the A<->T and C<->G
// channels in place. For one-hot rows this equals complementing each base.
func reverseComplement(encoded [][]float32) {
	for i, j := 0, len(encoded)-1; i < j; i, j = i+1, j-1 {
		encoded[i], encoded[j] = encoded[j], encoded[i]
	}
	for _, row := range encoded {
		row[0], row[3] = row[3], row[0]
		row[1], row[2] = row[2], row[1]
	}
}
