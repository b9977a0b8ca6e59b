package dataset

import (
	"fmt"
	"sort"
)

// Interval is a half-open genomic range [Start, End) on the reference.
type Interval struct {
	Chrom string
	Start int
	End   int
}

// SampleRecord is one precomputed sample: a literal window plus the
// per-chromosome sub-index used to key the sample store.
type SampleRecord struct {
	Chrom    string
	Start    int
	End      int
	SubIndex int
}

// intervalIndex resolves a flat position index into (chromosome, position)
// via cumulative position counts over the interval list. Built once at
// dataset construction; read-only afterward.
type intervalIndex struct {
	intervals []Interval
	// prefix[i] is the number of sampleable positions in intervals[:i];
	// prefix[len(intervals)] is the total.
	prefix []int
	skip   int
}

func newIntervalIndex(intervals []Interval, skip int) (*intervalIndex, error) {
	if len(intervals) == 0 {
		return nil, fmt.Errorf("no intervals to sample from")
	}

	prefix := make([]int, len(intervals)+1)
	for i, iv := range intervals {
		if iv.Start >= iv.End {
			return nil, fmt.Errorf("interval %s:%d-%d: start must be below end", iv.Chrom, iv.Start, iv.End)
		}
		count := (iv.End-iv.Start)/skip + 1
		prefix[i+1] = prefix[i] + count
	}

	return &intervalIndex{intervals: intervals, prefix: prefix, skip: skip}, nil
}

// totalPositions returns the size of the flat position index space.
func (ix *intervalIndex) totalPositions() int {
	return ix.prefix[len(ix.prefix)-1]
}

// resolve maps a flat position index to (chromosome, position). The position
// is the interval start plus skip-spaced offset centered within its stride,
// clamped so it never lands past the interval's own end.
func (ix *intervalIndex) resolve(posIdx int) (chrom string, pos int) {
	// Greatest i with prefix[i] <= posIdx.
	i := sort.Search(len(ix.prefix), func(j int) bool { return ix.prefix[j] > posIdx }) - 1

	iv := ix.intervals[i]
	offset := (posIdx-ix.prefix[i])*ix.skip + ix.skip/2
	if max := iv.End - iv.Start; offset > max {
		offset = max
	}
	return iv.Chrom, iv.Start + offset
}

// recenter expands or shrinks [start, end) to the target length, splitting
// the difference evenly with the spare base going to the end.
func recenter(start, end, length int) (int, int) {
	context := length - (end - start)
	if context == 0 {
		return start, end
	}
	half := floorDiv(context, 2)
	return start - half, end + context - half
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
