package tracks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func collectOverlaps(s *intervalSet, start, end int) []annotation {
	var out []annotation
	s.overlapping(start, end, func(a annotation) { out = append(out, a) })
	return out
}

func TestIntervalSet_Empty(t *testing.T) {
	s := buildIntervalSet(nil)
	assert.Empty(t, collectOverlaps(s, 0, 100))
}

func TestIntervalSet_HalfOpenBoundaries(t *testing.T) {
	s := buildIntervalSet([]annotation{{start: 100, end: 200, trackIdx: 0}})

	assert.Len(t, collectOverlaps(s, 150, 160), 1)
	assert.Len(t, collectOverlaps(s, 199, 300), 1, "last covered base")
	assert.Len(t, collectOverlaps(s, 0, 101), 1, "first covered base")
	assert.Empty(t, collectOverlaps(s, 200, 300), "query starting at end")
	assert.Empty(t, collectOverlaps(s, 0, 100), "query ending at start")
}

func TestIntervalSet_MaxEndPruning(t *testing.T) {
	// A short annotation followed by a long one; the long one must still be
	// found far past the short one's end.
	s := buildIntervalSet([]annotation{
		{start: 100, end: 110, trackIdx: 0},
		{start: 105, end: 500, trackIdx: 1},
	})

	got := collectOverlaps(s, 400, 420)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, got[0].trackIdx)
}

func TestIntervalSet_LongAnnotationBeforeShortOnes(t *testing.T) {
	// A long annotation starting early, followed by short ones that end well
	// before the query. The downward scan must not stop at the short
	// annotations; the containing one behind them still overlaps.
	s := buildIntervalSet([]annotation{
		{start: 0, end: 100, trackIdx: 0},
		{start: 10, end: 12, trackIdx: 1},
		{start: 20, end: 22, trackIdx: 2},
	})

	got := collectOverlaps(s, 50, 60)
	assert.Len(t, got, 1)
	assert.Equal(t, 0, got[0].trackIdx)
}

func TestIntervalSet_MatchesLinearScan(t *testing.T) {
	anns := []annotation{
		{start: 1000, end: 5000, trackIdx: 0},
		{start: 2000, end: 3000, trackIdx: 1},
		{start: 4000, end: 8000, trackIdx: 2},
		{start: 6000, end: 7000, trackIdx: 3},
		{start: 9000, end: 10000, trackIdx: 4},
	}
	s := buildIntervalSet(anns)

	for qs := 0; qs <= 11000; qs += 500 {
		qe := qs + 300
		linear := map[int]bool{}
		for _, a := range anns {
			if a.start < qe && a.end > qs {
				linear[a.trackIdx] = true
			}
		}
		got := map[int]bool{}
		for _, a := range collectOverlaps(s, qs, qe) {
			got[a.trackIdx] = true
		}
		assert.Equal(t, linear, got, "window [%d, %d)", qs, qe)
	}
}
