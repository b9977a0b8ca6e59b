package tracks

import "sort"

// intervalSet provides O(log n + k) overlap queries over track annotations
// using a sorted-slice approach. Annotations are loaded once and never
// modified after build.
type intervalSet struct {
	annotations []annotation
	maxEnd      []int // maxEnd[i] = max(end) for annotations[:i+1]
}

// annotation is one BED row: a half-open [start, end) range tagged with the
// index of the track it annotates.
type annotation struct {
	start    int
	end      int
	trackIdx int
}

// buildIntervalSet creates an overlap index from a slice of annotations.
func buildIntervalSet(annotations []annotation) *intervalSet {
	if len(annotations) == 0 {
		return &intervalSet{}
	}

	sorted := make([]annotation, len(annotations))
	copy(sorted, annotations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].start < sorted[j].start
	})

	// Build prefix-max array: maxEnd[i] = max(end) for sorted[:i+1]. The
	// downward scan in overlapping stops at index i only when no annotation
	// at or before i can reach the query, which is a prefix property.
	maxEnd := make([]int, len(sorted))
	maxEnd[0] = sorted[0].end
	for i := 1; i < len(sorted); i++ {
		maxEnd[i] = sorted[i].end
		if maxEnd[i-1] > maxEnd[i] {
			maxEnd[i] = maxEnd[i-1]
		}
	}

	return &intervalSet{annotations: sorted, maxEnd: maxEnd}
}

// overlapping calls fn for every annotation whose [start, end) range
// intersects the half-open query window [qstart, qend).
func (s *intervalSet) overlapping(qstart, qend int, fn func(annotation)) {
	if len(s.annotations) == 0 || qstart >= qend {
		return
	}

	// Binary search: find rightmost annotation with start < qend.
	// All candidates must start before the query end, so we only need to
	// scan from that boundary down.
	hi := sort.Search(len(s.annotations), func(i int) bool {
		return s.annotations[i].start >= qend
	})

	for i := hi - 1; i >= 0; i-- {
		// Prune: maxEnd[i] is the max end over annotations[:i+1].
		// If maxEnd[i] <= qstart, nothing from 0..i can reach the query.
		if s.maxEnd[i] <= qstart {
			break
		}
		if s.annotations[i].end > qstart {
			fn(s.annotations[i])
		}
	}
}
