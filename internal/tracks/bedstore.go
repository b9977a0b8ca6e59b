package tracks

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
)

// BedStore is the qualitative (presence/absence) feature store. It is built
// from a BED file whose name column carries track descriptors, and reports a
// track as present over a query window when the fraction of the window
// covered by that track's annotations reaches the track's threshold.
type BedStore struct {
	path       string
	tracks     []Track
	trackIdx   map[string]int // descriptor -> vector position
	thresholds []float64
	byChrom    map[string]*intervalSet
}

// NewBedStore loads a BED store from path (plain or gzipped). The vector
// order of FeatureData follows the given track list. Rows naming descriptors
// outside the track list are dropped.
func NewBedStore(path string, tracks []Track, threshold float64) (*BedStore, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("feature threshold %v outside [0, 1]", threshold)
	}

	s := &BedStore{
		path:       path,
		tracks:     tracks,
		trackIdx:   make(map[string]int, len(tracks)),
		thresholds: make([]float64, len(tracks)),
		byChrom:    make(map[string]*intervalSet),
	}
	for i, t := range tracks {
		s.trackIdx[t.Descriptor] = i
		s.thresholds[i] = threshold
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetTrackThreshold overrides the presence threshold for a single track.
func (s *BedStore) SetTrackThreshold(descriptor string, threshold float64) error {
	i, ok := s.trackIdx[descriptor]
	if !ok {
		return fmt.Errorf("unknown track %q", descriptor)
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("feature threshold %v outside [0, 1]", threshold)
	}
	s.thresholds[i] = threshold
	return nil
}

func (s *BedStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open BED file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(s.path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	pending := make(map[string][]annotation)

	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "track") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return fmt.Errorf("BED line %d: want at least 4 columns, got %d", lineNum, len(fields))
		}
		trackIdx, ok := s.trackIdx[fields[3]]
		if !ok {
			continue
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("BED line %d: bad start: %w", lineNum, err)
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("BED line %d: bad end: %w", lineNum, err)
		}
		if start >= end {
			return fmt.Errorf("BED line %d: start %d >= end %d", lineNum, start, end)
		}
		chrom := fields[0]
		pending[chrom] = append(pending[chrom], annotation{start: start, end: end, trackIdx: trackIdx})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan BED: %w", err)
	}

	for chrom, anns := range pending {
		s.byChrom[chrom] = buildIntervalSet(anns)
	}
	return nil
}

// NumTracks returns the number of tracks in the store's vector order.
func (s *BedStore) NumTracks() int {
	return len(s.tracks)
}

// FeatureData returns a 0/1 value per track for the window [start, end):
// 1 when the covered fraction of the window reaches the track threshold.
// A chromosome with no annotations yields an all-zero vector.
func (s *BedStore) FeatureData(chrom string, start, end int) ([]float32, error) {
	if start >= end {
		return nil, fmt.Errorf("empty query window [%d, %d)", start, end)
	}

	values := make([]float32, len(s.tracks))
	set, ok := s.byChrom[chrom]
	if !ok {
		return values, nil
	}

	covered := make([]int, len(s.tracks))
	set.overlapping(start, end, func(a annotation) {
		lo, hi := a.start, a.end
		if lo < start {
			lo = start
		}
		if hi > end {
			hi = end
		}
		covered[a.trackIdx] += hi - lo
	})

	windowLen := float64(end - start)
	for i, c := range covered {
		if float64(c)/windowLen >= s.thresholds[i] && c > 0 {
			values[i] = 1
		}
	}
	return values, nil
}
