package tracks

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
)

// WigStore is the quantitative (continuous-signal) feature store. Each track
// maps to a bedGraph file; FeatureData returns the coverage-weighted mean
// signal over a query window, with uncovered positions contributing zero.
// Presence thresholds do not apply to continuous signal.
type WigStore struct {
	manifestPath string
	tracks       []Track
	// signal[trackIdx][chrom] holds non-overlapping entries sorted by start.
	signal []map[string][]signalEntry
}

type signalEntry struct {
	start int
	end   int
	value float32
}

// NewWigStore loads a continuous-signal store. The manifest is a two-column
// TSV mapping track descriptors to bedGraph paths; every track in the list
// must have a manifest entry.
func NewWigStore(manifestPath string, tracks []Track) (*WigStore, error) {
	paths, err := readManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	s := &WigStore{
		manifestPath: manifestPath,
		tracks:       tracks,
		signal:       make([]map[string][]signalEntry, len(tracks)),
	}

	for i, t := range tracks {
		path, ok := paths[t.Descriptor]
		if !ok {
			return nil, fmt.Errorf("track %q has no entry in manifest %s", t.Descriptor, manifestPath)
		}
		byChrom, err := loadBedGraph(path)
		if err != nil {
			return nil, fmt.Errorf("load signal for track %q: %w", t.Descriptor, err)
		}
		s.signal[i] = byChrom
	}
	return s, nil
}

// readManifest parses "descriptor<TAB>path" lines.
func readManifest(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signal manifest: %w", err)
	}
	defer f.Close()

	paths := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("manifest line %d: want descriptor<TAB>path", lineNum)
		}
		paths[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan manifest: %w", err)
	}
	return paths, nil
}

// loadBedGraph parses "chrom start end value" rows into per-chromosome
// entries sorted by start.
func loadBedGraph(path string) (map[string][]signalEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bedGraph: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	byChrom := make(map[string][]signalEntry)
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
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("bedGraph line %d: want 4 columns, got %d", lineNum, len(fields))
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("bedGraph line %d: bad start: %w", lineNum, err)
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("bedGraph line %d: bad end: %w", lineNum, err)
		}
		value, err := strconv.ParseFloat(fields[3], 32)
		if err != nil {
			return nil, fmt.Errorf("bedGraph line %d: bad value: %w", lineNum, err)
		}
		if start >= end {
			return nil, fmt.Errorf("bedGraph line %d: start %d >= end %d", lineNum, start, end)
		}
		byChrom[fields[0]] = append(byChrom[fields[0]], signalEntry{start: start, end: end, value: float32(value)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan bedGraph: %w", err)
	}

	for chrom := range byChrom {
		entries := byChrom[chrom]
		sort.Slice(entries, func(i, j int) bool { return entries[i].start < entries[j].start })
	}
	return byChrom, nil
}

// NumTracks returns the number of tracks in the store's vector order.
func (s *WigStore) NumTracks() int {
	return len(s.tracks)
}

// FeatureData returns the mean signal per track over [start, end).
func (s *WigStore) FeatureData(chrom string, start, end int) ([]float32, error) {
	if start >= end {
		return nil, fmt.Errorf("empty query window [%d, %d)", start, end)
	}

	values := make([]float32, len(s.tracks))
	windowLen := float32(end - start)

	for i := range s.tracks {
		entries := s.signal[i][chrom]
		if len(entries) == 0 {
			continue
		}
		// First entry that can overlap the window.
		lo := sort.Search(len(entries), func(j int) bool { return entries[j].end > start })
		var sum float32
		for j := lo; j < len(entries) && entries[j].start < end; j++ {
			a, b := entries[j].start, entries[j].end
			if a < start {
				a = start
			}
			if b > end {
				b = end
			}
			if b > a {
				sum += float32(b-a) * entries[j].value
			}
		}
		values[i] = sum / windowLen
	}
	return values, nil
}
