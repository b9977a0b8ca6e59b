// Package tracks provides ground-truth feature stores for epigenetic tracks.
// A track is one concrete (cell type, assay feature) combination with
// measured data, e.g. CTCF binding in K562.
package tracks

import (
	"fmt"
	"strings"
)

// Track describes one cell-type/feature combination parsed from a
// "cell_type|feature_name|info" descriptor.
type Track struct {
	// Descriptor is the raw descriptor string the track was parsed from.
	Descriptor string
	// Feature is the assay feature name, e.g. "CTCF" or "DNase".
	Feature string
	// CellType is the cell type identifier. When the descriptor carries
	// extra info (third field other than "None"), it is appended to the
	// cell type as "<cell>_<info>".
	CellType string
}

// ParseTrack parses a "cell_type|feature_name|info" descriptor.
func ParseTrack(descriptor string) (Track, error) {
	parts := strings.Split(descriptor, "|")
	if len(parts) != 3 {
		return Track{}, fmt.Errorf("malformed track descriptor %q: want cell_type|feature_name|info", descriptor)
	}
	cellType := parts[0]
	if parts[2] != "None" {
		cellType = cellType + "_" + parts[2]
	}
	return Track{
		Descriptor: descriptor,
		Feature:    parts[1],
		CellType:   cellType,
	}, nil
}

// ParseTracks parses a list of descriptors, preserving order.
func ParseTracks(descriptors []string) ([]Track, error) {
	tracks := make([]Track, 0, len(descriptors))
	for _, d := range descriptors {
		t, err := ParseTrack(d)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// Store is the capability consumed by the dataset for interval-style target
// retrieval: one value per track, aggregated over a genomic window.
type Store interface {
	// FeatureData returns one value per track for the window
	// [start, end) on chrom. Track order matches the descriptor list the
	// store was built with.
	FeatureData(chrom string, start, end int) ([]float32, error)
	// NumTracks returns the length of the vectors FeatureData yields.
	NumTracks() int
}

// SampleSource is the capability consumed by the dataset in precomputed-sample
// mode: one value per track, keyed by a per-chromosome sample index.
type SampleSource interface {
	SampleData(chrom string, sampleIdx int) ([]float32, error)
	NumTracks() int
}
