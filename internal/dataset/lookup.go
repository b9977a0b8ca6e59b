package dataset

import (
	"github.com/inodb/epidata/internal/tracks"
)

// FeatureNotPresent marks (cell type, feature) pairs with no ground truth in
// the source data.
const FeatureNotPresent = -1

// featureIndex maps (cell type, target feature) pairs to positions in the raw
// per-track value vector the feature store yields. Built once at dataset
// construction; immutable afterward.
type featureIndex struct {
	cellTypes      []string
	targetFeatures []string
	// lookup[cellTypeIdx][featureIdx] is the track's ordinal position in
	// the full track list, or FeatureNotPresent.
	lookup [][]int
	// mask is the shared read-only boolean form of lookup != sentinel,
	// materialized only for the all-cell-types-at-once target mode.
	mask [][]bool
}

// buildFeatureIndex registers cell types in first-occurrence order among
// tracks whose feature is targeted and fills the dense lookup table. Track
// ordinals refer to positions in the given track slice, which must match the
// feature store's vector order.
func buildFeatureIndex(trks []tracks.Track, targetFeatures []string, withMask bool) *featureIndex {
	featurePos := make(map[string]int, len(targetFeatures))
	for i, f := range targetFeatures {
		featurePos[f] = i
	}

	var cellTypes []string
	cellTypePos := make(map[string]int)
	for _, tr := range trks {
		if _, ok := featurePos[tr.Feature]; !ok {
			continue
		}
		if _, ok := cellTypePos[tr.CellType]; !ok {
			cellTypePos[tr.CellType] = len(cellTypes)
			cellTypes = append(cellTypes, tr.CellType)
		}
	}

	lookup := make([][]int, len(cellTypes))
	for i := range lookup {
		row := make([]int, len(targetFeatures))
		for j := range row {
			row[j] = FeatureNotPresent
		}
		lookup[i] = row
	}

	for ordinal, tr := range trks {
		fi, ok := featurePos[tr.Feature]
		if !ok {
			continue
		}
		lookup[cellTypePos[tr.CellType]][fi] = ordinal
	}

	ix := &featureIndex{
		cellTypes:      cellTypes,
		targetFeatures: targetFeatures,
		lookup:         lookup,
	}
	if withMask {
		ix.mask = make([][]bool, len(cellTypes))
		for i, row := range lookup {
			maskRow := make([]bool, len(row))
			for j, v := range row {
				maskRow[j] = v != FeatureNotPresent
			}
			ix.mask[i] = maskRow
		}
	}
	return ix
}

func (ix *featureIndex) numCellTypes() int {
	return len(ix.cellTypes)
}

// rowTarget gathers the raw track values for one cell type into a dense
// target row. Sentinel entries stay zero; their mask is false.
func (ix *featureIndex) rowTarget(raw []float32, cellTypeIdx int) ([]float32, []bool) {
	row := ix.lookup[cellTypeIdx]
	target := make([]float32, len(row))
	mask := make([]bool, len(row))
	for j, ordinal := range row {
		if ordinal != FeatureNotPresent {
			target[j] = raw[ordinal]
			mask[j] = true
		}
	}
	return target, mask
}
