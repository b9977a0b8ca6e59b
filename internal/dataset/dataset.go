// Package dataset translates flat sample indices into genomic windows with
// aligned multi-cell-type target vectors, for training models that predict
// epigenetic feature activity from sequence.
package dataset

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/inodb/epidata/internal/tracks"
)

// minSequenceIntensity is the lowest acceptable mean per-position encoding
// intensity. Ambiguous bases encode as zero rows, so windows with more than
// roughly a third ambiguous content fall below it and are rejected.
const minSequenceIntensity = 0.60

// SequenceStore is the sequence collaborator capability. Out-of-bound
// queries return a clipped (possibly shorter) window rather than an error.
type SequenceStore interface {
	GetEncodingFromCoords(chrom string, start, end int, strand string) ([][]float32, error)
}

// Collaborators supplies constructors for the handle-bearing stores. The
// dataset keeps them so it can reopen fresh handles inside each data-loading
// worker; open handles themselves must never be shared across workers.
type Collaborators struct {
	// OpenSequence opens the reference sequence store.
	OpenSequence func() (SequenceStore, error)
	// OpenStore opens the interval-style feature store over the final
	// (possibly quantitative-filtered) track list.
	OpenStore func(trks []tracks.Track) (tracks.Store, error)
	// OpenSamples opens the precomputed-sample target source. Required in
	// samples mode, ignored otherwise.
	OpenSamples func(trks []tracks.Track) (tracks.SampleSource, error)
}

// Sample is one training example. Target and Mask have one row in
// single-cell-type and position-wise modes, and one row per registered cell
// type in multi-cell-type target mode, where Mask is shared read-only state
// across samples. CellType is a one-hot vector only for single-cell-type
// samples; nil means "no specific cell type", which covers both
// multi-cell-type targets and position-wise samples.
type Sample struct {
	Sequence [][]float32
	CellType []float32
	Target   [][]float32
	Mask     [][]bool
}

// Transform optionally reshapes a retrieved sample before it is handed to
// the caller.
type Transform func(*Sample) *Sample

// Dataset maps flat indices to encoded sequence windows and target vectors.
// Index structures are immutable after construction and safe to share across
// forked copies; the sequence and feature stores are per-copy.
type Dataset struct {
	cfg            Config
	tracks         []tracks.Track
	targetFeatures []string
	features       *featureIndex
	collab         Collaborators
	transform      Transform
	logger         *zap.Logger

	// exactly one of index / samples is set, per SamplesMode
	index   *intervalIndex
	samples []SampleRecord

	startRadius int
	endRadius   int
	flank       int

	sequence  SequenceStore
	store     tracks.Store
	sampleSrc tracks.SampleSource
}

// New constructs a dataset that samples skip-spaced positions from the given
// intervals.
func New(cfg Config, descriptors, targetFeatures []string, intervals []Interval, collab Collaborators) (*Dataset, error) {
	d, err := newCommon(cfg, descriptors, targetFeatures, collab)
	if err != nil {
		return nil, err
	}
	if cfg.SamplesMode {
		return nil, fmt.Errorf("samples_mode requires NewFromSamples")
	}
	d.index, err = newIntervalIndex(intervals, cfg.PositionSkip)
	if err != nil {
		return nil, err
	}
	if err := d.Reopen(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewFromSamples constructs a dataset over precomputed sample records
// (samples mode): coordinate resolution is a direct lookup and targets come
// from a sample-style source.
func NewFromSamples(cfg Config, descriptors, targetFeatures []string, samples []SampleRecord, collab Collaborators) (*Dataset, error) {
	cfg.SamplesMode = true
	d, err := newCommon(cfg, descriptors, targetFeatures, collab)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no sample records to sample from")
	}
	if collab.OpenSamples == nil {
		return nil, fmt.Errorf("samples_mode requires an OpenSamples collaborator")
	}
	d.samples = samples
	if err := d.Reopen(); err != nil {
		return nil, err
	}
	return d, nil
}

func newCommon(cfg Config, descriptors, targetFeatures []string, collab Collaborators) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if collab.OpenSequence == nil {
		return nil, fmt.Errorf("an OpenSequence collaborator is required")
	}

	trks, err := tracks.ParseTracks(descriptors)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()

	if cfg.QuantitativeFeatures {
		// Opening a continuous-signal file per track is expensive, so
		// tracks whose feature is not targeted are dropped up front.
		targeted := make(map[string]bool, len(targetFeatures))
		for _, f := range targetFeatures {
			targeted[f] = true
		}
		kept := trks[:0]
		for _, tr := range trks {
			if targeted[tr.Feature] {
				kept = append(kept, tr)
			}
		}
		trks = kept
	}

	d := &Dataset{
		cfg:            cfg,
		tracks:         trks,
		targetFeatures: targetFeatures,
		collab:         collab,
		logger:         logger,
		startRadius:    cfg.CenterBin / 2,
		endRadius:      cfg.CenterBin/2 + cfg.CenterBin%2,
		flank:          (cfg.SequenceLength - cfg.CenterBin) / 2,
	}

	if cfg.CellWise || cfg.MultiCTTarget {
		d.features = buildFeatureIndex(trks, targetFeatures, cfg.MultiCTTarget)
		if d.features.numCellTypes() == 0 {
			return nil, fmt.Errorf("no track matches the target features %v", targetFeatures)
		}
	}

	return d, nil
}

// SetLogger sets the logger for retrieval diagnostics.
func (d *Dataset) SetLogger(l *zap.Logger) {
	d.logger = l
	if d.cfg.QuantitativeFeatures && d.cfg.FeatureThreshold > 0 {
		d.logger.Warn("feature thresholds are not applied to quantitative features and will be ignored",
			zap.Float64("feature_thresholds", d.cfg.FeatureThreshold))
	}
}

// SetTransform installs a sample transform applied on every Get.
func (d *Dataset) SetTransform(t Transform) {
	d.transform = t
}

// Config returns the construction configuration.
func (d *Dataset) Config() Config {
	return d.cfg
}

// Tracks returns the dataset's track list in feature-vector order.
func (d *Dataset) Tracks() []tracks.Track {
	return d.tracks
}

// CellTypes returns registered cell types in first-seen order.
func (d *Dataset) CellTypes() []string {
	if d.features == nil {
		return nil
	}
	return d.features.cellTypes
}

// NumCellTypes returns the size of the cell-type index space.
func (d *Dataset) NumCellTypes() int {
	if d.features == nil {
		return 0
	}
	return d.features.numCellTypes()
}

// FeatureCoverage reports how many (cell type, target feature) pairs have
// ground truth, out of the full lookup table size. Both are zero for
// position-wise datasets, which carry no lookup table.
func (d *Dataset) FeatureCoverage() (present, total int) {
	if d.features == nil {
		return 0, 0
	}
	for _, row := range d.features.lookup {
		for _, v := range row {
			total++
			if v != FeatureNotPresent {
				present++
			}
		}
	}
	return present, total
}

// TargetMask returns the shared multi-cell-type mask, or nil outside that
// mode. Callers must treat it as read-only.
func (d *Dataset) TargetMask() [][]bool {
	if d.features == nil {
		return nil
	}
	return d.features.mask
}

// Len returns the size of the flat sample index space.
func (d *Dataset) Len() int {
	var nSequences int
	if d.cfg.SamplesMode {
		nSequences = len(d.samples)
	} else {
		nSequences = d.index.totalPositions()
	}
	if !d.cfg.CellWise || d.cfg.MultiCTTarget {
		return nSequences
	}
	return d.features.numCellTypes() * nSequences
}

// splitIndex decomposes a flat index into (position index, cell type index).
// Only per-cell-type sampling multiplexes the cell type into the index.
func (d *Dataset) splitIndex(idx int) (posIdx, cellTypeIdx int) {
	if d.cfg.CellWise && !d.cfg.MultiCTTarget {
		n := d.features.numCellTypes()
		return idx / n, idx % n
	}
	return idx, 0
}

// ResolveCoords maps a flat index to genomic coordinates and a cell-type
// index. In samples mode the position is the midpoint of the stored window.
func (d *Dataset) ResolveCoords(idx int) (chrom string, pos, cellTypeIdx int) {
	posIdx, cellTypeIdx := d.splitIndex(idx)
	if d.cfg.SamplesMode {
		rec := d.samples[posIdx]
		return rec.Chrom, rec.Start + (rec.End-rec.Start)/2, cellTypeIdx
	}
	chrom, pos = d.index.resolve(posIdx)
	return chrom, pos, cellTypeIdx
}

// Get retrieves the sample at a flat index. A nil sample with a nil error
// means the sequence failed the quality gate and the caller should skip the
// index; there is no automatic resampling.
func (d *Dataset) Get(idx int) (*Sample, error) {
	var sample *Sample
	var err error
	if d.cfg.SamplesMode {
		posIdx, cellTypeIdx := d.splitIndex(idx)
		sample, err = d.retrieveRecord(posIdx, cellTypeIdx)
	} else {
		chrom, pos, cellTypeIdx := d.ResolveCoords(idx)
		sample, err = d.retrieve(chrom, pos, cellTypeIdx)
	}
	if err != nil || sample == nil {
		return nil, err
	}

	if d.transform != nil {
		sample = d.transform(sample)
	}
	if !d.cfg.CellWise {
		// Position-wise samples are (sequence, target) pairs.
		sample.CellType = nil
		sample.Mask = nil
	}
	return sample, nil
}

// retrieve fetches and assembles a sample centered at a genomic position.
func (d *Dataset) retrieve(chrom string, pos, cellTypeIdx int) (*Sample, error) {
	binStart := pos - d.startRadius
	binEnd := pos + d.endRadius

	raw, err := d.store.FeatureData(chrom, binStart, binEnd)
	if err != nil {
		return nil, fmt.Errorf("feature data at %s:%d-%d: %w", chrom, binStart, binEnd, err)
	}

	target, mask, cellVec := d.assembleTarget(raw, cellTypeIdx)

	windowStart := binStart - d.flank
	windowEnd := binEnd + d.flank
	seq, err := d.sequence.GetEncodingFromCoords(chrom, windowStart, windowEnd, d.cfg.Strand)
	if err != nil {
		return nil, fmt.Errorf("sequence at %s:%d-%d: %w", chrom, windowStart, windowEnd, err)
	}

	if !d.checkRetrievedSequence(seq, chrom, pos) {
		return nil, nil
	}

	return &Sample{Sequence: seq, CellType: cellVec, Target: target, Mask: mask}, nil
}

// retrieveRecord fetches a precomputed sample, recentering its window to the
// configured sequence length.
func (d *Dataset) retrieveRecord(sampleIdx, cellTypeIdx int) (*Sample, error) {
	rec := d.samples[sampleIdx]
	start, end := recenter(rec.Start, rec.End, d.cfg.SequenceLength)

	raw, err := d.sampleSrc.SampleData(rec.Chrom, rec.SubIndex)
	if err != nil {
		return nil, fmt.Errorf("sample data for %s sub-index %d: %w", rec.Chrom, rec.SubIndex, err)
	}

	target, mask, cellVec := d.assembleTarget(raw, cellTypeIdx)

	seq, err := d.sequence.GetEncodingFromCoords(rec.Chrom, start, end, d.cfg.Strand)
	if err != nil {
		return nil, fmt.Errorf("sequence at %s:%d-%d: %w", rec.Chrom, start, end, err)
	}

	if !d.checkRetrievedSequence(seq, rec.Chrom, rec.Start) {
		return nil, nil
	}

	return &Sample{Sequence: seq, CellType: cellVec, Target: target, Mask: mask}, nil
}

// assembleTarget builds the target matrix, mask, and cell-type vector for
// the configured mode from the raw per-track values.
func (d *Dataset) assembleTarget(raw []float32, cellTypeIdx int) (target [][]float32, mask [][]bool, cellVec []float32) {
	switch {
	case d.cfg.CellWise && d.cfg.MultiCTTarget:
		n := d.features.numCellTypes()
		target = make([][]float32, n)
		for ct := 0; ct < n; ct++ {
			row, _ := d.features.rowTarget(raw, ct)
			target[ct] = row
		}
		// Shared read-only mask; no specific cell type.
		return target, d.features.mask, nil

	case d.cfg.CellWise:
		row, maskRow := d.features.rowTarget(raw, cellTypeIdx)
		cellVec = make([]float32, d.features.numCellTypes())
		cellVec[cellTypeIdx] = 1
		return [][]float32{row}, [][]bool{maskRow}, cellVec

	default:
		// Position-wise: the full raw vector, nothing masked out.
		row := make([]float32, len(raw))
		copy(row, raw)
		maskRow := make([]bool, len(raw))
		for i := range maskRow {
			maskRow[i] = true
		}
		return [][]float32{row}, [][]bool{maskRow}, nil
	}
}

// checkRetrievedSequence is the quality gate: non-empty, mostly unambiguous,
// and exactly the configured length. Violations are logged, not raised.
func (d *Dataset) checkRetrievedSequence(seq [][]float32, chrom string, pos int) bool {
	if len(seq) == 0 {
		d.logger.Info("full sequence window could not be retrieved",
			zap.String("chrom", chrom), zap.Int("pos", pos))
		return false
	}

	var sum float64
	for _, row := range seq {
		for _, v := range row {
			sum += float64(v)
		}
	}
	if sum/float64(len(seq)) < minSequenceIntensity {
		d.logger.Info("sequence window is too ambiguous",
			zap.String("chrom", chrom), zap.Int("pos", pos),
			zap.Float64("mean_intensity", sum/float64(len(seq))))
		return false
	}

	if len(seq) != d.cfg.SequenceLength {
		d.logger.Info("sequence window length does not match configured sequence length",
			zap.String("chrom", chrom), zap.Int("pos", pos),
			zap.Int("got", len(seq)), zap.Int("want", d.cfg.SequenceLength))
		return false
	}
	return true
}

// Reopen rebuilds the handle-bearing collaborators from their construction
// parameters. It must be called inside each data-loading worker after the
// dataset is duplicated: open file handles shared across workers produce
// corrupted reads.
func (d *Dataset) Reopen() error {
	seq, err := d.collab.OpenSequence()
	if err != nil {
		return fmt.Errorf("reopen sequence store: %w", err)
	}
	d.sequence = seq

	if d.cfg.SamplesMode {
		src, err := d.collab.OpenSamples(d.tracks)
		if err != nil {
			return fmt.Errorf("reopen sample source: %w", err)
		}
		d.sampleSrc = src
		return nil
	}

	if d.collab.OpenStore == nil {
		return fmt.Errorf("an OpenStore collaborator is required")
	}
	store, err := d.collab.OpenStore(d.tracks)
	if err != nil {
		return fmt.Errorf("reopen feature store: %w", err)
	}
	if store.NumTracks() != len(d.tracks) {
		return fmt.Errorf("feature store yields %d tracks, dataset has %d", store.NumTracks(), len(d.tracks))
	}
	d.store = store
	return nil
}

// Fork returns a copy for use in another worker: index structures are shared
// read-only, collaborator handles are freshly opened.
func (d *Dataset) Fork() (*Dataset, error) {
	clone := *d
	if err := clone.Reopen(); err != nil {
		return nil, err
	}
	return &clone, nil
}
