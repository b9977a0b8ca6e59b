package dataset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/epidata/internal/tracks"
)

// fakeSequence serves one-hot "A" rows over a fixed chromosome length,
// clipping out-of-bound queries like the real sequence store.
type fakeSequence struct {
	chromLen  int
	ambiguous map[int]bool // positions encoded as zero rows
	calls     int
}

func (f *fakeSequence) GetEncodingFromCoords(chrom string, start, end int, strand string) ([][]float32, error) {
	f.calls++
	if start < 0 {
		start = 0
	}
	if end > f.chromLen {
		end = f.chromLen
	}
	if start >= end {
		return [][]float32{}, nil
	}
	out := make([][]float32, 0, end-start)
	for pos := start; pos < end; pos++ {
		row := make([]float32, 4)
		if !f.ambiguous[pos] {
			row[0] = 1
		}
		out = append(out, row)
	}
	return out, nil
}

// fakeStore returns a deterministic value per track derived from the window
// start so retrieval tests can assert exact targets.
type fakeStore struct {
	nTracks int
}

func (f *fakeStore) NumTracks() int { return f.nTracks }

func (f *fakeStore) FeatureData(chrom string, start, end int) ([]float32, error) {
	values := make([]float32, f.nTracks)
	for i := range values {
		values[i] = float32(i*1000 + start)
	}
	return values, nil
}

func testCollaborators(seq *fakeSequence) Collaborators {
	return Collaborators{
		OpenSequence: func() (SequenceStore, error) { return seq, nil },
		OpenStore: func(trks []tracks.Track) (tracks.Store, error) {
			return &fakeStore{nTracks: len(trks)}, nil
		},
	}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.SequenceLength = 10
	cfg.CenterBin = 4
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"multi_ct without cell_wise", func(c *Config) { c.CellWise = false; c.MultiCTTarget = true }},
		{"zero sequence length", func(c *Config) { c.SequenceLength = 0 }},
		{"bin exceeds sequence", func(c *Config) { c.CenterBin = c.SequenceLength + 1 }},
		{"zero skip", func(c *Config) { c.PositionSkip = 0 }},
		{"bad strand", func(c *Config) { c.Strand = "*" }},
		{"threshold out of range", func(c *Config) { c.FeatureThreshold = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestIntervalIndex_PrefixSums(t *testing.T) {
	ix, err := newIntervalIndex([]Interval{
		{"chr1", 0, 10},
		{"chr1", 100, 103},
		{"chr2", 0, 7},
	}, 2)
	require.NoError(t, err)

	// Counts: 10/2+1=6, 3/2+1=2, 7/2+1=4.
	assert.Equal(t, []int{0, 6, 8, 12}, ix.prefix)
	assert.Equal(t, 12, ix.totalPositions())

	for i := 1; i < len(ix.prefix); i++ {
		assert.GreaterOrEqual(t, ix.prefix[i], ix.prefix[i-1], "prefix sums monotone")
	}
}

func TestIntervalIndex_ResolveStaysInBounds(t *testing.T) {
	intervals := []Interval{
		{"chr1", 50, 60},
		{"chr2", 0, 5},
		{"chr3", 1000, 1001},
	}
	for _, skip := range []int{1, 2, 3, 7} {
		ix, err := newIntervalIndex(intervals, skip)
		require.NoError(t, err)
		for idx := 0; idx < ix.totalPositions(); idx++ {
			chrom, pos := ix.resolve(idx)
			var iv Interval
			for _, cand := range intervals {
				if cand.Chrom == chrom && pos >= cand.Start && pos <= cand.End {
					iv = cand
				}
			}
			require.NotEmpty(t, iv.Chrom, "skip=%d idx=%d resolved to %s:%d outside all intervals", skip, idx, chrom, pos)
			assert.LessOrEqual(t, pos, iv.End, "never past interval end")
		}
	}
}

func TestIntervalIndex_RejectsEmptyAndInverted(t *testing.T) {
	_, err := newIntervalIndex(nil, 1)
	assert.Error(t, err)
	_, err = newIntervalIndex([]Interval{{"chr1", 10, 10}}, 1)
	assert.Error(t, err)
}

func TestRecenter(t *testing.T) {
	tests := []struct {
		start, end, length     int
		wantStart, wantEnd int
	}{
		{100, 200, 100, 100, 200}, // already the right size
		{100, 200, 104, 98, 202},  // even padding split evenly
		{100, 200, 105, 98, 203},  // odd spare base goes to the end
		{100, 200, 95, 102, 197},  // even truncation
		{100, 200, 96, 102, 198},  // odd truncation takes the spare from the start
	}
	for _, tt := range tests {
		s, e := recenter(tt.start, tt.end, tt.length)
		assert.Equal(t, tt.wantStart, s, "start for %+v", tt)
		assert.Equal(t, tt.wantEnd, e, "end for %+v", tt)
		assert.Equal(t, tt.length, e-s)
	}
}

func TestFeatureIndex_LookupAndSentinels(t *testing.T) {
	trks, err := tracks.ParseTracks([]string{
		"A|CTCF|None",
		"B|CTCF|None",
		"A|DNase|None",
		"C|H3K27ac|None", // not targeted, still occupies ordinal 3
	})
	require.NoError(t, err)

	ix := buildFeatureIndex(trks, []string{"CTCF", "DNase"}, true)

	assert.Equal(t, []string{"A", "B"}, ix.cellTypes)
	assert.Equal(t, [][]int{{0, 2}, {1, FeatureNotPresent}}, ix.lookup)
	assert.Equal(t, [][]bool{{true, true}, {true, false}}, ix.mask)

	// Sentinel count = nCT*nTF - matching descriptors.
	sentinels := 0
	for _, row := range ix.lookup {
		for _, v := range row {
			if v == FeatureNotPresent {
				sentinels++
			}
		}
	}
	assert.Equal(t, 2*2-3, sentinels)
}

func TestFeatureIndex_OneFeatureTwoCells(t *testing.T) {
	trks, err := tracks.ParseTracks([]string{"A|CTCF|None", "B|CTCF|None"})
	require.NoError(t, err)

	ix := buildFeatureIndex(trks, []string{"CTCF"}, false)
	assert.Equal(t, []string{"A", "B"}, ix.cellTypes)
	assert.Equal(t, [][]int{{0}, {1}}, ix.lookup)
	assert.Nil(t, ix.mask)
}

func TestDataset_LenAndResolve_CellWise(t *testing.T) {
	seq := &fakeSequence{chromLen: 100000}
	cfg := smallConfig()
	ds, err := New(cfg,
		[]string{"A|CTCF|None", "B|CTCF|None"}, []string{"CTCF"},
		[]Interval{{"chr1", 0, 1000}}, testCollaborators(seq))
	require.NoError(t, err)

	// (end-start)/skip + 1 positions per interval, times 2 cell types.
	assert.Equal(t, 2*1001, ds.Len())

	present, total := ds.FeatureCoverage()
	assert.Equal(t, 2, present)
	assert.Equal(t, 2, total)

	chrom, pos, ct := ds.ResolveCoords(1)
	assert.Equal(t, "chr1", chrom)
	assert.Equal(t, 0, pos)
	assert.Equal(t, 1, ct)

	chrom, pos, ct = ds.ResolveCoords(2)
	assert.Equal(t, "chr1", chrom)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 0, ct)
}

func TestDataset_Get_SingleCellType(t *testing.T) {
	seq := &fakeSequence{chromLen: 100000}
	cfg := smallConfig()
	ds, err := New(cfg,
		[]string{"A|CTCF|None", "B|CTCF|None", "A|DNase|None"}, []string{"CTCF", "DNase"},
		[]Interval{{"chr1", 100, 1000}}, testCollaborators(seq))
	require.NoError(t, err)

	// Index 3 -> position index 1, cell type 1 (B).
	sample, err := ds.Get(3)
	require.NoError(t, err)
	require.NotNil(t, sample)

	assert.Len(t, sample.Sequence, cfg.SequenceLength)
	assert.Equal(t, []float32{0, 1}, sample.CellType)
	require.Len(t, sample.Target, 1)
	// B has CTCF (ordinal 1) but no DNase: sentinel stays zero, unmasked.
	assert.Equal(t, [][]bool{{true, false}}, sample.Mask)
	assert.Equal(t, float32(0), sample.Target[0][1])
}

func TestDataset_Get_MultiCTTarget(t *testing.T) {
	seq := &fakeSequence{chromLen: 100000}
	cfg := smallConfig()
	cfg.MultiCTTarget = true
	ds, err := New(cfg,
		[]string{"A|CTCF|None", "B|CTCF|None", "A|DNase|None"}, []string{"CTCF", "DNase"},
		[]Interval{{"chr1", 100, 1000}}, testCollaborators(seq))
	require.NoError(t, err)

	assert.Equal(t, 901, ds.Len(), "multi-CT samples are positional")

	sample, err := ds.Get(0)
	require.NoError(t, err)
	require.NotNil(t, sample)

	assert.Nil(t, sample.CellType)
	require.Len(t, sample.Target, 2)
	require.Len(t, sample.Target[0], 2)

	// The mask is the one shared instance.
	mask1 := ds.TargetMask()
	sample2, err := ds.Get(1)
	require.NoError(t, err)
	assert.Equal(t, &mask1[0][0], &sample2.Mask[0][0], "mask shared by reference")
}

func TestDataset_Get_PositionWise(t *testing.T) {
	seq := &fakeSequence{chromLen: 100000}
	cfg := smallConfig()
	cfg.CellWise = false
	ds, err := New(cfg,
		[]string{"A|CTCF|None", "B|CTCF|None"}, []string{"CTCF"},
		[]Interval{{"chr1", 100, 1000}}, testCollaborators(seq))
	require.NoError(t, err)

	assert.Equal(t, 901, ds.Len())

	sample, err := ds.Get(0)
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Nil(t, sample.CellType)
	assert.Nil(t, sample.Mask)
	require.Len(t, sample.Target, 1)
	assert.Len(t, sample.Target[0], 2, "full raw track vector")
}

func TestDataset_Get_Idempotent(t *testing.T) {
	seq := &fakeSequence{chromLen: 100000}
	ds, err := New(smallConfig(),
		[]string{"A|CTCF|None", "B|CTCF|None"}, []string{"CTCF"},
		[]Interval{{"chr1", 100, 1000}}, testCollaborators(seq))
	require.NoError(t, err)

	first, err := ds.Get(42)
	require.NoError(t, err)
	second, err := ds.Get(42)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDataset_QualityGate(t *testing.T) {
	cfg := smallConfig()

	t.Run("window near chromosome start is short", func(t *testing.T) {
		seq := &fakeSequence{chromLen: 100000}
		ds, err := New(cfg, []string{"A|CTCF|None"}, []string{"CTCF"},
			[]Interval{{"chr1", 0, 1000}}, testCollaborators(seq))
		require.NoError(t, err)

		// Position 0: window [0-2-3, ...) clips at 0 and comes back short.
		sample, err := ds.Get(0)
		require.NoError(t, err)
		assert.Nil(t, sample, "short window is skipped, not an error")
	})

	t.Run("ambiguous window rejected", func(t *testing.T) {
		seq := &fakeSequence{chromLen: 100000, ambiguous: map[int]bool{}}
		// Make half the bases around position 500 ambiguous: mean
		// intensity 0.5 < 0.60.
		for p := 495; p < 500; p++ {
			seq.ambiguous[p] = true
		}
		ds, err := New(cfg, []string{"A|CTCF|None"}, []string{"CTCF"},
			[]Interval{{"chr1", 500, 1000}}, testCollaborators(seq))
		require.NoError(t, err)

		sample, err := ds.Get(0)
		require.NoError(t, err)
		assert.Nil(t, sample)
	})

	t.Run("clean window passes with exact length", func(t *testing.T) {
		seq := &fakeSequence{chromLen: 100000}
		ds, err := New(cfg, []string{"A|CTCF|None"}, []string{"CTCF"},
			[]Interval{{"chr1", 500, 1000}}, testCollaborators(seq))
		require.NoError(t, err)

		sample, err := ds.Get(0)
		require.NoError(t, err)
		require.NotNil(t, sample)
		assert.Len(t, sample.Sequence, cfg.SequenceLength)

		var sum float32
		for _, row := range sample.Sequence {
			for _, v := range row {
				sum += v
			}
		}
		assert.GreaterOrEqual(t, float64(sum)/float64(len(sample.Sequence)), minSequenceIntensity)
	})
}

func TestDataset_Transform(t *testing.T) {
	seq := &fakeSequence{chromLen: 100000}
	ds, err := New(smallConfig(), []string{"A|CTCF|None"}, []string{"CTCF"},
		[]Interval{{"chr1", 500, 1000}}, testCollaborators(seq))
	require.NoError(t, err)

	ds.SetTransform(func(s *Sample) *Sample {
		s.Target[0][0] = 99
		return s
	})
	sample, err := ds.Get(0)
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, float32(99), sample.Target[0][0])
}

func TestDataset_ForkReopensCollaborators(t *testing.T) {
	opens := 0
	seq := &fakeSequence{chromLen: 100000}
	collab := Collaborators{
		OpenSequence: func() (SequenceStore, error) {
			opens++
			return seq, nil
		},
		OpenStore: func(trks []tracks.Track) (tracks.Store, error) {
			return &fakeStore{nTracks: len(trks)}, nil
		},
	}
	ds, err := New(smallConfig(), []string{"A|CTCF|None"}, []string{"CTCF"},
		[]Interval{{"chr1", 500, 1000}}, collab)
	require.NoError(t, err)
	assert.Equal(t, 1, opens)

	fork, err := ds.Fork()
	require.NoError(t, err)
	assert.Equal(t, 2, opens, "fork opens fresh handles")

	// Index structures are shared; both resolve identically.
	a, errA := ds.Get(10)
	b, errB := fork.Get(10)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestDataset_ConstructionErrors(t *testing.T) {
	seq := &fakeSequence{chromLen: 1000}
	collab := testCollaborators(seq)

	_, err := New(smallConfig(), []string{"A|CTCF|None"}, []string{"DNase"},
		[]Interval{{"chr1", 0, 100}}, collab)
	assert.Error(t, err, "no track matches target features")

	cfg := smallConfig()
	cfg.SamplesMode = true
	_, err = New(cfg, []string{"A|CTCF|None"}, []string{"CTCF"},
		[]Interval{{"chr1", 0, 100}}, collab)
	assert.Error(t, err, "samples mode needs NewFromSamples")

	_, err = New(smallConfig(), []string{"A|CTCF|None"}, []string{"CTCF"},
		[]Interval{{"chr1", 0, 100}}, Collaborators{})
	assert.Error(t, err, "missing collaborators")
}

func TestDataset_QuantitativeFilterDropsUntargetedTracks(t *testing.T) {
	seq := &fakeSequence{chromLen: 100000}
	cfg := smallConfig()
	cfg.QuantitativeFeatures = true

	var gotTracks []tracks.Track
	collab := Collaborators{
		OpenSequence: func() (SequenceStore, error) { return seq, nil },
		OpenStore: func(trks []tracks.Track) (tracks.Store, error) {
			gotTracks = trks
			return &fakeStore{nTracks: len(trks)}, nil
		},
	}

	ds, err := New(cfg,
		[]string{"A|CTCF|None", "A|H3K27ac|None", "B|CTCF|None"}, []string{"CTCF"},
		[]Interval{{"chr1", 500, 1000}}, collab)
	require.NoError(t, err)

	require.Len(t, gotTracks, 2, "untargeted H3K27ac track dropped before store open")
	assert.Equal(t, []string{"A", "B"}, ds.CellTypes())
}

// fakeSamples serves sample-style targets keyed by sub-index.
type fakeSamples struct {
	nTracks int
}

func (f *fakeSamples) NumTracks() int { return f.nTracks }

func (f *fakeSamples) SampleData(chrom string, sampleIdx int) ([]float32, error) {
	if sampleIdx < 0 {
		return nil, fmt.Errorf("bad sample index %d", sampleIdx)
	}
	values := make([]float32, f.nTracks)
	for i := range values {
		values[i] = float32(sampleIdx*10 + i)
	}
	return values, nil
}

func TestDataset_SamplesMode(t *testing.T) {
	seq := &fakeSequence{chromLen: 100000}
	cfg := smallConfig()
	collab := Collaborators{
		OpenSequence: func() (SequenceStore, error) { return seq, nil },
		OpenSamples: func(trks []tracks.Track) (tracks.SampleSource, error) {
			return &fakeSamples{nTracks: len(trks)}, nil
		},
	}

	records := []SampleRecord{
		{Chrom: "chr1", Start: 500, End: 504, SubIndex: 0},
		{Chrom: "chr1", Start: 700, End: 720, SubIndex: 1},
	}
	ds, err := NewFromSamples(cfg, []string{"A|CTCF|None", "B|CTCF|None"}, []string{"CTCF"},
		records, collab)
	require.NoError(t, err)

	assert.Equal(t, 2*len(records), ds.Len(), "cell-wise samples mode multiplies by cell types")

	// Index 3 -> record 1, cell type B (ordinal 1 in the raw vector).
	sample, err := ds.Get(3)
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Len(t, sample.Sequence, cfg.SequenceLength, "window recentered to sequence length")
	assert.Equal(t, []float32{0, 1}, sample.CellType)
	assert.Equal(t, float32(11), sample.Target[0][0], "sub-index 1, track ordinal 1")
}
