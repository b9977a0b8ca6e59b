package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inodb/epidata/internal/dataset"
	"github.com/inodb/epidata/internal/genome"
	"github.com/inodb/epidata/internal/tracks"
)

// datasetFlags holds the construction inputs shared by inspect and export.
type datasetFlags struct {
	configPath     string
	fastaPath      string
	bedPath        string
	signalManifest string
	tracksPath     string
	intervalsPath  string
	samplesPath    string
	samplesDB      string
	targetFeatures []string
}

func (f *datasetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "dataset-config", "", "YAML file with dataset options (optional)")
	cmd.Flags().StringVar(&f.fastaPath, "fasta", "", "reference genome FASTA (plain or .gz)")
	cmd.Flags().StringVar(&f.bedPath, "bed", "", "BED file of qualitative feature annotations")
	cmd.Flags().StringVar(&f.signalManifest, "signal-manifest", "", "TSV mapping track descriptors to bedGraph files (quantitative mode)")
	cmd.Flags().StringVar(&f.tracksPath, "tracks", "", "file listing track descriptors, one cell_type|feature|info per line")
	cmd.Flags().StringVar(&f.intervalsPath, "intervals", "", "BED3 file of intervals to sample from")
	cmd.Flags().StringVar(&f.samplesPath, "samples", "", "TSV of precomputed sample windows (samples mode)")
	cmd.Flags().StringVar(&f.samplesDB, "samples-db", "", "DuckDB database with precomputed targets (samples mode)")
	cmd.Flags().StringSliceVar(&f.targetFeatures, "target-features", nil, "feature names the model predicts, e.g. CTCF,DNase")
	cmd.MarkFlagRequired("fasta")
	cmd.MarkFlagRequired("tracks")
	cmd.MarkFlagRequired("target-features")
}

// build constructs the dataset from the flag inputs.
func (f *datasetFlags) build() (*dataset.Dataset, error) {
	// An explicit --dataset-config wins; otherwise the defaults from
	// ~/.epidata.yaml (managed by the config subcommand) apply.
	cfg, err := datasetConfigFromViper()
	if err != nil {
		return nil, err
	}
	if f.configPath != "" {
		cfg, err = dataset.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
	}

	descriptors, err := readLines(f.tracksPath)
	if err != nil {
		return nil, fmt.Errorf("read tracks: %w", err)
	}

	collab := dataset.Collaborators{
		OpenSequence: func() (dataset.SequenceStore, error) {
			return genome.Open(f.fastaPath)
		},
	}

	var ds *dataset.Dataset
	if cfg.SamplesMode {
		if f.samplesPath == "" || f.samplesDB == "" {
			return nil, fmt.Errorf("samples_mode requires --samples and --samples-db")
		}
		records, err := readSampleRecords(f.samplesPath)
		if err != nil {
			return nil, fmt.Errorf("read samples: %w", err)
		}
		collab.OpenSamples = func(trks []tracks.Track) (tracks.SampleSource, error) {
			return tracks.OpenSampleStore(f.samplesDB, trks)
		}
		ds, err = dataset.NewFromSamples(cfg, descriptors, f.targetFeatures, records, collab)
		if err != nil {
			return nil, err
		}
	} else {
		if cfg.QuantitativeFeatures && f.signalManifest == "" {
			return nil, fmt.Errorf("quantitative_features requires --signal-manifest")
		}
		if !cfg.QuantitativeFeatures && f.bedPath == "" {
			return nil, fmt.Errorf("--bed is required for qualitative features")
		}
		if f.intervalsPath == "" {
			return nil, fmt.Errorf("--intervals is required")
		}
		intervals, err := readIntervals(f.intervalsPath)
		if err != nil {
			return nil, fmt.Errorf("read intervals: %w", err)
		}
		collab.OpenStore = func(trks []tracks.Track) (tracks.Store, error) {
			if cfg.QuantitativeFeatures {
				return tracks.NewWigStore(f.signalManifest, trks)
			}
			return tracks.NewBedStore(f.bedPath, trks, cfg.FeatureThreshold)
		}
		ds, err = dataset.New(cfg, descriptors, f.targetFeatures, intervals, collab)
		if err != nil {
			return nil, err
		}
	}

	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	ds.SetLogger(logger)
	return ds, nil
}

// readLines returns non-empty, non-comment lines.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// readIntervals parses BED3 rows into sampling intervals.
func readIntervals(path string) ([]dataset.Interval, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	intervals := make([]dataset.Interval, 0, len(lines))
	for i, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: want chrom<TAB>start<TAB>end", i+1)
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad start: %w", i+1, err)
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad end: %w", i+1, err)
		}
		intervals = append(intervals, dataset.Interval{Chrom: fields[0], Start: start, End: end})
	}
	return intervals, nil
}

// readSampleRecords parses chrom<TAB>start<TAB>end<TAB>sample_idx rows where
// sample_idx keys the precomputed target lookup.
func readSampleRecords(path string) ([]dataset.SampleRecord, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	records := make([]dataset.SampleRecord, 0, len(lines))
	for i, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return nil, fmt.Errorf("line %d: want chrom<TAB>start<TAB>end<TAB>sample_idx", i+1)
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad start: %w", i+1, err)
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad end: %w", i+1, err)
		}
		subIdx, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad sample_idx: %w", i+1, err)
		}
		records = append(records, dataset.SampleRecord{
			Chrom:    fields[0],
			Start:    start,
			End:      end,
			SubIndex: subIdx,
		})
	}
	return records, nil
}
