package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/inodb/epidata/internal/loader"
	"github.com/inodb/epidata/internal/sampling"
)

func newInspectCmd() *cobra.Command {
	var (
		flags      datasetFlags
		numSamples float64
		seed       int64
		batchSize  int
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize a dataset and its target distribution",
		Long: `Inspect builds the dataset, reports its dimensions, then retrieves a
random subset of windows to estimate per-feature target statistics and the
fraction of windows rejected by the sequence quality checks.`,
		Example: `  epidata inspect --fasta ref.fa.gz --bed peaks.bed \
    --tracks tracks.txt --intervals regions.bed --target-features CTCF`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(&flags, numSamples, seed, batchSize, workers)
		},
	}

	flags.register(cmd)
	cmd.Flags().Float64Var(&numSamples, "num-samples", 1000,
		"how many windows to probe: a count (>=1), a fraction in (0,1), or -1 for everything")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed for subsampling")
	cmd.Flags().IntVar(&batchSize, "batch-size", 64, "retrieval batch size")
	cmd.Flags().IntVar(&workers, "workers", 0, "retrieval workers (0 = number of CPUs)")

	return cmd
}

func runInspect(flags *datasetFlags, numSamples float64, seed int64, batchSize, workers int) error {
	ds, err := flags.build()
	if err != nil {
		return err
	}

	cfg := ds.Config()
	fmt.Printf("Tracks:          %d\n", len(ds.Tracks()))
	fmt.Printf("Cell types:      %d (%s)\n", ds.NumCellTypes(), strings.Join(ds.CellTypes(), ", "))
	fmt.Printf("Samples:         %d\n", ds.Len())
	if present, total := ds.FeatureCoverage(); total > 0 {
		fmt.Printf("Feature lookup:  %d of %d (cell type, feature) pairs have ground truth\n",
			present, total)
	}
	fmt.Printf("Window:          %d bp, center bin %d bp, stride %d, strand %s\n",
		cfg.SequenceLength, cfg.CenterBin, cfg.PositionSkip, cfg.Strand)

	sampler, err := sampling.NewSubset(ds.Len(), numSamples, seed)
	if err != nil {
		return err
	}
	requested := sampler.Len()

	l, err := loader.New(ds, sampler, batchSize, workers)
	if err != nil {
		return err
	}

	// One series per target column; feature columns only exist for
	// per-cell-type samples, otherwise everything pools into one series.
	perCellType := cfg.CellWise && !cfg.MultiCTTarget
	var series [][]float64
	if perCellType {
		series = make([][]float64, len(flags.targetFeatures))
	} else {
		series = make([][]float64, 1)
	}

	delivered := 0
	err = l.Run(func(b *loader.Batch) error {
		delivered += len(b.Samples)
		for _, s := range b.Samples {
			if perCellType {
				for c, v := range s.Target[0] {
					series[c] = append(series[c], float64(v))
				}
				continue
			}
			for _, row := range s.Target {
				for _, v := range row {
					series[0] = append(series[0], float64(v))
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Probed:          %d of %d requested (%d rejected)\n",
		delivered, requested, requested-delivered)
	for c, values := range series {
		if len(values) == 0 {
			continue
		}
		name := "all targets"
		if perCellType {
			name = flags.targetFeatures[c]
		}
		mean, std := stat.MeanStdDev(values, nil)
		fmt.Printf("  %-14s mean %.4f, stddev %.4f over %d values\n", name, mean, std, len(values))
	}
	return nil
}
