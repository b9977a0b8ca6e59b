package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/inodb/epidata/internal/loader"
	"github.com/inodb/epidata/internal/output"
	"github.com/inodb/epidata/internal/sampling"
)

func newExportCmd() *cobra.Command {
	var (
		flags      datasetFlags
		outDir     string
		numSamples float64
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export sampled windows to NumPy arrays plus a TSV index",
		Long: `Export writes sequences.npy and targets.npy for a subset of the
dataset, plus index.tsv mapping each array row to its genomic coordinates.`,
		Example: `  epidata export --fasta ref.fa.gz --bed peaks.bed \
    --tracks tracks.txt --intervals regions.bed \
    --target-features CTCF --num-samples 10000 -o out/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(&flags, outDir, numSamples, seed)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().Float64Var(&numSamples, "num-samples", -1,
		"how many windows to export: a count (>=1), a fraction in (0,1), or -1 for everything in natural order")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed for subsampling")

	return cmd
}

func runExport(flags *datasetFlags, outDir string, numSamples float64, seed int64) error {
	ds, err := flags.build()
	if err != nil {
		return err
	}

	sampler, err := sampling.NewSubset(ds.Len(), numSamples, seed)
	if err != nil {
		return err
	}

	cfg := ds.Config()
	perCellType := cfg.CellWise && !cfg.MultiCTTarget
	cellTypes := ds.CellTypes()

	batch := &loader.Batch{}
	var records []output.Record
	rejected := 0

	sampler.Reset()
	for {
		idx, ok := sampler.Next()
		if !ok {
			break
		}
		sample, err := ds.Get(idx)
		if err != nil {
			return fmt.Errorf("retrieve index %d: %w", idx, err)
		}
		if sample == nil {
			rejected++
			continue
		}

		chrom, pos, ctIdx := ds.ResolveCoords(idx)
		rec := output.Record{Index: len(batch.Samples), Chrom: chrom, Position: pos}
		if perCellType {
			rec.CellType = cellTypes[ctIdx]
			rec.Values = sample.Target[0]
		}
		records = append(records, rec)
		batch.Samples = append(batch.Samples, sample)
	}

	if len(batch.Samples) == 0 {
		return fmt.Errorf("no windows passed the quality checks")
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if err := writeFile(filepath.Join(outDir, "sequences.npy"), func(w io.Writer) error {
		return loader.WriteSequencesNpy(w, batch)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "targets.npy"), func(w io.Writer) error {
		return loader.WriteTargetsNpy(w, batch)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "index.tsv"), func(w io.Writer) error {
		var features []string
		if perCellType {
			features = flags.targetFeatures
		}
		tw := output.NewTabWriter(w, features)
		if err := tw.WriteHeader(); err != nil {
			return err
		}
		for _, rec := range records {
			if err := tw.Write(rec); err != nil {
				return err
			}
		}
		return tw.Flush()
	}); err != nil {
		return err
	}

	fmt.Printf("Exported %d windows (%d rejected) to %s\n", len(batch.Samples), rejected, outDir)
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
