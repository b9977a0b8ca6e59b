package loader

import (
	"fmt"
	"io"

	"github.com/kshedden/gonpy"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// WriteSequencesNpy writes the batch's sequence windows to w as a NumPy
// array of shape [batch, length, alphabet].
func WriteSequencesNpy(w io.Writer, b *Batch) error {
	if len(b.Samples) == 0 {
		return fmt.Errorf("empty batch")
	}
	length := len(b.Samples[0].Sequence)
	if length == 0 {
		return fmt.Errorf("batch has empty sequences")
	}
	alphabet := len(b.Samples[0].Sequence[0])

	flat := make([]float32, 0, len(b.Samples)*length*alphabet)
	for _, s := range b.Samples {
		if len(s.Sequence) != length {
			return fmt.Errorf("ragged batch: sequence length %d != %d", len(s.Sequence), length)
		}
		for _, row := range s.Sequence {
			flat = append(flat, row...)
		}
	}

	npw, err := gonpy.NewWriter(nopCloser{w})
	if err != nil {
		return fmt.Errorf("create npy writer: %w", err)
	}
	npw.Shape = []int{len(b.Samples), length, alphabet}
	return npw.WriteFloat32(flat)
}

// WriteTargetsNpy writes the batch's target values to w as a NumPy array of
// shape [batch, rows, features].
func WriteTargetsNpy(w io.Writer, b *Batch) error {
	if len(b.Samples) == 0 {
		return fmt.Errorf("empty batch")
	}
	rows := len(b.Samples[0].Target)
	if rows == 0 {
		return fmt.Errorf("batch has empty targets")
	}
	cols := len(b.Samples[0].Target[0])

	flat := make([]float32, 0, len(b.Samples)*rows*cols)
	for _, s := range b.Samples {
		if len(s.Target) != rows {
			return fmt.Errorf("ragged batch: target rows %d != %d", len(s.Target), rows)
		}
		for _, row := range s.Target {
			flat = append(flat, row...)
		}
	}

	npw, err := gonpy.NewWriter(nopCloser{w})
	if err != nil {
		return fmt.Errorf("create npy writer: %w", err)
	}
	npw.Shape = []int{len(b.Samples), rows, cols}
	return npw.WriteFloat32(flat)
}
