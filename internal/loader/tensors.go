package loader

import (
	"fmt"
	"io"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// SequenceTensor converts the batch's sequence windows into a
// [batch, length, alphabet] tensor.
func (b *Batch) SequenceTensor() (*tensors.Tensor, error) {
	if len(b.Samples) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	seqs := make([][][]float32, len(b.Samples))
	for i, s := range b.Samples {
		seqs[i] = s.Sequence
	}
	return tensors.FromAnyValue(seqs), nil
}

// TargetTensor converts the batch's targets into a
// [batch, rows, features] tensor.
func (b *Batch) TargetTensor() (*tensors.Tensor, error) {
	if len(b.Samples) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	targets := make([][][]float32, len(b.Samples))
	for i, s := range b.Samples {
		targets[i] = s.Target
	}
	return tensors.FromAnyValue(targets), nil
}

// MaskTensor converts the batch's target masks into a float32
// [batch, rows, features] tensor of zeros and ones, or nil when the batch
// carries no masks (position-wise samples).
func (b *Batch) MaskTensor() (*tensors.Tensor, error) {
	if len(b.Samples) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	if b.Samples[0].Mask == nil {
		return nil, nil
	}
	masks := make([][][]float32, len(b.Samples))
	for i, s := range b.Samples {
		rows := make([][]float32, len(s.Mask))
		for r, maskRow := range s.Mask {
			row := make([]float32, len(maskRow))
			for c, set := range maskRow {
				if set {
					row[c] = 1
				}
			}
			rows[r] = row
		}
		masks[i] = rows
	}
	return tensors.FromAnyValue(masks), nil
}

// CellTypeTensor converts the batch's cell-type one-hot vectors into a
// [batch, cellTypes] tensor, or nil when samples carry no cell-type vector.
func (b *Batch) CellTypeTensor() (*tensors.Tensor, error) {
	if len(b.Samples) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	if b.Samples[0].CellType == nil {
		return nil, nil
	}
	vecs := make([][]float32, len(b.Samples))
	for i, s := range b.Samples {
		vecs[i] = s.CellType
	}
	return tensors.FromAnyValue(vecs), nil
}

// TrainDataset adapts a Loader to the gomlx train.Dataset surface: Yield
// hands out tensor batches, Restart begins a new epoch.
type TrainDataset struct {
	loader  *Loader
	batches chan *Batch
	done    chan error
}

// NewTrainDataset wraps a loader for consumption by a gomlx training loop.
// Call Restart before the first Yield.
func NewTrainDataset(l *Loader) *TrainDataset {
	return &TrainDataset{loader: l}
}

// Name identifies the dataset in training logs.
func (t *TrainDataset) Name() string {
	return "epidata"
}

// Restart starts a new epoch in the background.
func (t *TrainDataset) Restart() error {
	t.batches = make(chan *Batch, 1)
	t.done = make(chan error, 1)
	go func() {
		defer close(t.batches)
		t.done <- t.loader.Run(func(b *Batch) error {
			t.batches <- b
			return nil
		})
	}()
	return nil
}

// Yield returns the next batch as (spec, inputs, labels). Inputs are the
// sequence tensor plus the cell-type tensor when present; labels are the
// target tensor plus the mask tensor when present. At epoch end it returns
// io.EOF, or the loader's error if the epoch aborted.
func (t *TrainDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if t.batches == nil {
		return nil, nil, nil, fmt.Errorf("Restart must be called before Yield")
	}

	batch, ok := <-t.batches
	if !ok {
		if runErr := <-t.done; runErr != nil {
			return nil, nil, nil, runErr
		}
		return nil, nil, nil, io.EOF
	}

	seqT, err := batch.SequenceTensor()
	if err != nil {
		return nil, nil, nil, err
	}
	inputs = []*tensors.Tensor{seqT}
	if cellT, err := batch.CellTypeTensor(); err != nil {
		return nil, nil, nil, err
	} else if cellT != nil {
		inputs = append(inputs, cellT)
	}

	targetT, err := batch.TargetTensor()
	if err != nil {
		return nil, nil, nil, err
	}
	labels = []*tensors.Tensor{targetT}
	if maskT, err := batch.MaskTensor(); err != nil {
		return nil, nil, nil, err
	} else if maskT != nil {
		labels = append(labels, maskT)
	}

	return nil, inputs, labels, nil
}
