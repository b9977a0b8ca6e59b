// Package loader feeds sampled dataset indices through a pool of workers and
// assembles retrieved samples into training batches.
package loader

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/inodb/epidata/internal/dataset"
	"github.com/inodb/epidata/internal/sampling"
)

// fetchItem is one sampled index tagged with its emission sequence number.
type fetchItem struct {
	Seq   int
	Index int
}

// fetchResult holds the retrieval output for one index. Sample is nil when
// the quality gate rejected the window.
type fetchResult struct {
	Seq    int
	Index  int
	Sample *dataset.Sample
	Err    error
}

// Batch is a group of retrieved samples in sampler emission order. Rejected
// samples are dropped, so a batch may be shorter than the configured size.
type Batch struct {
	Samples []*dataset.Sample
}

// Loader drives a sampler over a dataset with parallel workers. Each worker
// operates on its own dataset fork with freshly opened file handles; sharing
// one handle across workers is a correctness bug, not a slowdown.
type Loader struct {
	ds        *dataset.Dataset
	sampler   sampling.Sampler
	batchSize int
	workers   int
	logger    *zap.Logger
}

// New creates a loader. If workers is 0, runtime.NumCPU() is used.
func New(ds *dataset.Dataset, s sampling.Sampler, batchSize, workers int) (*Loader, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Loader{
		ds:        ds,
		sampler:   s,
		batchSize: batchSize,
		workers:   workers,
		logger:    zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for skip diagnostics.
func (l *Loader) SetLogger(logger *zap.Logger) {
	l.logger = logger
}

// Run iterates one epoch of the sampler and calls fn for each assembled
// batch, in sampler emission order. The final batch may be partial. A
// collaborator error aborts the epoch and is returned unmodified; quality
// rejections are skipped and counted.
func (l *Loader) Run(fn func(*Batch) error) error {
	items := make(chan fetchItem, 2*l.workers)

	// Fork the workers before feeding any indices: if a fork fails there is
	// no reader for items and a running feeder would block on it forever.
	results, err := l.fetchParallel(items)
	if err != nil {
		return err
	}

	go func() {
		defer close(items)
		l.sampler.Reset()
		seq := 0
		for {
			idx, ok := l.sampler.Next()
			if !ok {
				return
			}
			items <- fetchItem{Seq: seq, Index: idx}
			seq++
		}
	}()

	batch := &Batch{Samples: make([]*dataset.Sample, 0, l.batchSize)}
	skipped := 0

	collectErr := orderedCollect(results, func(r fetchResult) error {
		if r.Err != nil {
			return fmt.Errorf("retrieve index %d: %w", r.Index, r.Err)
		}
		if r.Sample == nil {
			skipped++
			return nil
		}
		batch.Samples = append(batch.Samples, r.Sample)
		if len(batch.Samples) == l.batchSize {
			full := batch
			batch = &Batch{Samples: make([]*dataset.Sample, 0, l.batchSize)}
			return fn(full)
		}
		return nil
	})
	if collectErr != nil {
		return collectErr
	}

	if skipped > 0 {
		l.logger.Info("skipped rejected samples", zap.Int("count", skipped))
	}

	if len(batch.Samples) > 0 {
		return fn(batch)
	}
	return nil
}

// fetchParallel retrieves items using a pool of workers, each holding its own
// dataset fork. Results arrive in completion order; use orderedCollect to
// restore emission order.
func (l *Loader) fetchParallel(items <-chan fetchItem) (<-chan fetchResult, error) {
	forks := make([]*dataset.Dataset, l.workers)
	for i := range forks {
		fork, err := l.ds.Fork()
		if err != nil {
			return nil, fmt.Errorf("fork dataset for worker %d: %w", i, err)
		}
		forks[i] = fork
	}

	results := make(chan fetchResult, 2*l.workers)

	var wg sync.WaitGroup
	wg.Add(l.workers)
	for _, fork := range forks {
		go func(ds *dataset.Dataset) {
			defer wg.Done()
			for item := range items {
				sample, err := ds.Get(item.Index)
				results <- fetchResult{
					Seq:    item.Seq,
					Index:  item.Index,
					Sample: sample,
					Err:    err,
				}
			}
		}(fork)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results, nil
}

// orderedCollect calls fn for each result in sequence-number order. It
// buffers out-of-order results in a pending map and emits them as soon as
// the next expected sequence number is available.
func orderedCollect(results <-chan fetchResult, fn func(fetchResult) error) error {
	pending := make(map[int]fetchResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}
