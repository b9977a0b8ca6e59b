// Package sampling provides deterministic index-order generators that decide
// the order and subset in which a training loop consumes dataset samples.
package sampling

import (
	"fmt"
	"math"
	"math/rand"
)

// DefaultChunkSize is the shuffle chunk size. Chunked shuffling permutes
// chunk order and within-chunk order instead of materializing one permutation
// of the whole index space, which stays memory-bounded for datasets with
// billions of samples.
const DefaultChunkSize = 10000000

// replacementBatch is the draw batch size for with-replacement sampling.
const replacementBatch = 32

// Sampler emits a finite sequence of dataset indices. Reset rederives the
// order from the seed, so a sampler iterated twice emits the same sequence.
type Sampler interface {
	// Len returns the number of indices one full iteration emits.
	Len() int
	// Reset restarts iteration from the seeded order.
	Reset()
	// Next returns the next index, or ok=false when the epoch is done.
	Next() (idx int, ok bool)
}

// Drain resets a sampler and collects one full epoch of indices.
func Drain(s Sampler) []int {
	s.Reset()
	out := make([]int, 0, s.Len())
	for {
		idx, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, idx)
	}
}

// ChunkedShuffle samples every index in [0, n) exactly once per epoch,
// shuffling chunk order and within-chunk order from a seeded generator. Only
// one within-chunk permutation is held at a time.
type ChunkedShuffle struct {
	n         int
	chunkSize int
	seed      int64

	rng        *rand.Rand
	chunkOrder []int
	chunkPos   int
	perm       []int
	permPos    int
}

// NewChunkedShuffle creates a chunked shuffler over [0, n). A chunkSize of 0
// selects DefaultChunkSize.
func NewChunkedShuffle(n, chunkSize int, seed int64) (*ChunkedShuffle, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative dataset length %d", n)
	}
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	s := &ChunkedShuffle{n: n, chunkSize: chunkSize, seed: seed}
	s.Reset()
	return s, nil
}

// Len returns n: every index is emitted exactly once per epoch.
func (s *ChunkedShuffle) Len() int {
	return s.n
}

// Reset restarts the epoch with a fresh seeded generator.
func (s *ChunkedShuffle) Reset() {
	s.rng = rand.New(rand.NewSource(s.seed))
	numChunks := 0
	if s.n > 0 {
		numChunks = (s.n-1)/s.chunkSize + 1
	}
	s.chunkOrder = s.rng.Perm(numChunks)
	s.chunkPos = 0
	s.perm = nil
	s.permPos = 0
}

// Next emits the next shuffled index.
func (s *ChunkedShuffle) Next() (int, bool) {
	for s.permPos >= len(s.perm) {
		if s.chunkPos >= len(s.chunkOrder) {
			return 0, false
		}
		chunkIdx := s.chunkOrder[s.chunkPos]
		s.chunkPos++

		size := s.chunkSize
		if rem := s.n - chunkIdx*s.chunkSize; rem < size {
			size = rem
		}
		s.perm = s.rng.Perm(size)
		s.permPos = 0
	}

	chunkIdx := s.chunkOrder[s.chunkPos-1]
	idx := chunkIdx*s.chunkSize + s.perm[s.permPos]
	s.permPos++
	return idx, true
}

// WithReplacement draws a configured number of indices uniformly at random
// from [0, n), with replacement, in batches of 32 plus a remainder batch.
type WithReplacement struct {
	n          int
	numSamples int
	seed       int64

	rng     *rand.Rand
	emitted int
	buf     []int
	bufPos  int
}

// NewWithReplacement creates a with-replacement sampler drawing numSamples
// indices from [0, n).
func NewWithReplacement(n, numSamples int, seed int64) (*WithReplacement, error) {
	if n <= 0 {
		return nil, fmt.Errorf("dataset length must be positive, got %d", n)
	}
	if numSamples < 1 {
		return nil, fmt.Errorf("num_samples must be positive, got %d", numSamples)
	}
	s := &WithReplacement{n: n, numSamples: numSamples, seed: seed}
	s.Reset()
	return s, nil
}

// Len returns the configured number of draws.
func (s *WithReplacement) Len() int {
	return s.numSamples
}

// Reset restarts the draws from the seed.
func (s *WithReplacement) Reset() {
	s.rng = rand.New(rand.NewSource(s.seed))
	s.emitted = 0
	s.buf = nil
	s.bufPos = 0
}

// Next emits the next drawn index.
func (s *WithReplacement) Next() (int, bool) {
	if s.emitted >= s.numSamples {
		return 0, false
	}
	if s.bufPos >= len(s.buf) {
		size := replacementBatch
		if rem := s.numSamples - s.emitted; rem < size {
			size = rem
		}
		s.buf = s.buf[:0]
		for i := 0; i < size; i++ {
			s.buf = append(s.buf, s.rng.Intn(s.n))
		}
		s.bufPos = 0
	}
	idx := s.buf[s.bufPos]
	s.bufPos++
	s.emitted++
	return idx, true
}

// Subset samples a bounded subset of [0, n) without replacement. The size
// argument follows the training-config convention: exactly -1 means the whole
// dataset in natural order, a fraction in (0, 1) resolves to
// max(1, round(f*n)) draws, a count in [1, n] is used as-is, and a count
// above n falls back to the whole dataset in natural order.
type Subset struct {
	n          int
	numSamples float64
	seed       int64

	indices []int
	pos     int
}

// NewSubset creates a bounded-subset sampler over [0, n).
func NewSubset(n int, numSamples float64, seed int64) (*Subset, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative dataset length %d", n)
	}
	switch {
	case numSamples == -1:
	case numSamples > 0 && numSamples < 1:
	case numSamples >= 1 && numSamples == math.Trunc(numSamples):
	default:
		return nil, fmt.Errorf("num_samples must be -1, a fraction in (0, 1), or a whole count, got %v", numSamples)
	}
	s := &Subset{n: n, numSamples: numSamples, seed: seed}
	s.Reset()
	return s, nil
}

// Len returns the number of indices one epoch emits.
func (s *Subset) Len() int {
	return len(s.indices)
}

// Reset rebuilds the subset from the seed.
func (s *Subset) Reset() {
	s.pos = 0
	if s.n == 0 {
		s.indices = nil
		return
	}

	var count int
	switch {
	case s.numSamples == -1 || s.numSamples > float64(s.n):
		// The whole dataset in natural order, no shuffling.
		s.indices = make([]int, s.n)
		for i := range s.indices {
			s.indices[i] = i
		}
		return
	case s.numSamples < 1:
		count = int(math.Round(s.numSamples * float64(s.n)))
		if count < 1 {
			count = 1
		}
	default:
		count = int(s.numSamples)
	}

	rng := rand.New(rand.NewSource(s.seed))
	s.indices = rng.Perm(s.n)[:count]
}

// Next emits the next subset index.
func (s *Subset) Next() (int, bool) {
	if s.pos >= len(s.indices) {
		return 0, false
	}
	idx := s.indices[s.pos]
	s.pos++
	return idx, true
}
