package dataset

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"digitforge/internal/model"
)

// Loader walks a Split in minibatches. Call Reset at the start of each
// epoch, then Scan until it returns false.
type Loader struct {
	split     *Split
	batchSize int
	shuffle   bool
	rng       *rand.Rand

	order []int
	pos   int
	batch model.Batch
}

// NewLoader returns a loader over split. When shuffle is set, each Reset
// draws a new permutation from a generator seeded with seed.
func NewLoader(split *Split, batchSize int, shuffle bool, seed int64) *Loader {
	if batchSize <= 0 {
		batchSize = 1
	}
	l := &Loader{
		split:     split,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		order:     make([]int, split.Len()),
	}
	for i := range l.order {
		l.order[i] = i
	}
	return l
}

// Len is the number of examples in the underlying split.
func (l *Loader) Len() int {
	return l.split.Len()
}

// NumBatches is the number of batches per epoch, counting a trailing
// partial batch.
func (l *Loader) NumBatches() int {
	return (l.split.Len() + l.batchSize - 1) / l.batchSize
}

// Reset rewinds to the start of a new epoch.
func (l *Loader) Reset() {
	l.pos = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// Scan prepares the next batch.
func (l *Loader) Scan() bool {
	if l.pos >= len(l.order) {
		return false
	}
	end := l.pos + l.batchSize
	if end > len(l.order) {
		end = len(l.order)
	}
	idx := l.order[l.pos:end]
	inputs := mat.NewDense(len(idx), l.split.Width, nil)
	labels := make([]int, len(idx))
	for r, i := range idx {
		inputs.SetRow(r, l.split.Row(i))
		labels[r] = l.split.Labels[i]
	}
	l.batch = model.Batch{Inputs: inputs, Labels: labels}
	l.pos = end
	return true
}

// Batch returns the batch prepared by the last successful Scan.
func (l *Loader) Batch() model.Batch {
	return l.batch
}
