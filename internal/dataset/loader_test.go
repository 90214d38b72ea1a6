package dataset

import (
	"sort"
	"testing"
)

func tinySplit(n int) *Split {
	s := &Split{Width: 2}
	for i := 0; i < n; i++ {
		s.append([]float64{float64(i), float64(i)}, i%10)
	}
	return s
}

func TestLoaderBatchesWithRemainder(t *testing.T) {
	l := NewLoader(tinySplit(5), 2, false, 1)
	if l.NumBatches() != 3 {
		t.Fatalf("NumBatches = %d", l.NumBatches())
	}
	l.Reset()
	var sizes []int
	for l.Scan() {
		b := l.Batch()
		sizes = append(sizes, b.Size())
		if r, _ := b.Inputs.Dims(); r != b.Size() {
			t.Fatalf("rows %d != labels %d", r, b.Size())
		}
	}
	if len(sizes) != 3 || sizes[2] != 1 {
		t.Fatalf("batch sizes = %v", sizes)
	}
}

func TestLoaderShuffleCoversEveryExample(t *testing.T) {
	l := NewLoader(tinySplit(7), 3, true, 42)
	for epoch := 0; epoch < 2; epoch++ {
		l.Reset()
		var seen []int
		for l.Scan() {
			b := l.Batch()
			for r := 0; r < b.Size(); r++ {
				seen = append(seen, int(b.Inputs.At(r, 0)))
			}
		}
		sort.Ints(seen)
		for i, v := range seen {
			if v != i {
				t.Fatalf("epoch %d: seen = %v", epoch, seen)
			}
		}
	}
}

func TestLoaderSeedIsDeterministic(t *testing.T) {
	first := func() []float64 {
		l := NewLoader(tinySplit(9), 9, true, 7)
		l.Reset()
		l.Scan()
		b := l.Batch()
		out := make([]float64, b.Size())
		for r := range out {
			out[r] = b.Inputs.At(r, 0)
		}
		return out
	}
	a, b := first(), first()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("orders differ: %v vs %v", a, b)
		}
	}
}
