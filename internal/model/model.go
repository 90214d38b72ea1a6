package model

import (
	"gonum.org/v1/gonum/mat"

	"digitforge/internal/nn"
)

// Batch represents a minibatch of flattened images and labels.
type Batch struct {
	Inputs *mat.Dense
	Labels []int
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int {
	return len(b.Labels)
}

// Model is anything whose parameters can be checkpointed.
type Model interface {
	Params() []*nn.Param
}

// State snapshots the parameters of m.
func State(m Model) nn.StateDict {
	return nn.ExportState(m.Params())
}

// LoadState replaces the parameters of m with sd.
func LoadState(m Model, sd nn.StateDict) error {
	return nn.ImportState(m.Params(), sd)
}
