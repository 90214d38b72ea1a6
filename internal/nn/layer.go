package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Param is a named trainable tensor with its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, rows, cols int, init []float64) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, init),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// Layer is a differentiable transformation over a batch of row vectors.
// Backward must be called after the Forward whose output it differentiates.
type Layer interface {
	Forward(x *mat.Dense) *mat.Dense
	Backward(dy *mat.Dense) *mat.Dense
}

// Linear computes x·Wᵀ + b with W stored as out×in.
type Linear struct {
	Weight *Param
	Bias   *Param

	in, out int
	input   *mat.Dense
}

// NewLinear initialises weights and bias uniformly in ±1/√in.
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	bound := 1 / math.Sqrt(float64(in))
	uniform := func(n int) []float64 {
		v := make([]float64, n)
		for i := range v {
			v[i] = (rng.Float64()*2 - 1) * bound
		}
		return v
	}
	return &Linear{
		Weight: newParam(name+".weight", out, in, uniform(out*in)),
		Bias:   newParam(name+".bias", 1, out, uniform(out)),
		in:     in,
		out:    out,
	}
}

// In returns the input width.
func (l *Linear) In() int { return l.in }

// Out returns the output width.
func (l *Linear) Out() int { return l.out }

func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	l.input = x
	var y mat.Dense
	y.Mul(x, l.Weight.Value.T())
	bias := l.Bias.Value.RawRowView(0)
	n, _ := y.Dims()
	for i := 0; i < n; i++ {
		floats.Add(y.RawRowView(i), bias)
	}
	return &y
}

func (l *Linear) Backward(dy *mat.Dense) *mat.Dense {
	var dw mat.Dense
	dw.Mul(dy.T(), l.input)
	l.Weight.Grad.Add(l.Weight.Grad, &dw)

	db := l.Bias.Grad.RawRowView(0)
	n, _ := dy.Dims()
	for i := 0; i < n; i++ {
		floats.Add(db, dy.RawRowView(i))
	}

	var dx mat.Dense
	dx.Mul(dy, l.Weight.Value)
	return &dx
}

func (l *Linear) Params() []*Param {
	return []*Param{l.Weight, l.Bias}
}

// ReLU zeroes negative activations.
type ReLU struct {
	out *mat.Dense
}

func (r *ReLU) Forward(x *mat.Dense) *mat.Dense {
	var y mat.Dense
	y.Apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	}, x)
	r.out = &y
	return &y
}

func (r *ReLU) Backward(dy *mat.Dense) *mat.Dense {
	var dx mat.Dense
	dx.Apply(func(i, j int, v float64) float64 {
		if r.out.At(i, j) > 0 {
			return v
		}
		return 0
	}, dy)
	return &dx
}

// Sigmoid squashes activations into (0, 1).
type Sigmoid struct {
	out *mat.Dense
}

func (s *Sigmoid) Forward(x *mat.Dense) *mat.Dense {
	var y mat.Dense
	y.Apply(func(_, _ int, v float64) float64 {
		return 1 / (1 + math.Exp(-v))
	}, x)
	s.out = &y
	return &y
}

func (s *Sigmoid) Backward(dy *mat.Dense) *mat.Dense {
	var dx mat.Dense
	dx.Apply(func(i, j int, v float64) float64 {
		p := s.out.At(i, j)
		return v * p * (1 - p)
	}, dy)
	return &dx
}

// Sequential chains layers.
type Sequential []Layer

func (s Sequential) Forward(x *mat.Dense) *mat.Dense {
	for _, layer := range s {
		x = layer.Forward(x)
	}
	return x
}

func (s Sequential) Backward(dy *mat.Dense) *mat.Dense {
	for i := len(s) - 1; i >= 0; i-- {
		dy = s[i].Backward(dy)
	}
	return dy
}

// Params collects the trainable parameters of every layer in order.
func (s Sequential) Params() []*Param {
	var params []*Param
	for _, layer := range s {
		if p, ok := layer.(interface{ Params() []*Param }); ok {
			params = append(params, p.Params()...)
		}
	}
	return params
}
