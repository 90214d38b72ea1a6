package nn

import "math"

// Adam implements bias-corrected Adam over a fixed parameter set.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	params []*Param
	m, v   [][]float64
	step   int
}

// NewAdam uses the usual β1=0.9, β2=0.999, ε=1e-8.
func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, params: params}
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	for i, p := range params {
		n := len(p.Value.RawMatrix().Data)
		a.m[i] = make([]float64, n)
		a.v[i] = make([]float64, n)
	}
	return a
}

// ZeroGrad clears every accumulated gradient.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.Grad.Zero()
	}
}

// Step applies one update from the accumulated gradients.
func (a *Adam) Step() {
	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))
	for i, p := range a.params {
		w := p.Value.RawMatrix().Data
		g := p.Grad.RawMatrix().Data
		m, v := a.m[i], a.v[i]
		for j := range w {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g[j]
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g[j]*g[j]
			mHat := m[j] / c1
			vHat := v[j] / c2
			w[j] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
		}
	}
}

// StepLR multiplies the optimizer rate by Gamma every StepSize epochs.
type StepLR struct {
	StepSize int
	Gamma    float64

	opt   *Adam
	epoch int
}

func NewStepLR(opt *Adam, stepSize int, gamma float64) *StepLR {
	return &StepLR{StepSize: stepSize, Gamma: gamma, opt: opt}
}

// Step advances the schedule by one epoch.
func (s *StepLR) Step() {
	s.epoch++
	if s.StepSize > 0 && s.epoch%s.StepSize == 0 {
		s.opt.LR *= s.Gamma
	}
}

// LR reports the optimizer's current rate.
func (s *StepLR) LR() float64 { return s.opt.LR }
