package nn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestLinearGradientMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	net := Sequential{NewLinear("fc1", 4, 5, rng), &ReLU{}, NewLinear("fc2", 5, 3, rng)}
	x := RandN(rng, 2, 4)
	labels := []int{0, 2}

	lossAt := func() float64 {
		loss, _ := NLLLoss(LogSoftmax(net.Forward(x)), labels, Mean)
		return loss
	}

	_, grad := NLLLoss(LogSoftmax(net.Forward(x)), labels, Mean)
	net.Backward(grad)

	const h = 1e-6
	for _, p := range net.Params() {
		w := p.Value.RawMatrix().Data
		g := p.Grad.RawMatrix().Data
		for j := range w {
			orig := w[j]
			w[j] = orig + h
			up := lossAt()
			w[j] = orig - h
			down := lossAt()
			w[j] = orig
			numeric := (up - down) / (2 * h)
			if math.Abs(numeric-g[j]) > 1e-5 {
				t.Fatalf("%s[%d]: analytic %.8f numeric %.8f", p.Name, j, g[j], numeric)
			}
		}
	}
}

func TestLogSoftmaxRowsNormalise(t *testing.T) {
	logits := mat.NewDense(2, 3, []float64{1, 2, 3, -100, 0, 100})
	lp := LogSoftmax(logits)
	for i := 0; i < 2; i++ {
		sum := 0.0
		for _, v := range lp.RawRowView(i) {
			sum += math.Exp(v)
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("row %d sums to %f", i, sum)
		}
	}
}

func TestNLLLossReductions(t *testing.T) {
	lp := LogSoftmax(mat.NewDense(2, 2, []float64{0, 0, 0, 0}))
	mean, _ := NLLLoss(lp, []int{0, 1}, Mean)
	sum, _ := NLLLoss(lp, []int{0, 1}, Sum)
	if math.Abs(mean-math.Ln2) > 1e-9 {
		t.Fatalf("mean loss %f, want ln2", mean)
	}
	if math.Abs(sum-2*math.Ln2) > 1e-9 {
		t.Fatalf("sum loss %f, want 2ln2", sum)
	}
}

func TestBCELossGradient(t *testing.T) {
	probs := mat.NewDense(1, 2, []float64{0.25, 0.5})
	targets := mat.NewDense(1, 2, []float64{0, 1})
	loss, grad := BCELoss(probs, targets)
	want := -math.Log(0.75) - math.Log(0.5)
	if math.Abs(loss-want) > 1e-9 {
		t.Fatalf("loss %f want %f", loss, want)
	}
	if grad.At(0, 0) != 0.25 || grad.At(0, 1) != -0.5 {
		t.Fatalf("unexpected grad %v", mat.Formatted(grad))
	}
}

func TestAdamReducesLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := Sequential{NewLinear("fc", 4, 3, rng)}
	opt := NewAdam(net.Params(), 0.05)
	x := mat.NewDense(2, 4, []float64{0.1, 0.2, 0.3, 0.4, 0.4, 0.3, 0.2, 0.1})
	labels := []int{1, 2}

	step := func() float64 {
		opt.ZeroGrad()
		loss, grad := NLLLoss(LogSoftmax(net.Forward(x)), labels, Mean)
		net.Backward(grad)
		opt.Step()
		return loss
	}
	first := step()
	var last float64
	for i := 0; i < 20; i++ {
		last = step()
	}
	if last >= first {
		t.Fatalf("expected loss to decrease; first=%f last=%f", first, last)
	}
}

func TestStepLRDecaysEveryStepSize(t *testing.T) {
	opt := NewAdam(nil, 1e-4)
	sched := NewStepLR(opt, 5, 0.1)
	for epoch := 1; epoch <= 4; epoch++ {
		sched.Step()
	}
	if sched.LR() != 1e-4 {
		t.Fatalf("lr changed before step size: %g", sched.LR())
	}
	sched.Step()
	if math.Abs(sched.LR()-1e-5) > 1e-18 {
		t.Fatalf("lr after 5 epochs = %g, want 1e-5", sched.LR())
	}
	for epoch := 6; epoch <= 10; epoch++ {
		sched.Step()
	}
	if math.Abs(sched.LR()-1e-6) > 1e-18 {
		t.Fatalf("lr after 10 epochs = %g, want 1e-6", sched.LR())
	}
}

func TestImportStateRejectsShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	src := NewLinear("fc", 3, 2, rng)
	dst := NewLinear("fc", 4, 2, rng)
	err := ImportState(dst.Params(), ExportState(src.Params()))
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}
}

func TestExportImportRestoresValues(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	src := NewLinear("fc", 3, 2, rng)
	dst := NewLinear("fc", 3, 2, rng)
	sd := ExportState(src.Params())
	src.Weight.Value.Set(0, 0, 42)
	if err := ImportState(dst.Params(), sd); err != nil {
		t.Fatalf("ImportState: %v", err)
	}
	if dst.Weight.Value.At(0, 0) == 42 {
		t.Fatalf("exported state aliases the source model")
	}
	if !mat.Equal(dst.Bias.Value, src.Bias.Value) {
		t.Fatalf("bias not restored")
	}
}
