package model

import (
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"digitforge/internal/nn"
)

func syntheticBatch(rng *rand.Rand, n, width int) Batch {
	inputs := mat.NewDense(n, width, nil)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = i % 2
		row := inputs.RawRowView(i)
		for j := range row {
			if (j%2 == 0) == (labels[i] == 0) {
				row[j] = 0.9
			} else {
				row[j] = rng.Float64() * 0.1
			}
		}
	}
	return Batch{Inputs: inputs, Labels: labels}
}

func TestClassifierTrainStepReducesLoss(t *testing.T) {
	clf := NewClassifier(1)
	opt := nn.NewAdam(clf.Params(), 1e-3)
	batch := syntheticBatch(rand.New(rand.NewSource(1)), 4, InputSize)

	opt.ZeroGrad()
	loss1 := clf.TrainStep(batch)
	opt.Step()
	for i := 0; i < 5; i++ {
		opt.ZeroGrad()
		clf.TrainStep(batch)
		opt.Step()
	}
	opt.ZeroGrad()
	loss2 := clf.TrainStep(batch)
	if loss2 > loss1 {
		t.Fatalf("expected loss to decrease; loss1=%f loss2=%f", loss1, loss2)
	}
}

func TestClassifierEvaluateCountsCorrect(t *testing.T) {
	clf := NewClassifier(7)
	batch := syntheticBatch(rand.New(rand.NewSource(2)), 6, InputSize)
	loss, correct := clf.Evaluate(batch)
	if loss < 0 {
		t.Fatalf("negative loss %f", loss)
	}
	if correct < 0 || correct > batch.Size() {
		t.Fatalf("correct=%d out of range", correct)
	}
}

func TestCVAEConfigValidate(t *testing.T) {
	cfg := DefaultCVAEConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := cfg
	bad.XDim = 780
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for non-square x_dim, got %v", err)
	}
	bad = cfg
	bad.Version = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for version 0, got %v", err)
	}
}

func TestCVAEDecodeShape(t *testing.T) {
	cfg := CVAEConfig{Version: CVAEConfigVersion, XDim: 16, HDim1: 8, HDim2: 6, ZDim: 2, NumClasses: 3}
	vae, err := NewOneHotCVAE(cfg, 1)
	if err != nil {
		t.Fatalf("NewOneHotCVAE: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	out := vae.Decode(nn.RandN(rng, 5, cfg.ZDim), nn.OneHot([]int{2, 2, 2, 2, 2}, cfg.NumClasses))
	r, c := out.Dims()
	if r != 5 || c != cfg.XDim {
		t.Fatalf("decode shape %dx%d", r, c)
	}
	for _, v := range out.RawMatrix().Data {
		if v <= 0 || v >= 1 {
			t.Fatalf("pixel %f outside (0,1)", v)
		}
	}
}

func TestCVAEBackpropReducesLoss(t *testing.T) {
	cfg := CVAEConfig{Version: CVAEConfigVersion, XDim: 16, HDim1: 16, HDim2: 8, ZDim: 2, NumClasses: 2}
	vae, err := NewOneHotCVAE(cfg, 3)
	if err != nil {
		t.Fatalf("NewOneHotCVAE: %v", err)
	}
	opt := nn.NewAdam(vae.Params(), 1e-2)
	batch := syntheticBatch(rand.New(rand.NewSource(4)), 8, cfg.XDim)
	rng := rand.New(rand.NewSource(5))

	var first, last float64
	for i := 0; i < 60; i++ {
		opt.ZeroGrad()
		loss := vae.Backprop(batch, rng)
		opt.Step()
		if i == 0 {
			first = loss
		}
		last = loss
	}
	if last >= first {
		t.Fatalf("expected loss to decrease; first=%f last=%f", first, last)
	}
}

func TestStateRoundTripBetweenModels(t *testing.T) {
	a := NewClassifier(1)
	b := NewClassifier(2)
	if err := LoadState(b, State(a)); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	pa, pb := a.Params(), b.Params()
	for i := range pa {
		if !mat.Equal(pa[i].Value, pb[i].Value) {
			t.Fatalf("param %s differs after load", pa[i].Name)
		}
	}
}
