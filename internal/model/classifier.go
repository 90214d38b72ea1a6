package model

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"digitforge/internal/nn"
)

const (
	ImageSide  = 28
	InputSize  = ImageSide * ImageSide
	NumClasses = 10
)

// Classifier is a two hidden layer perceptron emitting log-probabilities
// over the digit classes.
type Classifier struct {
	net nn.Sequential
}

// NewClassifier constructs the model with random initialization.
func NewClassifier(seed int64) *Classifier {
	rng := rand.New(rand.NewSource(seed))
	return &Classifier{
		net: nn.Sequential{
			nn.NewLinear("fc1", InputSize, 256, rng),
			&nn.ReLU{},
			nn.NewLinear("fc2", 256, 128, rng),
			&nn.ReLU{},
			nn.NewLinear("fc3", 128, NumClasses, rng),
		},
	}
}

// Forward returns per-row log-probabilities.
func (m *Classifier) Forward(x *mat.Dense) *mat.Dense {
	return nn.LogSoftmax(m.net.Forward(x))
}

// Backward propagates a gradient taken with respect to the logits of the
// most recent Forward.
func (m *Classifier) Backward(dLogits *mat.Dense) {
	m.net.Backward(dLogits)
}

// TrainStep accumulates gradients for batch and returns its mean NLL.
func (m *Classifier) TrainStep(batch Batch) float64 {
	if batch.Size() == 0 {
		return 0
	}
	loss, grad := nn.NLLLoss(m.Forward(batch.Inputs), batch.Labels, nn.Mean)
	m.Backward(grad)
	return loss
}

// Evaluate returns the summed NLL and the number of correct top-1
// predictions for batch without touching gradients.
func (m *Classifier) Evaluate(batch Batch) (float64, int) {
	if batch.Size() == 0 {
		return 0, 0
	}
	logProbs := m.Forward(batch.Inputs)
	loss, _ := nn.NLLLoss(logProbs, batch.Labels, nn.Sum)
	correct := 0
	for i, pred := range nn.Argmax(logProbs) {
		if pred == batch.Labels[i] {
			correct++
		}
	}
	return loss, correct
}

func (m *Classifier) Params() []*nn.Param {
	return m.net.Params()
}
