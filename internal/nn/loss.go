package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Reduction selects how per-sample losses are combined.
type Reduction int

const (
	Mean Reduction = iota
	Sum
)

// LogSoftmax normalises each row of logits into log-probabilities.
func LogSoftmax(logits *mat.Dense) *mat.Dense {
	r, c := logits.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := logits.RawRowView(i)
		maxLogit := row[0]
		for _, v := range row {
			if v > maxLogit {
				maxLogit = v
			}
		}
		sum := 0.0
		for _, v := range row {
			sum += math.Exp(v - maxLogit)
		}
		logZ := maxLogit + math.Log(sum)
		dst := out.RawRowView(i)
		for j, v := range row {
			dst[j] = v - logZ
		}
	}
	return out
}

// NLLLoss is the negative log-likelihood of labels under logProbs. The
// returned gradient is taken with respect to the logits that produced
// logProbs through LogSoftmax.
func NLLLoss(logProbs *mat.Dense, labels []int, reduction Reduction) (float64, *mat.Dense) {
	r, c := logProbs.Dims()
	grad := mat.NewDense(r, c, nil)
	scale := 1.0
	if reduction == Mean && r > 0 {
		scale = 1 / float64(r)
	}
	loss := 0.0
	for i := 0; i < r; i++ {
		src := logProbs.RawRowView(i)
		dst := grad.RawRowView(i)
		y := labels[i]
		loss -= src[y]
		for j, lp := range src {
			dst[j] = math.Exp(lp) * scale
		}
		dst[y] -= scale
	}
	return loss * scale, grad
}

// BCELoss is the summed binary cross-entropy between probabilities and
// targets. The gradient is with respect to the pre-sigmoid logits.
func BCELoss(probs, targets *mat.Dense) (float64, *mat.Dense) {
	const eps = 1e-12
	r, c := probs.Dims()
	grad := mat.NewDense(r, c, nil)
	loss := 0.0
	for i := 0; i < r; i++ {
		p := probs.RawRowView(i)
		t := targets.RawRowView(i)
		g := grad.RawRowView(i)
		for j := range p {
			pj := math.Min(math.Max(p[j], eps), 1-eps)
			loss -= t[j]*math.Log(pj) + (1-t[j])*math.Log(1-pj)
			g[j] = p[j] - t[j]
		}
	}
	return loss, grad
}
