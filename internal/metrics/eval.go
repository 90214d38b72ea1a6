package metrics

// EvalReport summarises one pass over the test split.
type EvalReport struct {
	Epoch    int
	AvgLoss  float64
	Correct  int
	Total    int
	Accuracy float64
}

// Eval sums per-batch losses and top-1 matches.
type Eval struct {
	loss    float64
	correct int
	total   int
}

// Add records a batch of n examples whose summed loss is loss.
func (e *Eval) Add(loss float64, correct, n int) {
	e.loss += loss
	e.correct += correct
	e.total += n
}

// Report averages the accumulated loss over every example seen.
func (e *Eval) Report(epoch int) EvalReport {
	r := EvalReport{Epoch: epoch, Correct: e.correct, Total: e.total}
	if e.total > 0 {
		r.AvgLoss = e.loss / float64(e.total)
		r.Accuracy = float64(e.correct) / float64(e.total)
	}
	return r
}

// History keeps the loss curves of a training run. TrainCounter holds the
// number of training examples seen when the matching TrainLosses entry was
// taken, TestCounter the same for TestLosses.
type History struct {
	TrainLosses  []float64
	TrainCounter []int
	TestLosses   []float64
	TestCounter  []int
}

// AddTrain appends one training step.
func (h *History) AddTrain(seen int, loss float64) {
	h.TrainCounter = append(h.TrainCounter, seen)
	h.TrainLosses = append(h.TrainLosses, loss)
}

// AddTest appends one evaluation.
func (h *History) AddTest(seen int, r EvalReport) {
	h.TestCounter = append(h.TestCounter, seen)
	h.TestLosses = append(h.TestLosses, r.AvgLoss)
}
