package metrics

import (
	"math"
	"testing"
	"time"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(64, 20*time.Millisecond, 10*time.Millisecond, 1.2)
	w.Record(64, 10*time.Millisecond, 20*time.Millisecond, 0.8)
	snap := w.Snapshot()
	if math.Abs(snap.ImagesPerSec-2133.3333) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.ImagesPerSec)
	}
	if w.samples != 0 || w.steps != 0 {
		t.Fatalf("window was not reset")
	}
	if snap.LastLoss != 0.8 {
		t.Fatalf("expected last loss 0.8, got %.2f", snap.LastLoss)
	}
	if math.Abs(snap.AvgLoss-1.0) > 1e-9 {
		t.Fatalf("expected mean loss 1.0, got %.4f", snap.AvgLoss)
	}
}

func TestEvalReport(t *testing.T) {
	var e Eval
	e.Add(3.0, 2, 4)
	e.Add(1.0, 1, 4)
	r := e.Report(2)
	if r.Epoch != 2 || r.Total != 8 || r.Correct != 3 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.AvgLoss != 0.5 || r.Accuracy != 0.375 {
		t.Fatalf("unexpected averages %+v", r)
	}

	var empty Eval
	if got := empty.Report(1); got.Accuracy != 0 || got.AvgLoss != 0 {
		t.Fatalf("empty report %+v", got)
	}
}

func TestHistory(t *testing.T) {
	var h History
	h.AddTrain(0, 2.3)
	h.AddTrain(64, 1.9)
	h.AddTest(128, EvalReport{AvgLoss: 1.5})
	if len(h.TrainLosses) != 2 || h.TrainCounter[1] != 64 {
		t.Fatalf("train history %+v", h)
	}
	if h.TestCounter[0] != 128 || h.TestLosses[0] != 1.5 {
		t.Fatalf("test history %+v", h)
	}
}
