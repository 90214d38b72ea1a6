package trainer

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"digitforge/internal/checkpoint"
	"digitforge/internal/config"
	"digitforge/internal/dataset"
	"digitforge/internal/device"
	"digitforge/internal/model"
	"digitforge/internal/nn"
	"digitforge/internal/storage"
)

// twoClassSplit builds n images alternating between a dark class 0 and a
// bright class 1.
func twoClassSplit(n int) *dataset.Split {
	s := &dataset.Split{Width: model.InputSize}
	for i := 0; i < n; i++ {
		label := i % 2
		level := 0.1
		if label == 1 {
			level = 0.9
		}
		for p := 0; p < model.InputSize; p++ {
			s.Pixels = append(s.Pixels, level)
		}
		s.Labels = append(s.Labels, label)
	}
	return s
}

func testConfig(epochs int) *config.Classifier {
	return &config.Classifier{
		Common:        config.Common{Device: device.CPU, Seed: 7},
		DataPath:      "unused",
		Dataset:       dataset.MNIST,
		DataFormat:    dataset.FormatIDX,
		BatchSize:     2,
		TestBatchSize: 1000,
		LR:            1e-3,
		NEpochs:       epochs,
		LogInterval:   1,
		LRStepSize:    5,
		LRGamma:       0.1,
		CkptDir:       "unused",
	}
}

func newTestSession(t *testing.T, cfg *config.Classifier, store storage.Store, logger *zap.Logger) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), Options{
		Config: cfg,
		Device: device.Device{Kind: device.CPU, Threads: 1},
		Store:  store,
		Train:  twoClassSplit(4),
		Test:   twoClassSplit(4),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSingleEpochWritesOneCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	s := newTestSession(t, testConfig(1), store, zaptest.NewLogger(t))

	reports, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.AvgLoss < 0 || r.Accuracy < 0 || r.Accuracy > 1 || r.Total != 4 {
		t.Fatalf("unexpected report %+v", r)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "model_mnist.pt" {
		t.Fatalf("expected only model_mnist.pt, got %v", entries)
	}
	if h := s.History(); len(h.TrainLosses) != 2 || len(h.TestLosses) != 1 {
		t.Fatalf("unexpected history %+v", h)
	}
}

func TestResumeWithoutCheckpointFallsBack(t *testing.T) {
	store, _ := storage.NewLocalStore(t.TempDir())
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := testConfig(1)
	cfg.ResumeTraining = true

	s := newTestSession(t, cfg, store, zap.New(core))
	if n := logs.FilterMessage("No existing model found. Starting training from scratch.").Len(); n != 1 {
		t.Fatalf("expected scratch fallback log, got %d", n)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestCheckpointTracksLatestEpoch(t *testing.T) {
	ctx := context.Background()
	store, _ := storage.NewLocalStore(t.TempDir())
	cfg := testConfig(2)
	s := newTestSession(t, cfg, store, zap.NewNop())

	var previous nn.StateDict
	for epoch := 1; epoch <= 2; epoch++ {
		if err := s.TrainEpoch(ctx, epoch); err != nil {
			t.Fatalf("TrainEpoch %d: %v", epoch, err)
		}
		rec, err := checkpoint.Load(ctx, store, cfg.CheckpointKey())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		live := model.State(s.net)
		for name, tensor := range live {
			stored := rec.Model[name]
			for i, v := range tensor.Data {
				if stored.Data[i] != v {
					t.Fatalf("epoch %d: %s[%d] stored %v, live %v", epoch, name, i, stored.Data[i], v)
				}
			}
		}
		if previous != nil && previous["fc3.bias"].Data[0] == live["fc3.bias"].Data[0] {
			t.Fatalf("epoch %d did not change fc3.bias", epoch)
		}
		previous = live
	}
}

func TestResumeRestoresParameters(t *testing.T) {
	ctx := context.Background()
	store, _ := storage.NewLocalStore(t.TempDir())
	first := newTestSession(t, testConfig(1), store, zap.NewNop())
	if _, err := first.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := model.State(first.net)

	cfg := testConfig(1)
	cfg.ResumeTraining = true
	cfg.Seed = 99
	core, logs := observer.New(zapcore.InfoLevel)
	second := newTestSession(t, cfg, store, zap.New(core))
	if logs.FilterMessage("Loading existing model").Len() != 1 {
		t.Fatalf("expected resume log")
	}
	got := model.State(second.net)
	if got["fc1.weight"].Data[3] != want["fc1.weight"].Data[3] {
		t.Fatalf("parameters were not restored")
	}
}

func TestResumeRejectsForeignCheckpoint(t *testing.T) {
	ctx := context.Background()
	store, _ := storage.NewLocalStore(t.TempDir())
	vae, err := model.NewOneHotCVAE(model.DefaultCVAEConfig(), 1)
	if err != nil {
		t.Fatalf("NewOneHotCVAE: %v", err)
	}
	cfg := testConfig(1)
	mcfg := model.DefaultCVAEConfig()
	if err := checkpoint.Save(ctx, store, cfg.CheckpointKey(), checkpoint.New(checkpoint.KindCVAE, &mcfg, vae)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cfg.ResumeTraining = true
	_, err = NewSession(ctx, Options{
		Config: cfg,
		Store:  store,
		Train:  twoClassSplit(2),
		Test:   twoClassSplit(2),
	})
	if !errors.Is(err, checkpoint.ErrIncompatible) {
		t.Fatalf("expected ErrIncompatible, got %v", err)
	}
}

func TestTrainEpochHonoursCancellation(t *testing.T) {
	store, _ := storage.NewLocalStore(t.TempDir())
	s := newTestSession(t, testConfig(1), store, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.TrainEpoch(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ok, _ := store.Exists(context.Background(), "model_mnist.pt"); ok {
		t.Fatalf("cancelled epoch must not write a checkpoint")
	}
}
