package trainer

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"digitforge/internal/checkpoint"
	"digitforge/internal/config"
	"digitforge/internal/dataset"
	"digitforge/internal/device"
	"digitforge/internal/model"
	"digitforge/internal/storage"
)

func cvaeConfig(zDim int) *config.CVAE {
	return &config.CVAE{
		Common:      config.Common{Device: device.CPU, Seed: 3},
		CkptFolder:  "unused",
		DataPath:    "unused",
		Dataset:     dataset.MNIST,
		DataFormat:  dataset.FormatIDX,
		BatchSize:   2,
		LR:          1e-3,
		NEpochs:     2,
		LogInterval: 1,
		XDim:        model.InputSize,
		HDim1:       32,
		HDim2:       16,
		ZDim:        zDim,
	}
}

func TestCVAESessionWritesLoadableCheckpoint(t *testing.T) {
	ctx := context.Background()
	store, _ := storage.NewLocalStore(t.TempDir())
	s, err := NewCVAESession(ctx, CVAEOptions{Config: cvaeConfig(4), Store: store, Train: twoClassSplit(4), Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewCVAESession: %v", err)
	}
	defer s.Close()

	losses, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(losses) != 2 || losses[0] <= 0 {
		t.Fatalf("unexpected losses %v", losses)
	}

	rec, err := checkpoint.Load(ctx, store, checkpoint.CVAEKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	vae, err := rec.CVAE()
	if err != nil {
		t.Fatalf("CVAE: %v", err)
	}
	if vae.LatentDim() != 4 || vae.ImageSide() != model.ImageSide {
		t.Fatalf("unexpected model dims z=%d side=%d", vae.LatentDim(), vae.ImageSide())
	}
}

func TestCVAEResumeRejectsDifferentLatentDim(t *testing.T) {
	ctx := context.Background()
	store, _ := storage.NewLocalStore(t.TempDir())
	first, err := NewCVAESession(ctx, CVAEOptions{Config: cvaeConfig(4), Store: store, Train: twoClassSplit(2)})
	if err != nil {
		t.Fatalf("NewCVAESession: %v", err)
	}
	if _, err := first.TrainEpoch(ctx, 1); err != nil {
		t.Fatalf("TrainEpoch: %v", err)
	}

	cfg := cvaeConfig(6)
	cfg.ResumeTraining = true
	_, err = NewCVAESession(ctx, CVAEOptions{Config: cfg, Store: store, Train: twoClassSplit(2)})
	if !errors.Is(err, checkpoint.ErrIncompatible) {
		t.Fatalf("expected ErrIncompatible, got %v", err)
	}
}

func TestCVAERejectsMismatchedImages(t *testing.T) {
	store, _ := storage.NewLocalStore(t.TempDir())
	split := &dataset.Split{Width: 4, Pixels: make([]float64, 4), Labels: []int{0}}
	_, err := NewCVAESession(context.Background(), CVAEOptions{Config: cvaeConfig(4), Store: store, Train: split})
	if err == nil {
		t.Fatalf("expected width mismatch error")
	}
}
