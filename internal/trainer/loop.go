// Package trainer runs the training sessions for the classifier and the
// conditional VAE.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"digitforge/internal/checkpoint"
	"digitforge/internal/config"
	"digitforge/internal/dataset"
	"digitforge/internal/device"
	"digitforge/internal/metrics"
	"digitforge/internal/model"
	"digitforge/internal/nn"
	"digitforge/internal/storage"
)

// Options wires a classifier session to its collaborators.
type Options struct {
	Config *config.Classifier
	Device device.Device
	Store  storage.Store
	Train  *dataset.Split
	Test   *dataset.Split
	Logger *zap.Logger
}

// Session owns everything a classifier run mutates: model, optimizer,
// schedule and loss history. It moves through INIT (NewSession), then
// TrainEpoch and Evaluate once per epoch.
type Session struct {
	cfg    *config.Classifier
	runID  string
	dev    device.Device
	logger *zap.Logger
	store  storage.Store
	key    string

	train *dataset.Loader
	test  *dataset.Loader

	net     *model.Classifier
	opt     *nn.Adam
	sched   *nn.StepLR
	history metrics.History
	closed  bool
}

// NewSession builds the classifier and, when resume_training is set,
// restores the stored checkpoint. A missing checkpoint is not an error.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("trainer: config is nil")
	}
	if opts.Store == nil {
		return nil, errors.New("trainer: store is nil")
	}
	if opts.Train == nil || opts.Test == nil {
		return nil, errors.New("trainer: train and test splits are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.RandSeed()
	s := &Session{
		cfg:   cfg,
		runID: uuid.NewString(),
		dev:   opts.Device,
		store: opts.Store,
		key:   cfg.CheckpointKey(),
		train: dataset.NewLoader(opts.Train, cfg.BatchSize, true, seed),
		test:  dataset.NewLoader(opts.Test, cfg.TestBatchSize, false, seed),
		net:   model.NewClassifier(seed),
	}
	s.logger = logger.With(zap.String("run_id", s.runID))

	if cfg.ResumeTraining {
		if err := s.resume(ctx); err != nil {
			return nil, err
		}
	}
	s.opt = nn.NewAdam(s.net.Params(), cfg.LR)
	s.sched = nn.NewStepLR(s.opt, cfg.LRStepSize, cfg.LRGamma)
	s.logger.Info("session ready",
		zap.String("device", s.dev.String()),
		zap.String("checkpoint", s.store.Location(s.key)),
		zap.Int("train", s.train.Len()),
		zap.Int("test", s.test.Len()),
	)
	return s, nil
}

func (s *Session) resume(ctx context.Context) error {
	ok, err := s.store.Exists(ctx, s.key)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Info("No existing model found. Starting training from scratch.")
		return nil
	}
	loc := s.store.Location(s.key)
	s.logger.Info("Loading existing model", zap.String("path", loc))
	rec, err := checkpoint.Load(ctx, s.store, s.key)
	if err != nil {
		return err
	}
	if err := rec.Restore(checkpoint.KindClassifier, s.net); err != nil {
		return fmt.Errorf("%s: %w", loc, err)
	}
	return nil
}

// Run trains for n_epochs, stepping the schedule after each training pass
// and evaluating after that. It returns one report per completed epoch.
func (s *Session) Run(ctx context.Context) ([]metrics.EvalReport, error) {
	s.logger.Info("Starting training...", zap.Int("epochs", s.cfg.NEpochs), zap.Float64("lr", s.opt.LR))
	reports := make([]metrics.EvalReport, 0, s.cfg.NEpochs)
	for epoch := 1; epoch <= s.cfg.NEpochs; epoch++ {
		if err := s.TrainEpoch(ctx, epoch); err != nil {
			return reports, err
		}
		s.sched.Step()
		report, err := s.Evaluate(ctx, epoch)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// TrainEpoch makes one shuffled pass over the train split and then
// overwrites the checkpoint with the resulting parameters.
func (s *Session) TrainEpoch(ctx context.Context, epoch int) error {
	total := s.train.Len()
	batches := s.train.NumBatches()
	var window metrics.Window

	s.train.Reset()
	for batchIdx := 0; ; batchIdx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		startData := time.Now()
		if !s.train.Scan() {
			break
		}
		batch := s.train.Batch()
		dataTime := time.Since(startData)

		startCompute := time.Now()
		s.opt.ZeroGrad()
		loss := s.net.TrainStep(batch)
		s.opt.Step()
		window.Record(batch.Size(), dataTime, time.Since(startCompute), loss)

		seen := batchIdx * s.cfg.BatchSize
		if batchIdx%s.cfg.LogInterval == 0 {
			snap := window.Snapshot()
			s.logger.Info("Train Epoch",
				zap.Int("epoch", epoch),
				zap.Int("seen", seen),
				zap.Int("total", total),
				zap.Float64("percent", 100*float64(batchIdx)/float64(batches)),
				zap.Float64("loss", loss),
				zap.Float64("images_per_sec", snap.ImagesPerSec),
				zap.Float64("data_ms", snap.AvgDataMS),
				zap.Float64("compute_ms", snap.AvgComputeMS),
			)
		}
		s.history.AddTrain(seen+(epoch-1)*total, loss)
	}

	rec := checkpoint.New(checkpoint.KindClassifier, nil, s.net)
	if err := checkpoint.Save(ctx, s.store, s.key, rec); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Evaluate scores the model on the test split without updating it.
func (s *Session) Evaluate(ctx context.Context, epoch int) (metrics.EvalReport, error) {
	var acc metrics.Eval
	s.test.Reset()
	for s.test.Scan() {
		if err := ctx.Err(); err != nil {
			return metrics.EvalReport{}, err
		}
		batch := s.test.Batch()
		loss, correct := s.net.Evaluate(batch)
		acc.Add(loss, correct, batch.Size())
	}
	report := acc.Report(epoch)
	s.history.AddTest(epoch*s.train.Len(), report)
	s.logger.Info("Test set",
		zap.Int("epoch", epoch),
		zap.Float64("avg_loss", report.AvgLoss),
		zap.Int("correct", report.Correct),
		zap.Int("total", report.Total),
		zap.Float64("accuracy", 100*report.Accuracy),
		zap.Float64("lr", s.sched.LR()),
	)
	return report, nil
}

// History returns the loss curves recorded so far.
func (s *Session) History() metrics.History {
	return s.history
}

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("session closed", zap.String("device", s.dev.Kind))
	s.train, s.test, s.net = nil, nil, nil
	return nil
}
