package trainer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"digitforge/internal/checkpoint"
	"digitforge/internal/config"
	"digitforge/internal/dataset"
	"digitforge/internal/device"
	"digitforge/internal/model"
	"digitforge/internal/nn"
	"digitforge/internal/storage"
)

// CVAEOptions wires a CVAE session to its collaborators. Store is rooted
// at <ckpt_folder>/ckpts.
type CVAEOptions struct {
	Config *config.CVAE
	Device device.Device
	Store  storage.Store
	Train  *dataset.Split
	Logger *zap.Logger
}

// CVAESession trains the one-hot conditional VAE consumed by the sampler.
type CVAESession struct {
	cfg    *config.CVAE
	mcfg   model.CVAEConfig
	runID  string
	dev    device.Device
	logger *zap.Logger
	store  storage.Store

	train  *dataset.Loader
	vae    *model.OneHotCVAE
	opt    *nn.Adam
	rng    *rand.Rand
	losses []float64
}

func NewCVAESession(ctx context.Context, opts CVAEOptions) (*CVAESession, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("trainer: config is nil")
	}
	if opts.Store == nil || opts.Train == nil {
		return nil, errors.New("trainer: store and train split are required")
	}
	mcfg := cfg.ModelConfig()
	if opts.Train.Width != mcfg.XDim {
		return nil, fmt.Errorf("trainer: dataset images have %d pixels but x_dim is %d", opts.Train.Width, mcfg.XDim)
	}
	seed := cfg.RandSeed()
	vae, err := model.NewOneHotCVAE(mcfg, seed)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CVAESession{
		cfg:   cfg,
		mcfg:  mcfg,
		runID: uuid.NewString(),
		dev:   opts.Device,
		store: opts.Store,
		train: dataset.NewLoader(opts.Train, cfg.BatchSize, true, seed),
		vae:   vae,
		rng:   rand.New(rand.NewSource(seed)),
	}
	s.logger = logger.With(zap.String("run_id", s.runID))
	if cfg.ResumeTraining {
		if err := s.resume(ctx); err != nil {
			return nil, err
		}
	}
	s.opt = nn.NewAdam(vae.Params(), cfg.LR)
	s.logger.Info("cvae session ready",
		zap.String("device", s.dev.String()),
		zap.String("checkpoint", s.store.Location(checkpoint.CVAEKey)),
		zap.Int("z_dim", mcfg.ZDim),
	)
	return s, nil
}

func (s *CVAESession) resume(ctx context.Context) error {
	ok, err := s.store.Exists(ctx, checkpoint.CVAEKey)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Info("No existing model found. Starting training from scratch.")
		return nil
	}
	loc := s.store.Location(checkpoint.CVAEKey)
	s.logger.Info("Loading existing model", zap.String("path", loc))
	rec, err := checkpoint.Load(ctx, s.store, checkpoint.CVAEKey)
	if err != nil {
		return err
	}
	if rec.Config == nil || *rec.Config != s.mcfg {
		return fmt.Errorf("%s: %w: stored config %+v, requested %+v", loc, checkpoint.ErrIncompatible, rec.Config, s.mcfg)
	}
	return rec.Restore(checkpoint.KindCVAE, s.vae)
}

// Run trains for n_epochs and returns the mean per-example loss of each.
func (s *CVAESession) Run(ctx context.Context) ([]float64, error) {
	for epoch := 1; epoch <= s.cfg.NEpochs; epoch++ {
		loss, err := s.TrainEpoch(ctx, epoch)
		if err != nil {
			return s.losses, err
		}
		s.logger.Info("Epoch done", zap.Int("epoch", epoch), zap.Float64("avg_loss", loss))
	}
	return s.losses, nil
}

// TrainEpoch makes one pass over the data and overwrites the checkpoint.
func (s *CVAESession) TrainEpoch(ctx context.Context, epoch int) (float64, error) {
	total := s.train.Len()
	batches := s.train.NumBatches()
	var sum float64
	s.train.Reset()
	for batchIdx := 0; s.train.Scan(); batchIdx++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		batch := s.train.Batch()
		s.opt.ZeroGrad()
		loss := s.vae.Backprop(batch, s.rng)
		s.opt.Step()
		sum += loss * float64(batch.Size())
		if batchIdx%s.cfg.LogInterval == 0 {
			s.logger.Info("Train Epoch",
				zap.Int("epoch", epoch),
				zap.Int("seen", batchIdx*s.cfg.BatchSize),
				zap.Int("total", total),
				zap.Float64("percent", 100*float64(batchIdx)/float64(batches)),
				zap.Float64("loss", loss),
			)
		}
	}
	mean := 0.0
	if total > 0 {
		mean = sum / float64(total)
	}
	s.losses = append(s.losses, mean)

	cfg := s.mcfg
	rec := checkpoint.New(checkpoint.KindCVAE, &cfg, s.vae)
	if err := checkpoint.Save(ctx, s.store, checkpoint.CVAEKey, rec); err != nil {
		return mean, fmt.Errorf("save checkpoint: %w", err)
	}
	return mean, nil
}

func (s *CVAESession) Close() error {
	s.logger.Debug("cvae session closed", zap.String("device", s.dev.Kind))
	return nil
}
