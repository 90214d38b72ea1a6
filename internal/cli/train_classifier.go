package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"digitforge/internal/config"
	"digitforge/internal/dataset"
	"digitforge/internal/device"
	"digitforge/internal/storage"
	"digitforge/internal/trainer"
)

func addDataFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("data_path", "./dataset", "Path of dataset")
	flags.String("dataset", dataset.MNIST, "Dataset to use (mnist or fashion)")
	flags.String("data_format", dataset.FormatIDX, "On-disk layout: idx or shards")
	flags.Bool("resume_training", false, "Resume training from an existing model")
	flags.Int("log_interval", 100, "Log every N batches")
	flags.Int64("seed", 0, "Random seed (0 selects 42)")
	flags.String("device", device.Auto, "Compute device: auto or cpu")
}

func newTrainClassifierCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train-classifier",
		Short: "Train the digit classifier and checkpoint it after every epoch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadClassifier(a.v)
			if err != nil {
				return err
			}
			dev, err := device.Select(cfg.Device, a.logger)
			if err != nil {
				return err
			}
			store, err := storage.New(ctx, cfg.Storage, cfg.CkptDir)
			if err != nil {
				return err
			}
			train, test, err := trainer.LoadData(ctx, trainer.DataSource{
				Path:    cfg.DataPath,
				Dataset: cfg.Dataset,
				Format:  cfg.DataFormat,
			}, dev, a.logger, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			session, err := trainer.NewSession(ctx, trainer.Options{
				Config: cfg,
				Device: dev,
				Store:  store,
				Train:  train,
				Test:   test,
				Logger: a.logger,
			})
			if err != nil {
				return err
			}
			defer session.Close()

			reports, err := session.Run(ctx)
			if err != nil {
				return err
			}
			if n := len(reports); n > 0 {
				last := reports[n-1]
				a.logger.Info("training finished",
					zap.Int("epochs", n),
					zap.Float64("accuracy", 100*last.Accuracy),
					zap.String("checkpoint", store.Location(cfg.CheckpointKey())),
				)
			}
			return nil
		},
	}
	addDataFlags(cmd)
	flags := cmd.Flags()
	flags.Int("batch_size", 64, "Train batch size")
	flags.Int("test_batch_size", 1000, "Test batch size")
	flags.Float64("lr", 1e-4, "Learning rate")
	flags.Int("n_epochs", 20, "Number of epochs")
	flags.Int("lr_step_size", 5, "Epochs between learning rate decays")
	flags.Float64("lr_gamma", 0.1, "Learning rate decay factor")
	flags.String("ckpt_dir", "./classifier_ckpts", "Directory for model_<dataset>.pt")
	return cmd
}
