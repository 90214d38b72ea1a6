package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"digitforge/internal/checkpoint"
	"digitforge/internal/config"
	"digitforge/internal/device"
	"digitforge/internal/model"
	"digitforge/internal/storage"
	"digitforge/internal/trainer"
)

func newTrainCVAECmd(a *app) *cobra.Command {
	def := model.DefaultCVAEConfig()
	cmd := &cobra.Command{
		Use:   "train-cvae",
		Short: "Train the one-hot conditional VAE used by generate-samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadCVAE(a.v)
			if err != nil {
				return err
			}
			dev, err := device.Select(cfg.Device, a.logger)
			if err != nil {
				return err
			}
			store, err := storage.NewLocalStore(filepath.Join(cfg.CkptFolder, checkpoint.CVAEDir))
			if err != nil {
				return err
			}
			train, _, err := trainer.LoadData(ctx, trainer.DataSource{
				Path:    cfg.DataPath,
				Dataset: cfg.Dataset,
				Format:  cfg.DataFormat,
			}, dev, a.logger, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			session, err := trainer.NewCVAESession(ctx, trainer.CVAEOptions{
				Config: cfg,
				Device: dev,
				Store:  store,
				Train:  train,
				Logger: a.logger,
			})
			if err != nil {
				return err
			}
			defer session.Close()

			losses, err := session.Run(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("training finished",
				zap.Int("epochs", len(losses)),
				zap.String("checkpoint", store.Location(checkpoint.CVAEKey)),
			)
			return nil
		},
	}
	addDataFlags(cmd)
	flags := cmd.Flags()
	flags.String("ckpt_folder", "", "Folder receiving ckpts/ckpt.pt")
	flags.Int("batch_size", 128, "Train batch size")
	flags.Float64("lr", 1e-3, "Learning rate")
	flags.Int("n_epochs", 100, "Number of epochs")
	flags.Int("x_dim", def.XDim, "Flattened image size")
	flags.Int("h_dim1", def.HDim1, "Width of the first hidden layer")
	flags.Int("h_dim2", def.HDim2, "Width of the second hidden layer")
	flags.Int("z_dim", def.ZDim, "Latent size")
	return cmd
}
