package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"digitforge/internal/checkpoint"
	"digitforge/internal/config"
	"digitforge/internal/device"
	"digitforge/internal/sampler"
	"digitforge/internal/storage"
)

func newGenerateSamplesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-samples",
		Short: "Decode images of one class from a trained CVAE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadSampler(a.v)
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
			rec, err := checkpoint.Load(ctx, store, checkpoint.CVAEKey)
			if err != nil {
				return err
			}
			vae, err := rec.CVAE()
			if err != nil {
				return err
			}
			a.logger.Info("model loaded",
				zap.String("checkpoint", store.Location(checkpoint.CVAEKey)),
				zap.Int("z_dim", vae.LatentDim()),
				zap.String("device", dev.String()),
			)

			gen, err := sampler.New(vae, sampler.Options{
				Dir:              sampler.SampleDir(cfg.CkptFolder, cfg.LabelToGenerate),
				NSamples:         cfg.NSamples,
				BatchSize:        cfg.BatchSize,
				Label:            cfg.LabelToGenerate,
				StartFromScratch: cfg.StartFromScratch,
				ResumePartial:    cfg.ResumePartial,
				Seed:             cfg.RandSeed(),
				Scale:            cfg.Scale,
				Format:           cfg.Format,
				Logger:           a.logger,
				Progress:         cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			_, err = gen.Run(ctx)
			return err
		},
	}
	flags := cmd.Flags()
	flags.String("ckpt_folder", "", "Path to folder of VAE")
	flags.Int("n_samples", 1000, "Number of samples to generate")
	flags.Int("batch_size", 1000, "Batch size. Keep it so that n_samples is divisible by batch_size.")
	flags.Int("label_to_generate", 0, "Which class to generate")
	flags.Bool("start_from_scratch", false, "Start generating images from scratch even if some images already exist")
	flags.Bool("resume_partial", false, "Keep a partial sample set and continue its numbering")
	flags.Int64("seed", 0, "Random seed (0 selects 42)")
	flags.Int("scale", 1, "Integer upscaling factor for written images")
	flags.String("format", "png", "Image format: png or bmp")
	flags.String("device", device.Auto, "Compute device: auto or cpu")
	return cmd
}
