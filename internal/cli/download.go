package cli

import (
	"github.com/spf13/cobra"

	"digitforge/internal/config"
	"digitforge/internal/dataset"
)

func newDownloadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch the IDX files of a dataset into data_path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDownload(a.v)
			if err != nil {
				return err
			}
			info, err := dataset.Lookup(cfg.Dataset)
			if err != nil {
				return err
			}
			d := &dataset.Downloader{Logger: a.logger, Progress: cmd.ErrOrStderr()}
			return d.Ensure(cmd.Context(), cfg.DataPath, info)
		},
	}
	flags := cmd.Flags()
	flags.String("data_path", "./dataset", "Path of dataset")
	flags.String("dataset", dataset.MNIST, "Dataset to fetch (mnist or fashion)")
	return cmd
}
