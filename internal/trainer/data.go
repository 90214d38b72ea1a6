package trainer

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"digitforge/internal/dataset"
	"digitforge/internal/device"
)

// DataSource names the dataset a session trains on.
type DataSource struct {
	Path    string
	Dataset string
	Format  string
}

// LoadData reads the train and test splits of src. Missing IDX files are
// downloaded first; progress bars go to progress when it is non-nil.
func LoadData(ctx context.Context, src DataSource, dev device.Device, logger *zap.Logger, progress io.Writer) (*dataset.Split, *dataset.Split, error) {
	info, err := dataset.Lookup(src.Dataset)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	train, test, err := dataset.Load(ctx, dataset.LoadOptions{
		DataPath: src.Path,
		Info:     info,
		Format:   src.Format,
		Workers:  dev.Threads,
		Downloader: &dataset.Downloader{
			Logger:   logger,
			Progress: progress,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("dataset ready",
		zap.String("dataset", info.ID),
		zap.String("format", src.Format),
		zap.Int("train", train.Len()),
		zap.Int("test", test.Len()),
		zap.Duration("took", time.Since(start)),
	)
	return train, test, nil
}
