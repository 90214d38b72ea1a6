package config

import (
	"fmt"
	"strings"

	"digitforge/internal/dataset"
	"digitforge/internal/storage"
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...)
}

func validateData(name, format, path string) error {
	if _, err := dataset.Lookup(name); err != nil {
		return invalid("%v", err)
	}
	if format != dataset.FormatIDX && format != dataset.FormatShards {
		return invalid("data_format must be %s or %s (got %q)", dataset.FormatIDX, dataset.FormatShards, format)
	}
	if path == "" {
		return invalid("data_path must be set")
	}
	return nil
}

// Validate verifies the config is runnable.
func (c *Classifier) Validate() error {
	if c == nil {
		return invalid("config is nil")
	}
	if err := validateData(c.Dataset, c.DataFormat, c.DataPath); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return invalid("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.TestBatchSize <= 0 {
		return invalid("test_batch_size must be > 0 (got %d)", c.TestBatchSize)
	}
	if c.LR <= 0 {
		return invalid("lr must be > 0 (got %g)", c.LR)
	}
	if c.NEpochs <= 0 {
		return invalid("n_epochs must be > 0 (got %d)", c.NEpochs)
	}
	if c.LRStepSize <= 0 {
		return invalid("lr_step_size must be > 0 (got %d)", c.LRStepSize)
	}
	if c.LRGamma <= 0 {
		return invalid("lr_gamma must be > 0 (got %g)", c.LRGamma)
	}
	if c.LogInterval <= 0 {
		c.LogInterval = 100
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "", storage.BackendLocal:
		if c.CkptDir == "" {
			return invalid("ckpt_dir must be set for local storage")
		}
	case storage.BackendS3:
		if c.Storage.S3.Bucket == "" {
			return invalid("storage.s3.bucket must be set for s3 storage")
		}
	default:
		return invalid("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// CheckpointKey names the classifier checkpoint after the canonical ID of
// the configured dataset, so spellings Lookup accepts share one file.
func (c *Classifier) CheckpointKey() string {
	id := c.Dataset
	if info, err := dataset.Lookup(c.Dataset); err == nil {
		id = info.ID
	}
	return fmt.Sprintf("model_%s.pt", id)
}

// Validate verifies the config is runnable.
func (c *CVAE) Validate() error {
	if c == nil {
		return invalid("config is nil")
	}
	if c.CkptFolder == "" {
		return invalid("ckpt_folder must be set")
	}
	if err := validateData(c.Dataset, c.DataFormat, c.DataPath); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return invalid("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.LR <= 0 {
		return invalid("lr must be > 0 (got %g)", c.LR)
	}
	if c.NEpochs <= 0 {
		return invalid("n_epochs must be > 0 (got %d)", c.NEpochs)
	}
	if c.LogInterval <= 0 {
		c.LogInterval = 100
	}
	if err := c.ModelConfig().Validate(); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// Validate verifies the config is runnable. n_samples must be a multiple of
// batch_size so that generation proceeds in whole batches.
func (c *Sampler) Validate() error {
	if c == nil {
		return invalid("config is nil")
	}
	if c.CkptFolder == "" {
		return invalid("ckpt_folder must be set")
	}
	if c.NSamples <= 0 {
		return invalid("n_samples must be > 0 (got %d)", c.NSamples)
	}
	if c.BatchSize <= 0 {
		return invalid("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.NSamples%c.BatchSize != 0 {
		return invalid("Ensure n_samples is a multiple of batch_size! (n_samples=%d batch_size=%d)", c.NSamples, c.BatchSize)
	}
	if c.LabelToGenerate < 0 {
		return invalid("label_to_generate must be >= 0 (got %d)", c.LabelToGenerate)
	}
	if c.Scale <= 0 {
		c.Scale = 1
	}
	switch c.Format {
	case "png", "bmp":
	default:
		return invalid("format must be png or bmp (got %q)", c.Format)
	}
	return nil
}
