package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"digitforge/internal/dataset"
	"digitforge/internal/model"
	"digitforge/internal/storage"
)

// EnvPrefix namespaces environment overrides, e.g. DIGITFORGE_BATCH_SIZE.
const EnvPrefix = "DIGITFORGE"

// ErrInvalid marks a configuration that must be fixed before any work runs.
var ErrInvalid = errors.New("invalid config")

// Common captures knobs shared by every command.
type Common struct {
	Environment string `mapstructure:"environment"`
	Device      string `mapstructure:"device"`
	Seed        int64  `mapstructure:"seed"`
}

// RandSeed is the seed for every random generator of a run. Zero selects 42.
func (c Common) RandSeed() int64 {
	if c.Seed == 0 {
		return 42
	}
	return c.Seed
}

// Classifier captures the runtime knobs for a classifier training run.
type Classifier struct {
	Common         `mapstructure:",squash"`
	DataPath       string         `mapstructure:"data_path"`
	Dataset        string         `mapstructure:"dataset"`
	DataFormat     string         `mapstructure:"data_format"`
	ResumeTraining bool           `mapstructure:"resume_training"`
	BatchSize      int            `mapstructure:"batch_size"`
	TestBatchSize  int            `mapstructure:"test_batch_size"`
	LR             float64        `mapstructure:"lr"`
	NEpochs        int            `mapstructure:"n_epochs"`
	LogInterval    int            `mapstructure:"log_interval"`
	LRStepSize     int            `mapstructure:"lr_step_size"`
	LRGamma        float64        `mapstructure:"lr_gamma"`
	CkptDir        string         `mapstructure:"ckpt_dir"`
	Storage        storage.Config `mapstructure:"storage"`
}

// CVAE captures the runtime knobs for training the generative model.
type CVAE struct {
	Common         `mapstructure:",squash"`
	CkptFolder     string  `mapstructure:"ckpt_folder"`
	DataPath       string  `mapstructure:"data_path"`
	Dataset        string  `mapstructure:"dataset"`
	DataFormat     string  `mapstructure:"data_format"`
	ResumeTraining bool    `mapstructure:"resume_training"`
	BatchSize      int     `mapstructure:"batch_size"`
	LR             float64 `mapstructure:"lr"`
	NEpochs        int     `mapstructure:"n_epochs"`
	LogInterval    int     `mapstructure:"log_interval"`
	XDim           int     `mapstructure:"x_dim"`
	HDim1          int     `mapstructure:"h_dim1"`
	HDim2          int     `mapstructure:"h_dim2"`
	ZDim           int     `mapstructure:"z_dim"`
}

// Sampler captures the knobs for generating images from a trained CVAE.
type Sampler struct {
	Common           `mapstructure:",squash"`
	CkptFolder       string `mapstructure:"ckpt_folder"`
	NSamples         int    `mapstructure:"n_samples"`
	BatchSize        int    `mapstructure:"batch_size"`
	LabelToGenerate  int    `mapstructure:"label_to_generate"`
	StartFromScratch bool   `mapstructure:"start_from_scratch"`
	ResumePartial    bool   `mapstructure:"resume_partial"`
	Scale            int    `mapstructure:"scale"`
	Format           string `mapstructure:"format"`
}

// Download captures the knobs for fetching a dataset.
type Download struct {
	Common   `mapstructure:",squash"`
	DataPath string `mapstructure:"data_path"`
	Dataset  string `mapstructure:"dataset"`
}

// NewViper returns an instance that reads DIGITFORGE_* environment
// variables, with dashes and dots mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(
		`-`, `_`,
		`.`, `_`,
	))
	v.AutomaticEnv()
	return v
}

// ReadFile merges the YAML file at path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// LoadEnvFile loads path into the process environment. With an empty path a
// .env file in the working directory is loaded when present.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("device", "auto")
	v.SetDefault("seed", 0)
}

func setDataDefaults(v *viper.Viper) {
	v.SetDefault("data_path", "./dataset")
	v.SetDefault("dataset", dataset.MNIST)
	v.SetDefault("data_format", dataset.FormatIDX)
}

// LoadClassifier resolves and validates the classifier configuration.
func LoadClassifier(v *viper.Viper) (*Classifier, error) {
	setCommonDefaults(v)
	setDataDefaults(v)
	v.SetDefault("resume_training", false)
	v.SetDefault("batch_size", 64)
	v.SetDefault("test_batch_size", 1000)
	v.SetDefault("lr", 1e-4)
	v.SetDefault("n_epochs", 20)
	v.SetDefault("log_interval", 100)
	v.SetDefault("lr_step_size", 5)
	v.SetDefault("lr_gamma", 0.1)
	v.SetDefault("ckpt_dir", "./classifier_ckpts")
	v.SetDefault("storage.backend", storage.BackendLocal)
	for _, key := range []string{"bucket", "prefix", "region", "endpoint", "access_key", "secret_key"} {
		v.SetDefault("storage.s3."+key, "")
	}
	v.SetDefault("storage.s3.use_path_style", false)

	cfg := &Classifier{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCVAE resolves and validates the CVAE training configuration.
func LoadCVAE(v *viper.Viper) (*CVAE, error) {
	def := model.DefaultCVAEConfig()
	setCommonDefaults(v)
	setDataDefaults(v)
	v.SetDefault("ckpt_folder", "")
	v.SetDefault("resume_training", false)
	v.SetDefault("batch_size", 128)
	v.SetDefault("lr", 1e-3)
	v.SetDefault("n_epochs", 100)
	v.SetDefault("log_interval", 100)
	v.SetDefault("x_dim", def.XDim)
	v.SetDefault("h_dim1", def.HDim1)
	v.SetDefault("h_dim2", def.HDim2)
	v.SetDefault("z_dim", def.ZDim)

	cfg := &CVAE{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSampler resolves and validates the sample generation configuration.
func LoadSampler(v *viper.Viper) (*Sampler, error) {
	setCommonDefaults(v)
	v.SetDefault("ckpt_folder", "")
	v.SetDefault("n_samples", 1000)
	v.SetDefault("batch_size", 1000)
	v.SetDefault("label_to_generate", 0)
	v.SetDefault("start_from_scratch", false)
	v.SetDefault("resume_partial", false)
	v.SetDefault("scale", 1)
	v.SetDefault("format", "png")

	cfg := &Sampler{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDownload resolves and validates the download configuration.
func LoadDownload(v *viper.Viper) (*Download, error) {
	setCommonDefaults(v)
	setDataDefaults(v)

	cfg := &Download{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if _, err := dataset.Lookup(cfg.Dataset); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cfg.DataPath == "" {
		return nil, fmt.Errorf("%w: data_path must be set", ErrInvalid)
	}
	return cfg, nil
}
