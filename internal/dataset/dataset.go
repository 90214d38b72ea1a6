// Package dataset loads MNIST-style labeled image splits.
//
// Two on-disk layouts are understood. The default is the gzipped IDX files
// published for MNIST and Fashion-MNIST, kept under
// <data_path>/<Dir>/raw and downloaded on demand. The alternative is a
// WebDataset tree of shard-NNNNNN.tar files under <data_path>/train and
// <data_path>/test, each pairing an image with a .cls label.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"digitforge/internal/model"
)

const (
	MNIST   = "mnist"
	Fashion = "fashion"
)

const (
	FormatIDX    = "idx"
	FormatShards = "shards"
)

const (
	TrainImages = "train-images-idx3-ubyte.gz"
	TrainLabels = "train-labels-idx1-ubyte.gz"
	TestImages  = "t10k-images-idx3-ubyte.gz"
	TestLabels  = "t10k-labels-idx1-ubyte.gz"
)

// Files lists every IDX file a dataset consists of.
var Files = []string{TrainImages, TrainLabels, TestImages, TestLabels}

// ErrUnknownDataset is returned by Lookup for unrecognised identifiers.
var ErrUnknownDataset = errors.New("unknown dataset")

// Info describes where a dataset lives locally and remotely.
type Info struct {
	ID      string
	Dir     string
	Mirrors []string
}

var registry = map[string]Info{
	MNIST: {
		ID:  MNIST,
		Dir: "MNIST",
		Mirrors: []string{
			"https://ossci-datasets.s3.amazonaws.com/mnist/",
			"http://yann.lecun.com/exdb/mnist/",
		},
	},
	Fashion: {
		ID:  Fashion,
		Dir: "FashionMNIST",
		Mirrors: []string{
			"http://fashion-mnist.s3-website.eu-central-1.amazonaws.com/",
		},
	},
}

// Lookup resolves a dataset identifier.
func Lookup(id string) (Info, error) {
	info, ok := registry[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Info{}, fmt.Errorf("%w %q (expected %s or %s)", ErrUnknownDataset, id, MNIST, Fashion)
	}
	return info, nil
}

// RawDir is the directory holding the IDX files under dataPath.
func (i Info) RawDir(dataPath string) string {
	return filepath.Join(dataPath, i.Dir, "raw")
}

// Split is an in-memory set of flattened images in [0,1] with labels.
type Split struct {
	Pixels []float64
	Labels []int
	Width  int
}

// Len returns the number of examples.
func (s *Split) Len() int {
	return len(s.Labels)
}

// Row returns the pixels of example i without copying.
func (s *Split) Row(i int) []float64 {
	return s.Pixels[i*s.Width : (i+1)*s.Width]
}

func (s *Split) append(pixels []float64, label int) {
	s.Pixels = append(s.Pixels, pixels...)
	s.Labels = append(s.Labels, label)
}

// LoadOptions selects which layout to read and how.
type LoadOptions struct {
	DataPath string
	Info     Info
	Format   string
	// Workers bounds concurrent shard readers.
	Workers int
	// Downloader fetches missing IDX files. Nil disables downloading.
	Downloader *Downloader
}

// Load returns the train and test splits.
func Load(ctx context.Context, opts LoadOptions) (*Split, *Split, error) {
	switch opts.Format {
	case "", FormatIDX:
		if opts.Downloader != nil {
			if err := opts.Downloader.Ensure(ctx, opts.DataPath, opts.Info); err != nil {
				return nil, nil, err
			}
		}
		dir := opts.Info.RawDir(opts.DataPath)
		train, err := LoadIDX(filepath.Join(dir, TrainImages), filepath.Join(dir, TrainLabels))
		if err != nil {
			return nil, nil, err
		}
		test, err := LoadIDX(filepath.Join(dir, TestImages), filepath.Join(dir, TestLabels))
		if err != nil {
			return nil, nil, err
		}
		return train, test, nil
	case FormatShards:
		trainShards, testShards, err := DiscoverSplits(opts.DataPath)
		if err != nil {
			return nil, nil, err
		}
		train, err := LoadShards(ctx, trainShards, opts.Workers)
		if err != nil {
			return nil, nil, fmt.Errorf("train shards: %w", err)
		}
		test, err := LoadShards(ctx, testShards, opts.Workers)
		if err != nil {
			return nil, nil, fmt.Errorf("test shards: %w", err)
		}
		return train, test, nil
	}
	return nil, nil, fmt.Errorf("unknown data format %q", opts.Format)
}

func checkLabel(label int) error {
	if label < 0 || label >= model.NumClasses {
		return fmt.Errorf("label %d outside [0,%d)", label, model.NumClasses)
	}
	return nil
}
