// Package sampler fills a directory with images decoded from a trained
// conditional VAE, picking up where an earlier run left off.
//
// The directory is inspected before any decoding. Two counts matter: the
// number of directory entries of any kind, which decides whether to start
// over, and the number of regular files, which is where numbering resumes.
// Starting over happens when asked to, or when there are fewer entries
// than requested samples. In the second case the partial set is wiped
// unless ResumePartial is set.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"digitforge/internal/imageutil"
	"digitforge/internal/nn"
)

// ErrInvalidOptions is returned by New for options that cannot be run.
var ErrInvalidOptions = errors.New("invalid sampler options")

// Decoder maps latent vectors plus one-hot conditions to flattened images
// in [0,1].
type Decoder interface {
	LatentDim() int
	NumClasses() int
	ImageSide() int
	Decode(z, cond *mat.Dense) *mat.Dense
}

// Options controls a generation run.
type Options struct {
	Dir              string
	NSamples         int
	BatchSize        int
	Label            int
	StartFromScratch bool
	ResumePartial    bool
	Seed             int64
	Scale            int
	Format           string
	Logger           *zap.Logger
	// Progress receives the batch progress bar. Nil hides it.
	Progress io.Writer
}

// SampleDir is where images for label are kept under ckptFolder.
func SampleDir(ckptFolder string, label int) string {
	return filepath.Join(ckptFolder, fmt.Sprintf("%d_samples", label))
}

// Plan is the outcome of inspecting the output directory.
type Plan struct {
	Entries int
	Files   int
	Restart bool
	// Count is the index of the last image considered present.
	Count   int
	Batches int
}

// Decide applies the restart rule to the observed directory counts.
func Decide(opts Options, entries, files int) Plan {
	p := Plan{Entries: entries, Files: files}
	p.Restart = opts.StartFromScratch || entries < opts.NSamples
	if p.Restart && !opts.StartFromScratch && opts.ResumePartial {
		p.Restart = false
		p.Count = files
		remaining := opts.NSamples - files
		if remaining > 0 {
			p.Batches = (remaining + opts.BatchSize - 1) / opts.BatchSize
		}
		return p
	}
	if !p.Restart {
		p.Count = files
	}
	if remaining := opts.NSamples - p.Count; remaining > 0 {
		p.Batches = remaining / opts.BatchSize
	}
	return p
}

// Result summarises a finished run.
type Result struct {
	Restarted bool
	Kept      int
	Written   int
	Batches   int
}

type Generator struct {
	dec    Decoder
	opts   Options
	ext    string
	logger *zap.Logger
}

// New checks opts against dec before any filesystem work happens.
func New(dec Decoder, opts Options) (*Generator, error) {
	if dec == nil {
		return nil, fmt.Errorf("%w: decoder is nil", ErrInvalidOptions)
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: output directory is empty", ErrInvalidOptions)
	}
	if opts.NSamples <= 0 || opts.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: n_samples and batch_size must be > 0", ErrInvalidOptions)
	}
	if opts.NSamples%opts.BatchSize != 0 {
		return nil, fmt.Errorf("%w: Ensure n_samples is a multiple of batch_size!", ErrInvalidOptions)
	}
	if opts.Label < 0 || opts.Label >= dec.NumClasses() {
		return nil, fmt.Errorf("%w: label %d outside [0,%d)", ErrInvalidOptions, opts.Label, dec.NumClasses())
	}
	ext, err := imageutil.Ext(opts.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{dec: dec, opts: opts, ext: ext, logger: logger}, nil
}

// Inspect counts the entries and the regular files directly inside dir.
func Inspect(dir string) (entries, files int, err error) {
	list, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range list {
		if e.Type().IsRegular() {
			files++
		}
	}
	return len(list), files, nil
}

func wipe(dir string) error {
	list, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range list {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Run brings the directory to NSamples images.
func (g *Generator) Run(ctx context.Context) (Result, error) {
	dir := g.opts.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", dir, err)
	}
	entries, files, err := Inspect(dir)
	if err != nil {
		return Result{}, fmt.Errorf("inspect %s: %w", dir, err)
	}
	plan := Decide(g.opts, entries, files)
	if plan.Restart {
		if err := wipe(dir); err != nil {
			return Result{}, fmt.Errorf("clear %s: %w", dir, err)
		}
	}
	res := Result{Restarted: plan.Restart, Kept: plan.Count, Batches: plan.Batches}
	g.logger.Info("sampling",
		zap.String("dir", dir),
		zap.Int("label", g.opts.Label),
		zap.Int("entries", plan.Entries),
		zap.Int("files", plan.Files),
		zap.Bool("restart", plan.Restart),
		zap.Int("batches", plan.Batches),
	)
	if plan.Batches == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	out := g.opts.Progress
	if out == nil {
		out = io.Discard
	}
	progress := mpb.New(mpb.WithOutput(out), mpb.WithWidth(60))
	bar := progress.AddBar(int64(plan.Batches),
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("label %d", g.opts.Label), decor.WC{W: 10, C: decor.DidentRight}),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Name(" "),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)

	written, err := g.generate(ctx, plan, bar)
	res.Written = written
	if err != nil {
		bar.Abort(false)
		progress.Wait()
		return res, err
	}
	progress.Wait()
	g.logger.Info("sampling done", zap.Int("written", written), zap.Int("total", plan.Count+written))
	return res, nil
}

// latentSource returns the latent stream positioned after the draws that
// produced images 1..count, so a resumed run continues the sequence an
// uninterrupted run would have drawn instead of repeating it.
func latentSource(seed int64, count, latentDim int) *rand.Rand {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < count*latentDim; i++ {
		rng.NormFloat64()
	}
	return rng
}

func (g *Generator) generate(ctx context.Context, plan Plan, bar *mpb.Bar) (int, error) {
	rng := latentSource(g.opts.Seed, plan.Count, g.dec.LatentDim())
	labels := make([]int, g.opts.BatchSize)
	for i := range labels {
		labels[i] = g.opts.Label
	}
	cond := nn.OneHot(labels, g.dec.NumClasses())
	side := g.dec.ImageSide()

	count, written := plan.Count, 0
	for b := 0; b < plan.Batches; b++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		z := nn.RandN(rng, g.opts.BatchSize, g.dec.LatentDim())
		samples := g.dec.Decode(z, cond)
		rows, _ := samples.Dims()
		for i := 0; i < rows; i++ {
			count++
			img, err := imageutil.GrayFromRow(samples.RawRowView(i), side)
			if err != nil {
				return written, err
			}
			path := filepath.Join(g.opts.Dir, fmt.Sprintf("%d.%s", count, g.ext))
			if err := imageutil.WriteFile(path, imageutil.Scale(img, g.opts.Scale), g.opts.Format); err != nil {
				return written, err
			}
			written++
			if count >= g.opts.NSamples {
				break
			}
		}
		bar.Increment()
	}
	return written, nil
}
