package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"digitforge/internal/nn"
)

// CVAEConfigVersion is bumped whenever the layout of OneHotCVAE changes.
const CVAEConfigVersion = 1

// ErrInvalidConfig is returned for configurations no model can be built from.
var ErrInvalidConfig = errors.New("invalid model config")

// CVAEConfig holds the dimensions a OneHotCVAE is built from. It travels
// inside every cvae checkpoint.
type CVAEConfig struct {
	Version    int `msgpack:"version"`
	XDim       int `msgpack:"x_dim"`
	HDim1      int `msgpack:"h_dim1"`
	HDim2      int `msgpack:"h_dim2"`
	ZDim       int `msgpack:"z_dim"`
	NumClasses int `msgpack:"num_classes"`
}

func DefaultCVAEConfig() CVAEConfig {
	return CVAEConfig{
		Version:    CVAEConfigVersion,
		XDim:       InputSize,
		HDim1:      512,
		HDim2:      256,
		ZDim:       8,
		NumClasses: NumClasses,
	}
}

// Validate checks the version and that every dimension is usable. XDim must
// be a square image.
func (c CVAEConfig) Validate() error {
	if c.Version != CVAEConfigVersion {
		return fmt.Errorf("%w: config version %d, this build reads version %d", ErrInvalidConfig, c.Version, CVAEConfigVersion)
	}
	dims := []struct {
		name string
		v    int
	}{
		{"x_dim", c.XDim},
		{"h_dim1", c.HDim1},
		{"h_dim2", c.HDim2},
		{"z_dim", c.ZDim},
		{"num_classes", c.NumClasses},
	}
	for _, d := range dims {
		if d.v <= 0 {
			return fmt.Errorf("%w: %s must be > 0 (got %d)", ErrInvalidConfig, d.name, d.v)
		}
	}
	if side := c.ImageSide(); side*side != c.XDim {
		return fmt.Errorf("%w: x_dim %d is not a square image", ErrInvalidConfig, c.XDim)
	}
	return nil
}

// ImageSide is the edge length of the square images the decoder emits.
func (c CVAEConfig) ImageSide() int {
	return int(math.Round(math.Sqrt(float64(c.XDim))))
}

// OneHotCVAE is a variational autoencoder whose encoder and decoder are
// both conditioned on a one-hot class vector.
type OneHotCVAE struct {
	cfg CVAEConfig

	encoder    nn.Sequential
	fc31, fc32 *nn.Linear
	decoder    nn.Sequential
	sigmoid    nn.Sigmoid
}

// NewOneHotCVAE builds the network described by cfg.
func NewOneHotCVAE(cfg CVAEConfig, seed int64) (*OneHotCVAE, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	return &OneHotCVAE{
		cfg: cfg,
		encoder: nn.Sequential{
			nn.NewLinear("fc1", cfg.XDim+cfg.NumClasses, cfg.HDim1, rng),
			&nn.ReLU{},
			nn.NewLinear("fc2", cfg.HDim1, cfg.HDim2, rng),
			&nn.ReLU{},
		},
		fc31: nn.NewLinear("fc31", cfg.HDim2, cfg.ZDim, rng),
		fc32: nn.NewLinear("fc32", cfg.HDim2, cfg.ZDim, rng),
		decoder: nn.Sequential{
			nn.NewLinear("fc4", cfg.ZDim+cfg.NumClasses, cfg.HDim2, rng),
			&nn.ReLU{},
			nn.NewLinear("fc5", cfg.HDim2, cfg.HDim1, rng),
			&nn.ReLU{},
			nn.NewLinear("fc6", cfg.HDim1, cfg.XDim, rng),
		},
	}, nil
}

func (m *OneHotCVAE) Config() CVAEConfig { return m.cfg }
func (m *OneHotCVAE) LatentDim() int     { return m.cfg.ZDim }
func (m *OneHotCVAE) NumClasses() int    { return m.cfg.NumClasses }
func (m *OneHotCVAE) ImageSide() int     { return m.cfg.ImageSide() }

// Encode returns the posterior mean and log-variance for x under cond.
func (m *OneHotCVAE) Encode(x, cond *mat.Dense) (*mat.Dense, *mat.Dense) {
	h := m.encoder.Forward(nn.ConcatCols(x, cond))
	return m.fc31.Forward(h), m.fc32.Forward(h)
}

// Decode maps latents and conditions to pixel probabilities.
func (m *OneHotCVAE) Decode(z, cond *mat.Dense) *mat.Dense {
	return m.sigmoid.Forward(m.decoder.Forward(nn.ConcatCols(z, cond)))
}

// Backprop runs one forward/backward pass over batch, accumulating
// gradients, and returns the per-example loss (reconstruction BCE + KL).
func (m *OneHotCVAE) Backprop(batch Batch, rng *rand.Rand) float64 {
	n := batch.Size()
	if n == 0 {
		return 0
	}
	cond := nn.OneHot(batch.Labels, m.cfg.NumClasses)
	mu, logVar := m.Encode(batch.Inputs, cond)

	eps := nn.RandN(rng, n, m.cfg.ZDim)
	std := mat.NewDense(n, m.cfg.ZDim, nil)
	std.Apply(func(_, _ int, v float64) float64 { return math.Exp(0.5 * v) }, logVar)
	z := mat.NewDense(n, m.cfg.ZDim, nil)
	z.MulElem(eps, std)
	z.Add(z, mu)

	recon := m.Decode(z, cond)
	bce, dLogits := nn.BCELoss(recon, batch.Inputs)
	kl := 0.0
	for i := 0; i < n; i++ {
		muRow, lvRow := mu.RawRowView(i), logVar.RawRowView(i)
		for j := range muRow {
			kl -= 0.5 * (1 + lvRow[j] - muRow[j]*muRow[j] - math.Exp(lvRow[j]))
		}
	}

	inv := 1 / float64(n)
	dLogits.Scale(inv, dLogits)
	dzc := m.decoder.Backward(dLogits)
	dz, _ := nn.SplitCols(dzc, m.cfg.ZDim)

	dMu := mat.NewDense(n, m.cfg.ZDim, nil)
	dMu.Apply(func(i, j int, v float64) float64 { return v + mu.At(i, j)*inv }, dz)
	dLogVar := mat.NewDense(n, m.cfg.ZDim, nil)
	dLogVar.Apply(func(i, j int, v float64) float64 {
		s := std.At(i, j)
		return v*eps.At(i, j)*0.5*s + 0.5*(s*s-1)*inv
	}, dz)

	var dh mat.Dense
	dh.Add(m.fc31.Backward(dMu), m.fc32.Backward(dLogVar))
	m.encoder.Backward(&dh)

	return (bce + kl) * inv
}

func (m *OneHotCVAE) Params() []*nn.Param {
	params := m.encoder.Params()
	params = append(params, m.fc31.Params()...)
	params = append(params, m.fc32.Params()...)
	return append(params, m.decoder.Params()...)
}
