// Package checkpoint defines the on-disk record for trained parameters.
//
// A record is a msgpack map carrying a format tag, a version, the kind of
// model, an optional architecture config and the parameter state dict. The
// state dict is covered by a blake3 digest so truncated or edited files are
// rejected before any parameter is touched.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"lukechampine.com/blake3"

	"digitforge/internal/model"
	"digitforge/internal/nn"
	"digitforge/internal/storage"
)

const (
	Format  = "digitforge/checkpoint"
	Version = 1
)

const (
	KindClassifier = "classifier"
	KindCVAE       = "cvae"
)

// A CVAE run keeps its record at <ckpt_folder>/CVAEDir/CVAEKey.
const (
	CVAEDir = "ckpts"
	CVAEKey = "ckpt.pt"
)

var (
	// ErrCorrupt means the payload is not a readable record.
	ErrCorrupt = errors.New("corrupt checkpoint")
	// ErrIncompatible means the record is intact but cannot be loaded into
	// the requested model.
	ErrIncompatible = errors.New("incompatible checkpoint")
)

// Record bundles parameters with the configuration that produced them.
type Record struct {
	Format  string            `msgpack:"format"`
	Version int               `msgpack:"version"`
	Kind    string            `msgpack:"kind"`
	Config  *model.CVAEConfig `msgpack:"config,omitempty"`
	Model   nn.StateDict      `msgpack:"model"`
	Digest  string            `msgpack:"digest"`
}

// New snapshots m into a record of the given kind.
func New(kind string, cfg *model.CVAEConfig, m model.Model) *Record {
	return &Record{
		Format:  Format,
		Version: Version,
		Kind:    kind,
		Config:  cfg,
		Model:   model.State(m),
	}
}

func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func digest(state nn.StateDict) (string, error) {
	payload, err := marshal(state)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Encode seals r with its digest and serialises it.
func Encode(r *Record) ([]byte, error) {
	d, err := digest(r.Model)
	if err != nil {
		return nil, fmt.Errorf("digest state: %w", err)
	}
	r.Digest = d
	data, err := marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// Decode parses and verifies a record.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.Format != Format {
		return nil, fmt.Errorf("%w: format tag %q", ErrCorrupt, r.Format)
	}
	if r.Version != Version {
		return nil, fmt.Errorf("%w: record version %d, this build reads version %d", ErrIncompatible, r.Version, Version)
	}
	d, err := digest(r.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if d != r.Digest {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	return &r, nil
}

// Save encodes r and overwrites key in store.
func Save(ctx context.Context, store storage.Store, key string, r *Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, data)
}

// Load reads and verifies the record stored at key.
func Load(ctx context.Context, store storage.Store, key string) (*Record, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	r, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", store.Location(key), err)
	}
	return r, nil
}

// Restore copies the parameters of r into m.
func (r *Record) Restore(kind string, m model.Model) error {
	if r.Kind != kind {
		return fmt.Errorf("%w: checkpoint holds a %s model, expected %s", ErrIncompatible, r.Kind, kind)
	}
	if err := model.LoadState(m, r.Model); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	return nil
}

// CVAE rebuilds the generative model described by the record's config.
func (r *Record) CVAE() (*model.OneHotCVAE, error) {
	if r.Kind != KindCVAE {
		return nil, fmt.Errorf("%w: checkpoint holds a %s model, expected %s", ErrIncompatible, r.Kind, KindCVAE)
	}
	if r.Config == nil {
		return nil, fmt.Errorf("%w: cvae checkpoint carries no config", ErrIncompatible)
	}
	vae, err := model.NewOneHotCVAE(*r.Config, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if err := r.Restore(KindCVAE, vae); err != nil {
		return nil, err
	}
	return vae, nil
}
