package nn

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrStateMismatch reports a state dict that does not fit the model.
var ErrStateMismatch = errors.New("state dict does not match model")

// Tensor is the serialisable form of a parameter.
type Tensor struct {
	Shape []int     `msgpack:"shape"`
	Data  []float64 `msgpack:"data"`
}

// StateDict maps parameter names to their values.
type StateDict map[string]Tensor

// Names returns the sorted parameter names.
func (sd StateDict) Names() []string {
	names := make([]string, 0, len(sd))
	for name := range sd {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExportState snapshots params. The result does not alias the model.
func ExportState(params []*Param) StateDict {
	sd := make(StateDict, len(params))
	for _, p := range params {
		r, c := p.Value.Dims()
		data := make([]float64, r*c)
		copy(data, mat.DenseCopyOf(p.Value).RawMatrix().Data)
		sd[p.Name] = Tensor{Shape: []int{r, c}, Data: data}
	}
	return sd
}

// ImportState copies sd into params. Every parameter must be present with
// the same shape and no extra entries are allowed.
func ImportState(params []*Param, sd StateDict) error {
	if len(sd) != len(params) {
		return fmt.Errorf("%w: checkpoint has %d tensors, model has %d", ErrStateMismatch, len(sd), len(params))
	}
	for _, p := range params {
		t, ok := sd[p.Name]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrStateMismatch, p.Name)
		}
		r, c := p.Value.Dims()
		if len(t.Shape) != 2 || t.Shape[0] != r || t.Shape[1] != c || len(t.Data) != r*c {
			return fmt.Errorf("%w: %s has shape %v, model expects [%d %d]", ErrStateMismatch, p.Name, t.Shape, r, c)
		}
	}
	for _, p := range params {
		r, c := p.Value.Dims()
		p.Value.Copy(mat.NewDense(r, c, sd[p.Name].Data))
		p.Grad.Zero()
	}
	return nil
}
