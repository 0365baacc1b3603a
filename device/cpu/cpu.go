// Package cpu is the always-available device.Backend, delegating to
// gorgonia.org/tensor's StdEng.
package cpu

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/csotherden/luminal/device"
)

// Backend runs GEMMs through tensor.StdEng.
type Backend struct {
	eng tensor.StdEng
}

// New returns a CPU backend. There is no construction failure mode, unlike
// CUDA/Metal, which is why device.Default always has one to land on.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) Kind() device.Kind { return device.CPU }

func (b *Backend) MatMul2D(a, bb []float32, m, k, n int) ([]float32, error) {
	ta := tensor.New(tensor.WithShape(m, k), tensor.WithBacking(append([]float32(nil), a...)))
	tb := tensor.New(tensor.WithShape(k, n), tensor.WithBacking(append([]float32(nil), bb...)))
	tc := tensor.New(tensor.WithShape(m, n), tensor.Of(tensor.Float32))

	if err := b.eng.MatMul(ta, tb, tc); err != nil {
		return nil, errors.Wrap(err, "cpu: MatMul2D")
	}
	out, ok := tc.Data().([]float32)
	if !ok {
		return nil, errors.New("cpu: MatMul2D: unexpected result dtype")
	}
	return out, nil
}

func (b *Backend) BatchMatMul2D(a, bb []float32, batch, m, k, n int) ([]float32, error) {
	out := make([]float32, 0, batch*m*n)
	for i := 0; i < batch; i++ {
		ai := a[i*m*k : (i+1)*m*k]
		bi := device.BatchSlice(bb, i, k, n)
		ci, err := b.MatMul2D(ai, bi, m, k, n)
		if err != nil {
			return nil, errors.Wrapf(err, "cpu: BatchMatMul2D: batch %d", i)
		}
		out = append(out, ci...)
	}
	return out, nil
}
