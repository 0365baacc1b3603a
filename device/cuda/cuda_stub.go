//go:build !cuda

// Stub build: the cuda tag was not requested, so CUDA is treated as
// unavailable and the compiler falls back to device/cpu.
package cuda

import (
	"github.com/pkg/errors"

	"github.com/csotherden/luminal/device"
)

type Backend struct{}

func New() (*Backend, error) {
	return nil, errors.New("cuda: built without the cuda build tag")
}

func (b *Backend) Kind() device.Kind { return device.CUDA }

func (b *Backend) MatMul2D(a, bb []float32, m, k, n int) ([]float32, error) {
	return nil, errors.New("cuda: built without the cuda build tag")
}

func (b *Backend) BatchMatMul2D(a, bb []float32, batch, m, k, n int) ([]float32, error) {
	return nil, errors.New("cuda: built without the cuda build tag")
}
