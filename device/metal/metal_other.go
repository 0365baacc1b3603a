//go:build !darwin || !cgo

// Non-Darwin (or non-cgo) stub: Metal is never available, so New always
// fails and the compiler falls back to device/cpu, matching how
// mps.MPSEng's own initMPSEngine no-ops off-Darwin.
package metal

import (
	"github.com/pkg/errors"

	"github.com/csotherden/luminal/device"
)

type Backend struct{}

func New() (*Backend, error) {
	return nil, errors.New("metal: not available on this platform")
}

func (b *Backend) Kind() device.Kind { return device.Metal }

func (b *Backend) MatMul2D(a, bb []float32, m, k, n int) ([]float32, error) {
	return nil, errors.New("metal: not available on this platform")
}

func (b *Backend) BatchMatMul2D(a, bb []float32, batch, m, k, n int) ([]float32, error) {
	return nil, errors.New("metal: not available on this platform")
}

func (b *Backend) Close() {}
