//go:build darwin && cgo

// Package metal accelerates 2D float32 matmuls via Metal Performance
// Shaders: row-major buffer marshalling around an opaque device context,
// falling back through a plain status code rather than panicking on any
// GPU-side failure.
package metal

/*
#cgo darwin CFLAGS: -fobjc-arc
#cgo darwin LDFLAGS: -framework Metal -framework MetalPerformanceShaders -framework Foundation
#include "bridge.h"
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/csotherden/luminal/device"
)

// Backend owns a Metal device/command-queue pair behind an opaque
// context handle. The zero value is not usable; construct via New.
type Backend struct {
	ctx C.MetalContext
}

// New creates the default system Metal device's context. Returns an error
// (rather than panicking) when no Metal device is present, so callers can
// fall back to device/cpu.
func New() (*Backend, error) {
	ctx := C.MetalContextCreate()
	if ctx == nil {
		return nil, errors.New("metal: no Metal device available")
	}
	return &Backend{ctx: ctx}, nil
}

func (b *Backend) Kind() device.Kind { return device.Metal }

func (b *Backend) MatMul2D(a, bb []float32, m, k, n int) ([]float32, error) {
	if m <= 0 || k <= 0 || n <= 0 {
		return nil, errors.Errorf("metal: MatMul2D: invalid dims m=%d k=%d n=%d", m, k, n)
	}
	if len(a) < m*k || len(bb) < k*n {
		return nil, errors.New("metal: MatMul2D: input buffer too small")
	}

	c := make([]float32, m*n)
	status := C.MetalMatMulFloat32(
		b.ctx,
		(*C.float)(unsafe.Pointer(&a[0])),
		(*C.float)(unsafe.Pointer(&bb[0])),
		(*C.float)(unsafe.Pointer(&c[0])),
		C.int(m), C.int(n), C.int(k),
	)
	if status != 0 {
		return nil, errors.Errorf("metal: MatMul2D: MPS dispatch failed, status=%d", int(status))
	}
	return c, nil
}

func (b *Backend) BatchMatMul2D(a, bb []float32, batch, m, k, n int) ([]float32, error) {
	out := make([]float32, 0, batch*m*n)
	for i := 0; i < batch; i++ {
		ai := a[i*m*k : (i+1)*m*k]
		bi := device.BatchSlice(bb, i, k, n)
		ci, err := b.MatMul2D(ai, bi, m, k, n)
		if err != nil {
			return nil, errors.Wrapf(err, "metal: BatchMatMul2D: batch %d", i)
		}
		out = append(out, ci...)
	}
	return out, nil
}

// Close releases the underlying Metal context.
func (b *Backend) Close() {
	C.MetalContextDestroy(b.ctx)
	b.ctx = nil
}
