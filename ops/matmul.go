package ops

import (
	"github.com/pkg/errors"

	"github.com/csotherden/luminal/device"
	"github.com/csotherden/luminal/device/cpu"
	"github.com/csotherden/luminal/graph"
)

// Matmul2D is the fused replacement for a [A,C,B]/[A,C,B]-shaped
// broadcast-multiply followed by an axis-2 sum-reduce. Its two inputs
// arrive with the fake axis already removed by the compiler's rewrite
// action, so Process sees plain dense [M,K] and [K,N] buffers.
type Matmul2D struct {
	Backend    device.Backend
	M, K, N    int
}

func (op *Matmul2D) Process(inputs []graph.Input) ([]graph.Tensor, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("ops.Matmul2D: want 2 inputs, got %d", len(inputs))
	}
	a, okA := inputs[0].Tensor.Data.([]float32)
	b, okB := inputs[1].Tensor.Data.([]float32)
	if !okA || !okB {
		return nil, errors.New("ops.Matmul2D: inputs must be []float32")
	}
	out, err := op.Backend.MatMul2D(a, b, op.M, op.K, op.N)
	if err != nil {
		return nil, errors.Wrap(err, "ops.Matmul2D")
	}
	return []graph.Tensor{{Data: out}}, nil
}

func (op *Matmul2D) Custom(key string) (any, bool) {
	if key == string(op.Backend.Kind()) {
		return op.Backend, true
	}
	return nil, false
}

// BatchMatmul2D is the fused replacement for the batched matmul pattern:
// inputs [D,A,C,B]/[D,A,C,B], reduced along axis 3, lifted by one leading
// batch axis relative to Matmul2D.
type BatchMatmul2D struct {
	Backend          device.Backend
	Batch, M, K, N   int
}

func (op *BatchMatmul2D) Process(inputs []graph.Input) ([]graph.Tensor, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("ops.BatchMatmul2D: want 2 inputs, got %d", len(inputs))
	}
	a, okA := inputs[0].Tensor.Data.([]float32)
	b, okB := inputs[1].Tensor.Data.([]float32)
	if !okA || !okB {
		return nil, errors.New("ops.BatchMatmul2D: inputs must be []float32")
	}
	out, err := op.Backend.BatchMatMul2D(a, b, op.Batch, op.M, op.K, op.N)
	if err != nil {
		return nil, errors.Wrap(err, "ops.BatchMatmul2D")
	}
	return []graph.Tensor{{Data: out}}, nil
}

func (op *BatchMatmul2D) Custom(key string) (any, bool) {
	if key == string(op.Backend.Kind()) {
		return op.Backend, true
	}
	return nil, false
}

// AttnMatmul2D is the fused replacement for the attention matmul pattern:
// inputs [A,B,C,E,D]/[A,B,C,E,D], reduced along axis 4, two leading batch
// axes (A, B) flattened into one for dispatch.
//
// EnableDeviceKernel defaults false: this operator always runs its GEMM on
// the CPU backend regardless of what Backend it was constructed with. Set
// it to opt into the same device dispatch the other two fused operators
// always use.
type AttnMatmul2D struct {
	Backend            device.Backend
	BatchA, BatchB     int
	M, K, N            int
	EnableDeviceKernel bool
}

func (op *AttnMatmul2D) Process(inputs []graph.Input) ([]graph.Tensor, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("ops.AttnMatmul2D: want 2 inputs, got %d", len(inputs))
	}
	a, okA := inputs[0].Tensor.Data.([]float32)
	b, okB := inputs[1].Tensor.Data.([]float32)
	if !okA || !okB {
		return nil, errors.New("ops.AttnMatmul2D: inputs must be []float32")
	}

	backend := op.Backend
	if !op.EnableDeviceKernel {
		backend = cpu.New()
	}

	batch := op.BatchA * op.BatchB
	out, err := backend.BatchMatMul2D(a, b, batch, op.M, op.K, op.N)
	if err != nil {
		return nil, errors.Wrap(err, "ops.AttnMatmul2D")
	}
	return []graph.Tensor{{Data: out}}, nil
}

func (op *AttnMatmul2D) Custom(key string) (any, bool) {
	if !op.EnableDeviceKernel {
		return nil, false
	}
	if key == string(op.Backend.Kind()) {
		return op.Backend, true
	}
	return nil, false
}
