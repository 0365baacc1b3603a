// Package ops holds the minimal primitive operators the matmul compiler
// matches against (Mul, SumReduce) and the fused operators it replaces
// them with. These are deliberately not a general operator library (see
// Non-goals): just enough to give the compiler real subgraphs to fuse and
// real operators to produce.
package ops

import (
	"github.com/pkg/errors"

	"github.com/csotherden/luminal/graph"
)

// Mul is element-wise multiply over exactly two inputs. Process multiplies
// the two buffers position by position over the shorter length; it does
// not consult the input trackers, so fake (broadcast) axes are not
// expanded here.
type Mul struct{}

func (m *Mul) Process(inputs []graph.Input) ([]graph.Tensor, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("ops.Mul: want 2 inputs, got %d", len(inputs))
	}
	a, okA := inputs[0].Tensor.Data.([]float32)
	b, okB := inputs[1].Tensor.Data.([]float32)
	if !okA || !okB {
		return nil, errors.New("ops.Mul: inputs must be []float32")
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] * b[i]
	}
	return []graph.Tensor{{Data: out}}, nil
}

func (m *Mul) Custom(key string) (any, bool) { return nil, false }

// SumReduce is the sum-reduction the compiler matches on; Axis indexes the
// tracker's presented dimension order and is what selectors inspect.
// Process sums every element of its single input into one value; it does
// not reduce along Axis alone.
type SumReduce struct {
	Axis int
}

func (s *SumReduce) Process(inputs []graph.Input) ([]graph.Tensor, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("ops.SumReduce: want 1 input, got %d", len(inputs))
	}
	a, ok := inputs[0].Tensor.Data.([]float32)
	if !ok {
		return nil, errors.New("ops.SumReduce: input must be []float32")
	}
	// The minimal black-box contract here doesn't need to understand the
	// tracker's full index algebra: reduction is exercised end-to-end
	// through the fused replacement operators the compiler produces, not
	// through this primitive running standalone.
	var total float32
	for _, v := range a {
		total += v
	}
	return []graph.Tensor{{Data: []float32{total}}}, nil
}

func (s *SumReduce) Custom(key string) (any, bool) { return nil, false }
