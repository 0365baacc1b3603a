package graph

import "github.com/csotherden/luminal/shape"

// InputTensor is a borrowed view onto a materialized tensor's backing data.
// The concrete contents (a CPU slice, an MPS buffer, a CUDA device
// pointer...) are opaque to the core; only external collaborators (device
// backends) know how to interpret Data.
type InputTensor struct {
	Data any
}

// Tensor is an owned result produced by Operator.Process.
type Tensor struct {
	Data any
}

// Input pairs a borrowed tensor with the shape tracker describing how its
// logical shape maps onto that tensor's physical backing.
type Input struct {
	Tensor  InputTensor
	Tracker shape.Tracker
}

// Operator is the capability set every graph node must implement (spec
// §6.1). Reflective downcast ("as_any" in the reference trait) has no Go
// analog of its own: interface values already support direct type
// assertion/type-switch against the concrete operator type, which is what
// selector predicates use instead (see selector.OfType and
// selector.NodePattern.Check).
type Operator interface {
	// Process executes the operator over its inputs, producing its
	// outputs. External collaborators — device dispatch, buffer
	// allocation — live behind this call; the core itself never executes
	// it directly, only rewrites the graph that will.
	Process(inputs []Input) ([]Tensor, error)

	// Custom retrieves a device-specific handle by key (e.g. "cuda",
	// "metal") for the uniform fused-kernel dispatch path. ok is false
	// when the operator doesn't expose anything under that key.
	Custom(key string) (value any, ok bool)
}
