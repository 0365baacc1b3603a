// Package device abstracts the accelerator a fused matmul kernel actually
// runs on. Exactly one concrete Backend is live in a given process (CPU
// always available; CUDA and Metal behind build tags and a runtime probe):
// Default tries the accelerated backends and falls back to the CPU
// implementation when they cannot be constructed. An error from a GEMM
// dispatch is returned to the caller; it is not retried on the CPU.
package device

// Kind names a concrete backend, used as half of the kernelcache key
// (operator variant, Kind).
type Kind string

const (
	CPU   Kind = "cpu"
	CUDA  Kind = "cuda"
	Metal Kind = "metal"
)

// BatchSlice returns the i-th batch's k*n operand slice out of bb. bb may
// carry one slice per batch (len == batch*k*n, the attention-matmul case)
// or a single slice shared across every batch (len == k*n, the
// batched-matmul case, where one operand's batch axis was fake and
// removed during fusion).
func BatchSlice(bb []float32, i, k, n int) []float32 {
	if len(bb) == k*n {
		return bb
	}
	return bb[i*k*n : (i+1)*k*n]
}

// Backend is the minimal GEMM surface the fused matmul operators dispatch
// through. All buffers are row-major float32.
type Backend interface {
	Kind() Kind

	// MatMul2D computes C[m,n] = A[m,k] * B[k,n].
	MatMul2D(a, b []float32, m, k, n int) ([]float32, error)

	// BatchMatMul2D computes batch independent M*K by K*N products,
	// concatenated along a leading batch axis in a and the output; b
	// either carries one K*N slice per batch or a single K*N slice shared
	// by every batch (see BatchSlice).
	BatchMatMul2D(a, b []float32, batch, m, k, n int) ([]float32, error)
}
