// Package matmulfusion implements the matmul fusion compiler pass: three
// selectors recognizing a broadcast-multiply immediately followed by a
// sum-reduce along the broadcast-shared axis, for the 2D, batched, and
// attention matmul shapes, each replaced by a fused operator dispatched
// through a device.Backend.
package matmulfusion

import (
	"github.com/pkg/errors"

	"github.com/csotherden/luminal/cerr"
	"github.com/csotherden/luminal/device"
	"github.com/csotherden/luminal/graph"
	"github.com/csotherden/luminal/kernelcache"
	"github.com/csotherden/luminal/ops"
	"github.com/csotherden/luminal/rewrite"
	"github.com/csotherden/luminal/selector"
	"github.com/csotherden/luminal/symbolic"
)

// Compiler is implemented by every pass in this module; matmulfusion's
// own MatMulCompiler is the only one, but the interface keeps a caller
// chaining several passes from depending on concrete types.
type Compiler interface {
	Compile(g *graph.Graph) error
}

// Option configures a MatMulCompiler.
type Option func(*MatMulCompiler)

// WithBackend overrides the device backend every fused operator dispatches
// through. Defaults to device.Default()'s probe order (Metal, then CUDA,
// then CPU).
func WithBackend(b device.Backend) Option {
	return func(c *MatMulCompiler) { c.backend = b }
}

// WithAttentionDeviceKernel toggles whether the attention matmul variant
// dispatches through the configured backend (true) or always runs on CPU
// (false, the default) — see ops.AttnMatmul2D.EnableDeviceKernel; the
// other two fused variants always dispatch through the backend.
func WithAttentionDeviceKernel(enabled bool) Option {
	return func(c *MatMulCompiler) { c.attentionDeviceKernel = enabled }
}

// MatMulCompiler recognizes and fuses the three matmul shapes in one
// Compile call.
type MatMulCompiler struct {
	backend               device.Backend
	attentionDeviceKernel bool
}

var _ Compiler = (*MatMulCompiler)(nil)

// NewMatMulCompiler builds a compiler with backend defaulted to
// device.Default() and attention device dispatch disabled, then applies
// opts.
func NewMatMulCompiler(opts ...Option) *MatMulCompiler {
	c := &MatMulCompiler{backend: device.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func constDim(e symbolic.CompactExpr) (int, bool) { return e.IsConst() }

// Compile runs the three matmul patterns in turn over g. Each pattern is
// matched and rewritten to a fixed point implicitly — rewrite.Run already
// iterates over every match the selector finds in one search — and later
// patterns observe the rewrites of earlier ones, since the passes run
// strictly sequentially.
func (c *MatMulCompiler) Compile(g *graph.Graph) error {
	cache := kernelcache.New()

	if err := c.compile2D(g, cache); err != nil {
		return errors.Wrap(err, "matmulfusion: 2D pass")
	}
	if err := c.compileBatched(g, cache); err != nil {
		return errors.Wrap(err, "matmulfusion: batched pass")
	}
	if err := c.compileAttention(g, cache); err != nil {
		return errors.Wrap(err, "matmulfusion: attention pass")
	}
	return nil
}

func (c *MatMulCompiler) compile2D(g *graph.Graph, cache *kernelcache.Cache) error {
	var mulID, sumID int64
	sel := selector.New()
	mulPat := selector.OfType[*ops.Mul](sel.Op()).
		Shapes([][]selector.Dim{
			{selector.DimU('A'), selector.DimU('C'), selector.DimU('B')},
			{selector.DimU('A'), selector.DimU('C'), selector.DimU('B')},
		}).
		Fakes([][]bool{
			{false, true, false},
			{true, false, false},
		}).
		Ptr(&mulID)
	sumPat := selector.OfType[*ops.SumReduce](sel.Op()).
		Check(func(op graph.Operator, b selector.Bindings) bool {
			return op.(*ops.SumReduce).Axis == 2
		}).
		Ptr(&sumID)
	sel.Edge(mulPat, sumPat)

	_, err := rewrite.Run(g, sel, func(g *graph.Graph, b selector.Bindings) error {
		return c.fuse2D(g, cache, b, mulID, sumID)
	})
	return err
}

func (c *MatMulCompiler) fuse2D(g *graph.Graph, cache *kernelcache.Cache, b selector.Bindings, mulID, sumID int64) error {
	m, ok := constDim(b.Vars['A'])
	if !ok {
		return cerr.NewRewriteSkipped("dim A did not resolve to a constant")
	}
	k, ok := constDim(b.Vars['B'])
	if !ok {
		return cerr.NewRewriteSkipped("dim B did not resolve to a constant")
	}
	n, ok := constDim(b.Vars['C'])
	if !ok {
		return cerr.NewRewriteSkipped("dim C did not resolve to a constant")
	}

	srcs := g.GetSources(mulID)
	if len(srcs) != 2 {
		return cerr.NewRewriteSkipped("multiply node did not have exactly 2 sources")
	}

	trA, _, err := srcs[0].Tracker.Clone().RemoveDim(1)
	if err != nil {
		return cerr.NewRewriteSkipped(err.Error())
	}
	trB, _, err := srcs[1].Tracker.Clone().RemoveDim(0)
	if err != nil {
		return cerr.NewRewriteSkipped(err.Error())
	}
	trB = trB.Permute([]int{1, 0})

	if _, err := cache.GetOrCompile("matmul2d", c.backend.Kind(), func() (any, error) {
		return c.backend, nil
	}); err != nil {
		return err
	}

	fused := &ops.Matmul2D{Backend: c.backend, M: m, K: k, N: n}
	fusedID := g.AddOp(fused).
		Input(srcs[0].Node, srcs[0].OutIdx, trA).
		Input(srcs[1].Node, srcs[1].OutIdx, trB).
		Finish()

	g.MoveOutgoingEdge(sumID, fusedID)
	g.MoveReferences(sumID, fusedID)
	g.RemoveNode(mulID)
	g.RemoveNode(sumID)
	return nil
}

func (c *MatMulCompiler) compileBatched(g *graph.Graph, cache *kernelcache.Cache) error {
	var mulID, sumID int64
	sel := selector.New()
	mulPat := selector.OfType[*ops.Mul](sel.Op()).
		Shapes([][]selector.Dim{
			{selector.DimU('D'), selector.DimU('A'), selector.DimU('C'), selector.DimU('B')},
			{selector.DimU('D'), selector.DimU('A'), selector.DimU('C'), selector.DimU('B')},
		}).
		Fakes([][]bool{
			{false, false, true, false},
			{true, true, false, false},
		}).
		Ptr(&mulID)
	sumPat := selector.OfType[*ops.SumReduce](sel.Op()).
		Check(func(op graph.Operator, b selector.Bindings) bool {
			return op.(*ops.SumReduce).Axis == 3
		}).
		Ptr(&sumID)
	sel.Edge(mulPat, sumPat)

	_, err := rewrite.Run(g, sel, func(g *graph.Graph, b selector.Bindings) error {
		return c.fuseBatched(g, cache, b, mulID, sumID)
	})
	return err
}

func (c *MatMulCompiler) fuseBatched(g *graph.Graph, cache *kernelcache.Cache, b selector.Bindings, mulID, sumID int64) error {
	d, ok := constDim(b.Vars['D'])
	if !ok {
		return cerr.NewRewriteSkipped("dim D did not resolve to a constant")
	}
	a, ok := constDim(b.Vars['A'])
	if !ok {
		return cerr.NewRewriteSkipped("dim A did not resolve to a constant")
	}
	k, ok := constDim(b.Vars['B'])
	if !ok {
		return cerr.NewRewriteSkipped("dim B did not resolve to a constant")
	}
	n, ok := constDim(b.Vars['C'])
	if !ok {
		return cerr.NewRewriteSkipped("dim C did not resolve to a constant")
	}

	srcs := g.GetSources(mulID)
	if len(srcs) != 2 {
		return cerr.NewRewriteSkipped("multiply node did not have exactly 2 sources")
	}

	trA, _, err := srcs[0].Tracker.Clone().RemoveDim(2)
	if err != nil {
		return cerr.NewRewriteSkipped(err.Error())
	}

	trB, _, err := srcs[1].Tracker.Clone().RemoveDim(1)
	if err != nil {
		return cerr.NewRewriteSkipped(err.Error())
	}
	trB, _, err = trB.RemoveDim(0)
	if err != nil {
		return cerr.NewRewriteSkipped(err.Error())
	}
	trB = trB.Permute([]int{1, 0})

	if _, err := cache.GetOrCompile("batchmatmul2d", c.backend.Kind(), func() (any, error) {
		return c.backend, nil
	}); err != nil {
		return err
	}

	fused := &ops.BatchMatmul2D{Backend: c.backend, Batch: d, M: a, K: k, N: n}
	fusedID := g.AddOp(fused).
		Input(srcs[0].Node, srcs[0].OutIdx, trA).
		Input(srcs[1].Node, srcs[1].OutIdx, trB).
		Finish()

	g.MoveOutgoingEdge(sumID, fusedID)
	g.MoveReferences(sumID, fusedID)
	g.RemoveNode(mulID)
	g.RemoveNode(sumID)
	return nil
}

func (c *MatMulCompiler) compileAttention(g *graph.Graph, cache *kernelcache.Cache) error {
	var mulID, sumID int64
	sel := selector.New()
	mulPat := selector.OfType[*ops.Mul](sel.Op()).
		Shapes([][]selector.Dim{
			{selector.DimU('A'), selector.DimU('B'), selector.DimU('C'), selector.DimU('E'), selector.DimU('D')},
			{selector.DimU('A'), selector.DimU('B'), selector.DimU('C'), selector.DimU('E'), selector.DimU('D')},
		}).
		Fakes([][]bool{
			{false, false, false, true, false},
			{false, false, true, false, false},
		}).
		Ptr(&mulID)
	sumPat := selector.OfType[*ops.SumReduce](sel.Op()).
		Check(func(op graph.Operator, b selector.Bindings) bool {
			return op.(*ops.SumReduce).Axis == 4
		}).
		Ptr(&sumID)
	sel.Edge(mulPat, sumPat)

	_, err := rewrite.Run(g, sel, func(g *graph.Graph, b selector.Bindings) error {
		return c.fuseAttention(g, cache, b, mulID, sumID)
	})
	return err
}

func (c *MatMulCompiler) fuseAttention(g *graph.Graph, cache *kernelcache.Cache, b selector.Bindings, mulID, sumID int64) error {
	batchA, ok := constDim(b.Vars['A'])
	if !ok {
		return cerr.NewRewriteSkipped("dim A did not resolve to a constant")
	}
	batchB, ok := constDim(b.Vars['B'])
	if !ok {
		return cerr.NewRewriteSkipped("dim B did not resolve to a constant")
	}
	m, ok := constDim(b.Vars['C'])
	if !ok {
		return cerr.NewRewriteSkipped("dim C did not resolve to a constant")
	}
	n, ok := constDim(b.Vars['E'])
	if !ok {
		return cerr.NewRewriteSkipped("dim E did not resolve to a constant")
	}
	k, ok := constDim(b.Vars['D'])
	if !ok {
		return cerr.NewRewriteSkipped("dim D did not resolve to a constant")
	}

	srcs := g.GetSources(mulID)
	if len(srcs) != 2 {
		return cerr.NewRewriteSkipped("multiply node did not have exactly 2 sources")
	}

	trA, _, err := srcs[0].Tracker.Clone().RemoveDim(3)
	if err != nil {
		return cerr.NewRewriteSkipped(err.Error())
	}

	trB := srcs[1].Tracker.Clone().Permute([]int{0, 1, 2, 4, 3})
	trB, _, err = trB.RemoveDim(2)
	if err != nil {
		return cerr.NewRewriteSkipped(err.Error())
	}

	variant := kernelcache.Variant("attnmatmul2d")
	kernelDev := c.backend.Kind()
	if !c.attentionDeviceKernel {
		kernelDev = device.CPU
	}
	if _, err := cache.GetOrCompile(variant, kernelDev, func() (any, error) {
		return c.backend, nil
	}); err != nil {
		return err
	}

	fused := &ops.AttnMatmul2D{
		Backend:            c.backend,
		BatchA:             batchA,
		BatchB:             batchB,
		M:                  m,
		K:                  k,
		N:                  n,
		EnableDeviceKernel: c.attentionDeviceKernel,
	}
	fusedID := g.AddOp(fused).
		Input(srcs[0].Node, srcs[0].OutIdx, trA).
		Input(srcs[1].Node, srcs[1].OutIdx, trB).
		Finish()

	g.MoveOutgoingEdge(sumID, fusedID)
	g.MoveReferences(sumID, fusedID)
	g.RemoveNode(mulID)
	g.RemoveNode(sumID)
	return nil
}
