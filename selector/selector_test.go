package selector

import (
	"testing"

	"github.com/csotherden/luminal/graph"
	"github.com/csotherden/luminal/shape"
	"github.com/csotherden/luminal/symbolic"
)

type fakeMul struct{ axis int }

func (f *fakeMul) Process(inputs []graph.Input) ([]graph.Tensor, error) { return nil, nil }
func (f *fakeMul) Custom(key string) (any, bool)                        { return nil, false }

type fakeSumReduce struct{ axis int }

func (f *fakeSumReduce) Process(inputs []graph.Input) ([]graph.Tensor, error) { return nil, nil }
func (f *fakeSumReduce) Custom(key string) (any, bool)                       { return nil, false }

func dims(vals ...int) []symbolic.CompactExpr {
	out := make([]symbolic.CompactExpr, len(vals))
	for i, v := range vals {
		out[i] = symbolic.ConstC(v)
	}
	return out
}

// makeTracker builds a Tracker presenting dims d in order, expanding the
// axes named in fake as broadcast (fake) axes rather than real ones.
func makeTracker(d []int, fake []bool) shape.Tracker {
	tr := shape.New(nil)
	for i, sz := range d {
		c := symbolic.ConstC(sz)
		if fake[i] {
			tr = tr.Expand(i, c)
		} else {
			tr = tr.AddDim(i, c)
		}
	}
	return tr
}

func build2DMatmulGraph() (g *graph.Graph, mul, sum int64) {
	g = graph.NewGraph()

	a := g.AddOp(&fakeMul{}).Finish() // stand-in input node A, shape [2,4]
	b := g.AddOp(&fakeMul{}).Finish() // stand-in input node B, shape [4,3]

	aTr := makeTracker([]int{2, 3, 4}, []bool{false, true, false})
	bTr := makeTracker([]int{2, 3, 4}, []bool{true, false, false})

	mul = g.AddOp(&fakeMul{axis: 2}).
		Input(a, 0, aTr).
		Input(b, 0, bTr).
		Finish()

	sum = g.AddOp(&fakeSumReduce{axis: 2}).
		Input(mul, 0, shape.New(dims(2, 3))).
		Finish()

	return g, mul, sum
}

func TestSelectorMatches2DMatmulPattern(t *testing.T) {
	g, mulID, sumID := build2DMatmulGraph()

	var mulNode, sumNode int64
	sel := New()
	mulPat := OfType[*fakeMul](sel.Op()).
		Shapes([][]Dim{
			{DimU('A'), DimU('C'), DimU('B')},
			{DimU('A'), DimU('C'), DimU('B')},
		}).
		Fakes([][]bool{
			{false, true, false},
			{true, false, false},
		}).
		Ptr(&mulNode)
	sumPat := OfType[*fakeSumReduce](sel.Op()).
		Check(func(op graph.Operator, b Bindings) bool {
			return op.(*fakeSumReduce).axis == 2
		}).
		Ptr(&sumNode)
	sel.Edge(mulPat, sumPat)

	matches := 0
	for range sel.Search(g) {
		matches++
	}

	if matches != 1 {
		t.Fatalf("expected exactly 1 match, got %d", matches)
	}
	if mulNode != mulID {
		t.Fatalf("mulNode = %d, want %d", mulNode, mulID)
	}
	if sumNode != sumID {
		t.Fatalf("sumNode = %d, want %d", sumNode, sumID)
	}
}

func TestSelectorVariableBindingsConsistent(t *testing.T) {
	g, mulID, _ := build2DMatmulGraph()

	var bound Bindings
	sel := New()
	mulPat := OfType[*fakeMul](sel.Op()).
		Shapes([][]Dim{
			{DimU('A'), DimU('C'), DimU('B')},
			{DimU('A'), DimU('C'), DimU('B')},
		})

	found := false
	for b := range sel.Search(g) {
		if b.Nodes[mulPat.id] == mulID {
			bound = b
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected to find the multiply node")
	}
	a, ok := bound.Vars['A'].IsConst()
	if !ok || a != 2 {
		t.Fatalf("variable A should resolve to 2, got %v ok=%v", a, ok)
	}
	c, ok := bound.Vars['C'].IsConst()
	if !ok || c != 3 {
		t.Fatalf("variable C should resolve to 3, got %v ok=%v", c, ok)
	}
	bb, ok := bound.Vars['B'].IsConst()
	if !ok || bb != 4 {
		t.Fatalf("variable B should resolve to 4, got %v ok=%v", bb, ok)
	}
}

func TestSelectorNoMatchOnTypeMismatch(t *testing.T) {
	g, _, _ := build2DMatmulGraph()

	sel := New()
	OfType[*fakeSumReduce](sel.Op())

	count := 0
	for range sel.Search(g) {
		count++
	}
	// Only the real SumReduce node is *fakeSumReduce; the two bare input
	// stand-ins and the multiply node are *fakeMul.
	if count != 1 {
		t.Fatalf("expected 1 match (the real sum-reduce node), got %d", count)
	}
}

// build2DMatmulGraphPerturbed builds the same logical graph as
// build2DMatmulGraph, but with extra nodes added before the input nodes and
// removed right after them, so the multiply and reduce nodes reuse the freed
// ids and the real nodes land on a different, non-monotonic run of ids than
// in the straightforward build.
func build2DMatmulGraphPerturbed() (g *graph.Graph, mul, sum int64) {
	g = graph.NewGraph()

	var throwaways []int64
	for i := 0; i < 3; i++ {
		throwaways = append(throwaways, g.AddOp(&fakeMul{}).Finish())
	}

	b := g.AddOp(&fakeMul{}).Finish()
	a := g.AddOp(&fakeMul{}).Finish()

	for _, id := range throwaways {
		g.RemoveNode(id)
	}

	aTr := makeTracker([]int{2, 3, 4}, []bool{false, true, false})
	bTr := makeTracker([]int{2, 3, 4}, []bool{true, false, false})

	mul = g.AddOp(&fakeMul{axis: 2}).
		Input(a, 0, aTr).
		Input(b, 0, bTr).
		Finish()

	sum = g.AddOp(&fakeSumReduce{axis: 2}).
		Input(mul, 0, shape.New(dims(2, 3))).
		Finish()

	return g, mul, sum
}

// buildMatmulSelector constructs the same 2D-matmul-plus-reduce pattern used
// by TestSelectorMatches2DMatmulPattern; both order-invariance test graphs
// are searched with a fresh instance since Ptr slots are written in place.
func buildMatmulSelector(mulNode, sumNode *int64) *Selector {
	sel := New()
	mulPat := OfType[*fakeMul](sel.Op()).
		Shapes([][]Dim{
			{DimU('A'), DimU('C'), DimU('B')},
			{DimU('A'), DimU('C'), DimU('B')},
		}).
		Fakes([][]bool{
			{false, true, false},
			{true, false, false},
		}).
		Ptr(mulNode)
	sumPat := OfType[*fakeSumReduce](sel.Op()).
		Check(func(op graph.Operator, b Bindings) bool {
			return op.(*fakeSumReduce).axis == 2
		}).
		Ptr(sumNode)
	sel.Edge(mulPat, sumPat)
	return sel
}

// TestSelectorMatchIsOrderInvariant builds the same logical pattern against
// two graphs whose nodes were assigned ids in different orders (one
// straightforward, one perturbed by throwaway add/remove churn) and checks
// that Search finds the same logical match in both: the bound multiply node
// really is the multiply op and the bound sum node really is the reduce op,
// regardless of what ids those happen to land on.
func TestSelectorMatchIsOrderInvariant(t *testing.T) {
	g1, mulID1, sumID1 := build2DMatmulGraph()
	var mul1, sum1 int64
	matches1 := 0
	for range buildMatmulSelector(&mul1, &sum1).Search(g1) {
		matches1++
	}

	g2, mulID2, sumID2 := build2DMatmulGraphPerturbed()
	var mul2, sum2 int64
	matches2 := 0
	for range buildMatmulSelector(&mul2, &sum2).Search(g2) {
		matches2++
	}

	if matches1 != 1 || matches2 != 1 {
		t.Fatalf("expected exactly 1 match in each graph, got %d and %d", matches1, matches2)
	}
	if mul1 != mulID1 || sum1 != sumID1 {
		t.Fatalf("straightforward graph: bound (mul,sum) = (%d,%d), want (%d,%d)", mul1, sum1, mulID1, sumID1)
	}
	if mul2 != mulID2 || sum2 != sumID2 {
		t.Fatalf("perturbed graph: bound (mul,sum) = (%d,%d), want (%d,%d)", mul2, sum2, mulID2, sumID2)
	}
	if mulID1 == mulID2 && sumID1 == sumID2 {
		t.Fatalf("test did not actually perturb node ids between the two graphs")
	}
}

func TestValidateRejectsUndeclaredEdgeEndpoint(t *testing.T) {
	sel := New()
	real := sel.Op()
	foreign := &NodePattern{id: 99}
	sel.Edge(real, foreign)

	if err := sel.Validate(); err == nil {
		t.Fatalf("expected Validate to reject an edge referencing an undeclared pattern id")
	}
}

func TestValidateRejectsMismatchedShapeFakeArity(t *testing.T) {
	sel := New()
	sel.Op().
		Shapes([][]Dim{{DimU('A'), DimU('B')}}).
		Fakes([][]bool{{false, true, false}})

	if err := sel.Validate(); err == nil {
		t.Fatalf("expected Validate to reject a pattern whose Shapes/Fakes axis counts disagree")
	}
}

func TestValidateAcceptsWellFormedSelector(t *testing.T) {
	var mulNode, sumNode int64
	sel := buildMatmulSelector(&mulNode, &sumNode)

	if err := sel.Validate(); err != nil {
		t.Fatalf("unexpected error validating a well-formed selector: %v", err)
	}
}
