package shape

import (
	"testing"

	"github.com/csotherden/luminal/cerr"
	"github.com/csotherden/luminal/symbolic"
)

func dimsC(vals ...int) []symbolic.CompactExpr {
	out := make([]symbolic.CompactExpr, len(vals))
	for i, v := range vals {
		out[i] = symbolic.ConstC(v)
	}
	return out
}

func evalInt(t *testing.T, e symbolic.Expr, env map[byte]int) int {
	t.Helper()
	v, err := e.Eval(env)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	return v
}

func shapeInts(t *testing.T, sh []symbolic.Expr) []int {
	t.Helper()
	out := make([]int, len(sh))
	for i, e := range sh {
		out[i] = evalInt(t, e, nil)
	}
	return out
}

func eqInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Scenario 1: contiguous identity.
func TestScenario1ContiguousIdentity(t *testing.T) {
	s := New(dimsC(3, 4))

	if got := shapeInts(t, s.Shape()); !eqInts(got, []int{3, 4}) {
		t.Fatalf("shape = %v, want [3 4]", got)
	}
	if got := shapeInts(t, s.Strides()); !eqInts(got, []int{4, 1}) {
		t.Fatalf("strides = %v, want [4 1]", got)
	}
	if !s.IsContiguous() {
		t.Fatalf("expected contiguous")
	}
	if got := s.IndexExpression(); got.String() != "z" {
		t.Fatalf("index_expression = %s, want z", got)
	}
	if got := s.ValidExpression(); evalInt(t, got, map[byte]int{}) != 1 {
		t.Fatalf("valid_expression should be constant 1")
	}
	if n := evalInt(t, s.NElements(), nil); n != 12 {
		t.Fatalf("n_elements = %d, want 12", n)
	}
}

// Scenario 2: transpose.
func TestScenario2Transpose(t *testing.T) {
	s := New(dimsC(3, 4)).Permute([]int{1, 0})

	if got := shapeInts(t, s.Shape()); !eqInts(got, []int{4, 3}) {
		t.Fatalf("shape = %v, want [4 3]", got)
	}
	if got := shapeInts(t, s.Strides()); !eqInts(got, []int{1, 4}) {
		t.Fatalf("strides = %v, want [1 4]", got)
	}
	if s.IsContiguous() {
		t.Fatalf("transposed tracker should not be contiguous")
	}

	// Consistency check against strides directly, rather than hard-coding
	// a row/col convention: index_expression(z) must equal
	// sum(coord[k] * strides[k]) for the presented coordinate decomposition
	// of z.
	strides := shapeInts(t, s.Strides())
	shapeDims := shapeInts(t, s.Shape())
	idxExpr := s.IndexExpression()
	for z := 0; z < shapeDims[0]*shapeDims[1]; z++ {
		coord := make([]int, 2)
		rem := z
		for k := len(shapeDims) - 1; k >= 0; k-- {
			coord[k] = rem % shapeDims[k]
			rem /= shapeDims[k]
		}
		want := coord[0]*strides[0] + coord[1]*strides[1]
		got := evalInt(t, idxExpr, map[byte]int{'z': z})
		if got != want {
			t.Fatalf("index_expression(z=%d) = %d, want %d (coord=%v)", z, got, want, coord)
		}
	}
}

// Scenario 3: broadcast.
func TestScenario3Broadcast(t *testing.T) {
	s := New(dimsC(3)).Expand(1, symbolic.ConstC(5))

	if got := shapeInts(t, s.Shape()); !eqInts(got, []int{3, 5}) {
		t.Fatalf("shape = %v, want [3 5]", got)
	}

	idxExpr := s.IndexExpression()
	for r := 0; r < 3; r++ {
		var base int
		for c := 0; c < 5; c++ {
			z := r*5 + c
			got := evalInt(t, idxExpr, map[byte]int{'z': z})
			if c == 0 {
				base = got
			} else if got != base {
				t.Fatalf("broadcast axis should read the same physical element regardless of c: r=%d c=%d got=%d base=%d", r, c, got, base)
			}
		}
	}
}

// Scenario 4: padding an already-sliced axis is forbidden.
func TestScenario4PadAfterSliceForbidden(t *testing.T) {
	s := New(dimsC(3, 3))
	s, err := s.Slice([]Bound{
		{Lo: symbolic.ConstC(1), Hi: symbolic.ConstC(3)},
		{Lo: symbolic.ConstC(0), Hi: symbolic.ConstC(3)},
	})
	if err != nil {
		t.Fatalf("unexpected error slicing an unpadded tracker: %v", err)
	}

	_, err = s.Pad([]Pad{
		{Before: symbolic.ConstC(1), After: symbolic.ConstC(0)},
		{Before: symbolic.ConstC(0), After: symbolic.ConstC(0)},
	})
	if err == nil {
		t.Fatalf("expected InvalidCompose error")
	}
	if cerr.ErrInvalidCompose.Error() == "" {
		t.Fatal("sanity")
	}
}

// The reverse composition order (pad, then slice the same axis) must be
// rejected the same way: the axis's physical-offset formula assumes at
// most one of padding/slicing is active.
func TestSliceAfterPadForbidden(t *testing.T) {
	s := New(dimsC(10))
	s, err := s.Pad([]Pad{{Before: symbolic.ConstC(2), After: symbolic.ConstC(0)}})
	if err != nil {
		t.Fatalf("unexpected error padding: %v", err)
	}

	_, err = s.Slice([]Bound{{Lo: symbolic.ConstC(3), Hi: symbolic.ConstC(12)}})
	if err == nil {
		t.Fatalf("expected InvalidCompose error")
	}
}

// Invariant 1: shape().len() == len().
func TestInvariantShapeLenMatchesLen(t *testing.T) {
	s := New(dimsC(2, 3, 4))
	if len(s.Shape()) != s.Len() {
		t.Fatalf("shape len %d != tracker len %d", len(s.Shape()), s.Len())
	}
}

// Invariant 4: permute is involutive modulo inverse.
func TestInvariantPermuteInvolutive(t *testing.T) {
	s := New(dimsC(2, 3, 4))
	perm := []int{2, 0, 1}
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	back := s.Permute(perm).Permute(inv)
	if !eqInts(back.Indexes(), s.Indexes()) {
		t.Fatalf("permute(p).permute(inv(p)) should restore indexes: got %v want %v", back.Indexes(), s.Indexes())
	}
}

// Invariant 5: add_dim then remove_dim restores the tracker.
func TestInvariantAddRemoveDimRestores(t *testing.T) {
	s := New(dimsC(2, 3))
	added := s.AddDim(1, symbolic.ConstC(9))
	restored, dim, err := added.RemoveDim(1)
	if err != nil {
		t.Fatalf("remove_dim error: %v", err)
	}
	if v, ok := dim.IsConst(); !ok || v != 9 {
		t.Fatalf("removed dim should be 9, got %v", dim)
	}
	if !eqInts(restored.Indexes(), s.Indexes()) {
		t.Fatalf("indexes not restored: got %v want %v", restored.Indexes(), s.Indexes())
	}
	if restored.Len() != s.Len() {
		t.Fatalf("len not restored: got %d want %d", restored.Len(), s.Len())
	}
}

// Invariant 6: contiguous is idempotent.
func TestInvariantContiguousIdempotent(t *testing.T) {
	s := New(dimsC(2, 3)).Permute([]int{1, 0})
	c1 := s.Contiguous()
	c2 := c1.Contiguous()
	if !eqInts(shapeInts(t, c1.Shape()), shapeInts(t, c2.Shape())) {
		t.Fatalf("contiguous().contiguous() should equal contiguous()")
	}
	if !c2.IsContiguous() {
		t.Fatalf("contiguous() result should itself be contiguous")
	}
}

// Invariant 7: n_physical_elements of a fake tracker is 1; n_elements is
// the product of its dims.
func TestInvariantFakeTrackerElementCounts(t *testing.T) {
	s := Fake(dimsC(2, 3))
	if v := evalInt(t, s.NPhysicalElements(), nil); v != 1 {
		t.Fatalf("n_physical_elements of fake tracker = %d, want 1", v)
	}
	if v := evalInt(t, s.NElements(), nil); v != 6 {
		t.Fatalf("n_elements of fake tracker = %d, want 6", v)
	}
}

// AxisOutOfRange on a bad remove_dim.
func TestRemoveDimOutOfRange(t *testing.T) {
	s := New(dimsC(2, 3))
	if _, _, err := s.RemoveDim(5); err == nil {
		t.Fatalf("expected AxisOutOfRange error")
	}
}

// ResolveLocalDynDims reconciles unknown dims across two trackers.
func TestResolveLocalDynDims(t *testing.T) {
	a := New([]symbolic.CompactExpr{symbolic.VarC('a'), symbolic.ConstC(4)})
	b := New([]symbolic.CompactExpr{symbolic.ConstC(7), symbolic.ConstC(4)})
	ResolveLocalDynDims(&a, &b, false)
	if v, ok := a.Dims()[0].IsConst(); !ok || v != 7 {
		t.Fatalf("expected a's unknown dim resolved to 7, got %v", a.Dims()[0])
	}
}
