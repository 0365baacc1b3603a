// Package shape implements the symbolic shape tracker: a value-typed
// record of parallel per-axis arrays that maps a tensor's logical
// n-dimensional shape onto physical memory through permutations, fake
// (broadcast) dimensions, slices, and padding.
package shape

import (
	"math"

	"github.com/pkg/errors"

	"github.com/csotherden/luminal/cerr"
	"github.com/csotherden/luminal/symbolic"
)

// MaxRank is a soft bound on tracker rank. Go slices don't need a hard
// capacity, so this is documentation only: no operation checks or enforces
// it.
const MaxRank = 6

// UnsetSliceHi is the sentinel upper slice bound meaning "unset", kept in
// the int32 domain so min()-against-sentinel arithmetic stays representable
// alongside ordinary dims.
const UnsetSliceHi = math.MaxInt32

// Bound is a per-axis slice window, expressed symbolically so that dynamic
// dims can participate in slicing.
type Bound struct {
	Lo, Hi symbolic.CompactExpr
}

// Pad is a per-axis zero-padding amount, symbolic for the same reason.
type Pad struct {
	Before, After symbolic.CompactExpr
}

func unsetBound() Bound {
	return Bound{Lo: symbolic.ConstC(0), Hi: symbolic.ConstC(UnsetSliceHi)}
}

func zeroPad() Pad {
	z := symbolic.ConstC(0)
	return Pad{Before: z, After: z}
}

// Tracker is the lazy logical-to-physical index map over a tensor's
// buffer. The zero value is not meaningful; build one with New or Fake.
type Tracker struct {
	dims    []symbolic.CompactExpr
	indexes []int
	fake    []bool
	slices  []Bound
	padding []Pad
}

// New creates a contiguous, unpermuted, unsliced, unpadded tracker over
// the given physical dims.
func New(dims []symbolic.CompactExpr) Tracker {
	t := Tracker{
		dims:    append([]symbolic.CompactExpr(nil), dims...),
		indexes: make([]int, len(dims)),
		fake:    make([]bool, len(dims)),
		slices:  make([]Bound, len(dims)),
		padding: make([]Pad, len(dims)),
	}
	for i := range dims {
		t.indexes[i] = i
		t.slices[i] = unsetBound()
		t.padding[i] = zeroPad()
	}
	return t
}

// Fake creates a tracker like New but with every axis marked fake
// (broadcast).
func Fake(dims []symbolic.CompactExpr) Tracker {
	t := New(dims)
	for i := range t.fake {
		t.fake[i] = true
	}
	return t
}

// Len returns the tracker's rank.
func (t Tracker) Len() int { return len(t.dims) }

// Clone performs a deep copy; Tracker's slice-backed fields would otherwise
// alias their backing arrays across assignment.
func (t Tracker) Clone() Tracker {
	return Tracker{
		dims:    append([]symbolic.CompactExpr(nil), t.dims...),
		indexes: append([]int(nil), t.indexes...),
		fake:    append([]bool(nil), t.fake...),
		slices:  append([]Bound(nil), t.slices...),
		padding: append([]Pad(nil), t.padding...),
	}
}

// AddDim inserts a new physical axis, presented at logical position axis.
func (t Tracker) AddDim(axis int, dim symbolic.CompactExpr) Tracker {
	out := t.Clone()
	physical := len(out.dims)
	out.dims = append(out.dims, dim)
	out.fake = append(out.fake, false)
	out.slices = append(out.slices, unsetBound())
	out.padding = append(out.padding, zeroPad())

	idx := append([]int(nil), out.indexes[:axis]...)
	idx = append(idx, physical)
	idx = append(idx, out.indexes[axis:]...)
	out.indexes = idx
	return out
}

// Expand is AddDim followed by marking the new axis fake (broadcast).
func (t Tracker) Expand(axis int, dim symbolic.CompactExpr) Tracker {
	out := t.AddDim(axis, dim)
	out.fake[out.indexes[axis]] = true
	return out
}

// RemoveDim removes the logical axis, returning its dim. Every surviving
// index greater than the removed physical position is decremented so
// `indexes` remains a permutation of 0..len.
func (t Tracker) RemoveDim(axis int) (Tracker, symbolic.CompactExpr, error) {
	if axis < 0 || axis >= len(t.indexes) {
		return t, symbolic.CompactExpr{}, errors.Wrapf(cerr.ErrAxisOutOfRange, "remove_dim(%d), len=%d", axis, len(t.indexes))
	}

	out := t.Clone()
	physical := out.indexes[axis]
	out.indexes = append(out.indexes[:axis], out.indexes[axis+1:]...)
	for i, idx := range out.indexes {
		if idx > physical {
			out.indexes[i] = idx - 1
		}
	}

	removedDim := out.dims[physical]
	out.dims = append(out.dims[:physical], out.dims[physical+1:]...)
	out.fake = append(out.fake[:physical], out.fake[physical+1:]...)
	out.slices = append(out.slices[:physical], out.slices[physical+1:]...)
	out.padding = append(out.padding[:physical], out.padding[physical+1:]...)

	return out, removedDim, nil
}

// Permute reorders the presentation of axes according to axes, a
// permutation of 0..len where axes[k] names which current presentation
// position should appear at position k.
func (t Tracker) Permute(axes []int) Tracker {
	out := t.Clone()
	newIndexes := make([]int, len(axes))
	for k, a := range axes {
		newIndexes[k] = out.indexes[a]
	}
	out.indexes = newIndexes
	return out
}

func maxC(a, b symbolic.CompactExpr) symbolic.CompactExpr {
	if av, ok := a.IsConst(); ok {
		if bv, ok2 := b.IsConst(); ok2 {
			if av > bv {
				return a
			}
			return b
		}
	}
	return a.Max(b)
}

func minC(a, b symbolic.CompactExpr) symbolic.CompactExpr {
	if av, ok := a.IsConst(); ok {
		if bv, ok2 := b.IsConst(); ok2 {
			if av < bv {
				return a
			}
			return b
		}
	}
	return a.Min(b)
}

// Slice clamps each presented axis's window: lo' = max(lo, max(s, 0)),
// hi' = min(hi, max(e, 0)). Clamping is lossy but monotone. Like Pad, it is
// an error (ErrInvalidCompose) to slice an axis that already carries
// non-trivial padding: IndexExpression's physical-offset formula assumes
// at most one of padding/slicing is active per axis, and composing them in
// this order (pad then slice) is not supported any more than the reverse.
func (t Tracker) Slice(bounds []Bound) (Tracker, error) {
	out := t.Clone()
	for i, b := range bounds {
		phys := out.indexes[i]
		cur := out.slices[phys]
		pad := out.padding[phys]

		if nonZeroC(pad.Before) || nonZeroC(pad.After) {
			return t, errors.Wrapf(cerr.ErrInvalidCompose, "slice axis %d: already padded", i)
		}

		sClamped := maxC(b.Lo, symbolic.ConstC(0))
		eClamped := maxC(b.Hi, symbolic.ConstC(0))
		cur.Lo = maxC(cur.Lo, sClamped)
		cur.Hi = minC(cur.Hi, eClamped)
		out.slices[phys] = cur
	}
	return out, nil
}

func nonZeroC(e symbolic.CompactExpr) bool {
	if v, ok := e.IsConst(); ok {
		return v != 0
	}
	return true
}

func isUnsetHi(e symbolic.CompactExpr) bool {
	if v, ok := e.IsConst(); ok {
		return v == UnsetSliceHi
	}
	return false
}

// Pad adds to before/after on each axis. It is an error (ErrInvalidCompose)
// to pad an axis that already carries a non-trivial slice: composing
// padding and slicing on the same axis is not supported.
func (t Tracker) Pad(amounts []Pad) (Tracker, error) {
	out := t.Clone()
	for i, p := range amounts {
		phys := out.indexes[i]
		cur := out.slices[phys]

		sliced := nonZeroC(cur.Lo) || !isUnsetHi(cur.Hi)
		if sliced && (nonZeroC(p.Before) || nonZeroC(p.After)) {
			return t, errors.Wrapf(cerr.ErrInvalidCompose, "pad axis %d: already sliced", i)
		}

		pad := out.padding[phys]
		pad.Before = pad.Before.Add(maxC(p.Before, symbolic.ConstC(0)))
		pad.After = pad.After.Add(maxC(p.After, symbolic.ConstC(0)))
		out.padding[phys] = pad
	}
	return out, nil
}

// Realize replaces each presented dim with the supplied expression. Slice
// and padding state on the axis are left untouched; callers that realize a
// sliced/padded axis to a new size are responsible for re-deriving those
// windows themselves.
func (t Tracker) Realize(dims []symbolic.CompactExpr) Tracker {
	out := t.Clone()
	for i, idx := range out.indexes {
		out.dims[idx] = dims[i]
	}
	return out
}

// Contiguous produces a fresh tracker whose dims equal Shape() and whose
// other arrays are default (unpermuted, unfaked, unsliced, unpadded).
func (t Tracker) Contiguous() Tracker {
	sh := t.Shape()
	newDims := make([]symbolic.CompactExpr, len(sh))
	for k, e := range sh {
		newDims[k] = symbolic.FromExpr(e)
	}
	return New(newDims)
}

// IsContiguous reports whether indexes is the identity permutation and no
// axis is fake.
func (t Tracker) IsContiguous() bool {
	for i, idx := range t.indexes {
		if idx != i {
			return false
		}
	}
	for _, f := range t.fake {
		if f {
			return false
		}
	}
	return true
}

// IsSliced reports whether any axis carries a non-trivial slice window.
func (t Tracker) IsSliced() bool {
	for _, s := range t.slices {
		if nonZeroC(s.Lo) || !isUnsetHi(s.Hi) {
			return true
		}
	}
	return false
}

// IsPadded reports whether any axis carries non-zero padding.
func (t Tracker) IsPadded() bool {
	for _, p := range t.padding {
		if nonZeroC(p.Before) || nonZeroC(p.After) {
			return true
		}
	}
	return false
}

// Shape returns, for each presented axis, the logical post-pad, post-slice
// extent: min(dim + before + after, hi) - lo.
func (t Tracker) Shape() []symbolic.Expr {
	out := make([]symbolic.Expr, len(t.indexes))
	for k, idx := range t.indexes {
		d := t.dims[idx].Expr()
		pad := t.padding[idx]
		sl := t.slices[idx]
		sz := d.Add(pad.Before.Expr()).Add(pad.After.Expr())
		sz = sz.Min(sl.Hi.Expr())
		sz = sz.Sub(sl.Lo.Expr())
		out[k] = sz.Minimize()
	}
	return out
}

// unorderedStrides computes physical strides in original axis order with a
// running product that skips fake axes.
func (t Tracker) unorderedStrides() []symbolic.Expr {
	n := len(t.dims)
	strides := make([]symbolic.Expr, n)
	acc := symbolic.Const(1)
	for i := n - 1; i >= 0; i-- {
		strides[i] = acc
		if !t.fake[i] {
			acc = acc.Mul(t.dims[i].Expr())
		}
	}
	return strides
}

// Strides returns physical strides gathered into presentation order.
func (t Tracker) Strides() []symbolic.Expr {
	unordered := t.unorderedStrides()
	out := make([]symbolic.Expr, len(t.indexes))
	for k, idx := range t.indexes {
		out[k] = unordered[idx].Minimize()
	}
	return out
}

// NElements is the product of shape components; an empty tensor (any
// dimension evaluating to a constant 0) still reports 1.
func (t Tracker) NElements() symbolic.Expr {
	sh := t.Shape()
	acc := symbolic.Const(1)
	for _, s := range sh {
		acc = acc.Mul(s)
	}
	acc = acc.Minimize()
	if v, ok := acc.IsConst(); ok && v == 0 {
		return symbolic.Const(1)
	}
	return acc
}

// NPhysicalElements is the product of dims across non-fake axes only; as
// with NElements, a zero product collapses to 1.
func (t Tracker) NPhysicalElements() symbolic.Expr {
	acc := symbolic.Const(1)
	for i, d := range t.dims {
		if t.fake[i] {
			continue
		}
		acc = acc.Mul(d.Expr())
	}
	acc = acc.Minimize()
	if v, ok := acc.IsConst(); ok && v == 0 {
		return symbolic.Const(1)
	}
	return acc
}

// IndexExpression synthesizes a single expression over logical index
// variable 'z' returning the physical offset. The fast path short-circuits
// when the tracker is contiguous, unsliced, and unpadded (returns z
// unchanged); otherwise it walks presentation order in reverse, folding in
// each axis's stride, slice bound, and padding.
func (t Tracker) IndexExpression() symbolic.Expr {
	if t.IsContiguous() && !t.IsSliced() && !t.IsPadded() {
		return symbolic.Var('z')
	}

	strides := t.unorderedStrides()

	ret := symbolic.Const(0)
	acc := symbolic.Const(1)
	z := symbolic.Var('z')

	for k := len(t.indexes) - 1; k >= 0; k-- {
		idx := t.indexes[k]
		d := t.dims[idx].Expr()
		stride := strides[idx]
		pad := t.padding[idx]
		sl := t.slices[idx]
		fake := t.fake[idx]

		logicalSh := d.Add(pad.Before.Expr()).Add(pad.After.Expr()).Min(sl.Hi.Expr()).Sub(sl.Lo.Expr())

		if !fake {
			dimInd := z.Div(acc).Mod(logicalSh)
			offsetBase := pad.Before.Expr()
			slMinusPad := sl.Lo.Expr().Sub(minExpr(pad.Before.Expr(), sl.Lo.Expr()))
			term := dimInd.Sub(offsetBase).Add(slMinusPad).Mul(stride)
			ret = ret.Add(term)
		}
		acc = acc.Mul(logicalSh)
	}

	return ret.Minimize()
}

// ValidExpression synthesizes a 0/1 expression over 'z' that is 1 iff z
// refers to a real, in-bounds element.
func (t Tracker) ValidExpression() symbolic.Expr {
	if t.IsContiguous() && !t.IsSliced() && !t.IsPadded() {
		return symbolic.Const(1)
	}

	ret := symbolic.Const(1)
	acc := symbolic.Const(1)
	z := symbolic.Var('z')

	for k := len(t.indexes) - 1; k >= 0; k-- {
		idx := t.indexes[k]
		d := t.dims[idx].Expr()
		pad := t.padding[idx]
		sl := t.slices[idx]
		fake := t.fake[idx]

		logicalSh := d.Add(pad.Before.Expr()).Add(pad.After.Expr()).Min(sl.Hi.Expr()).Sub(sl.Lo.Expr())

		if !fake {
			dimInd := z.Div(acc).Mod(logicalSh)
			lower := pad.Before.Expr().Sub(minExpr(sl.Lo.Expr(), pad.Before.Expr()))
			ret = ret.And(dimInd.Gte(lower))
			upper := d.Add(pad.Before.Expr()).Min(sl.Hi.Expr())
			ret = ret.And(dimInd.Lt(upper))
		}
		acc = acc.Mul(logicalSh)
	}

	return ret.Minimize()
}

func minExpr(a, b symbolic.Expr) symbolic.Expr {
	if av, ok := a.IsConst(); ok {
		if bv, ok2 := b.IsConst(); ok2 {
			if av < bv {
				return a
			}
			return b
		}
	}
	return a.Min(b)
}

// ResolveGlobalDynDims substitutes variable names for concrete integers
// throughout dims, slices, and padding.
func (t Tracker) ResolveGlobalDynDims(env map[byte]int) (Tracker, error) {
	out := t.Clone()
	for i, d := range out.dims {
		v, err := d.Eval(env)
		if err != nil {
			return t, err
		}
		out.dims[i] = symbolic.ConstC(v)
	}
	for i, s := range out.slices {
		lo, err := s.Lo.Eval(env)
		if err != nil {
			return t, err
		}
		hi, err := s.Hi.Eval(env)
		if err != nil {
			return t, err
		}
		out.slices[i] = Bound{Lo: symbolic.ConstC(lo), Hi: symbolic.ConstC(hi)}
	}
	for i, p := range out.padding {
		before, err := p.Before.Eval(env)
		if err != nil {
			return t, err
		}
		after, err := p.After.Eval(env)
		if err != nil {
			return t, err
		}
		out.padding[i] = Pad{Before: symbolic.ConstC(before), After: symbolic.ConstC(after)}
	}
	return out, nil
}

// ResolveLocalDynDims reconciles unknown dims between two trackers that
// must broadcast against each other (e.g. a dynamic batch axis known on
// one operand but not the other), ported from the reference
// resolve_local_dyn_dims. If defaultToOne is set, dims unresolved on both
// sides fall back to a concrete 1.
func ResolveLocalDynDims(a, b *Tracker, defaultToOne bool) {
	n := len(a.indexes)
	for i := 0; i < n; i++ {
		ai, bi := a.indexes[i], b.indexes[i]
		if _, ok := a.dims[ai].IsConst(); !ok {
			a.dims[ai] = b.dims[bi]
			if _, ok := a.dims[ai].IsConst(); !ok && defaultToOne {
				a.dims[ai] = symbolic.ConstC(1)
			}
		}
	}
	for i := 0; i < n; i++ {
		ai, bi := a.indexes[i], b.indexes[i]
		if _, ok := b.dims[bi].IsConst(); !ok {
			b.dims[bi] = a.dims[ai]
			if _, ok := b.dims[bi].IsConst(); !ok && defaultToOne {
				b.dims[bi] = symbolic.ConstC(1)
			}
		}
	}
}

// Dims exposes the underlying physical dims in physical-axis order (index
// i is the dim of physical axis i, not presentation position i). Used by
// selector shape matching, which inspects per-input physical axes.
func (t Tracker) Dims() []symbolic.CompactExpr { return append([]symbolic.CompactExpr(nil), t.dims...) }

// Fakes exposes the fake mask in physical-axis order.
func (t Tracker) Fakes() []bool { return append([]bool(nil), t.fake...) }

// Indexes exposes the presentation permutation.
func (t Tracker) Indexes() []int { return append([]int(nil), t.indexes...) }
