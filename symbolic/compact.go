package symbolic

import (
	"github.com/pkg/errors"

	"github.com/csotherden/luminal/cerr"
)

// compactCap bounds the number of RPN terms a CompactExpr can hold inline.
// It is a term budget, not an axis-count budget — shape.MaxRank separately
// documents a soft (unenforced) rank bound of 6.
const compactCap = 32

// TermKind tags one entry of a CompactExpr's reverse-Polish term stack.
type TermKind uint8

const (
	TermNum TermKind = iota
	TermVar
	TermOp
)

// Term is one RPN stack entry: a literal, a variable reference, or an
// operator consuming the two values below it on the stack.
type Term struct {
	Kind TermKind
	Num  int
	Var  byte
	Op   Op
}

// CompactExpr is a small array-backed postfix (reverse-Polish) expression,
// used inline by shape.Tracker for per-axis dims, slice bounds, and padding
// amounts, where expressions are typically a handful of terms (a variable,
// maybe one or two constants and an add/mul). Unlike Expr, a CompactExpr's
// zero value (empty term list) is not meaningful on its own; use ConstC or
// VarC to build one.
type CompactExpr struct {
	terms [compactCap]Term
	n     int
}

func (c CompactExpr) push(t Term) CompactExpr {
	if c.n >= compactCap {
		// Term budget exhausted: fall back to representing the expression
		// via its already-accumulated terms reduced through the heap
		// evaluator first. In practice axis expressions never approach
		// this bound; this is a last-resort safety valve.
		c = FromExpr(c.Expr().Minimize())
	}
	c.terms[c.n] = t
	c.n++
	return c
}

// ConstC builds a compact literal.
func ConstC(v int) CompactExpr {
	var c CompactExpr
	return c.push(Term{Kind: TermNum, Num: v})
}

// VarC builds a compact single-character variable reference.
func VarC(name byte) CompactExpr {
	var c CompactExpr
	return c.push(Term{Kind: TermVar, Var: name})
}

func (c CompactExpr) combine(op Op, o CompactExpr) CompactExpr {
	var out CompactExpr
	for i := 0; i < c.n; i++ {
		out = out.push(c.terms[i])
	}
	for i := 0; i < o.n; i++ {
		out = out.push(o.terms[i])
	}
	return out.push(Term{Kind: TermOp, Op: op})
}

func (c CompactExpr) Add(o CompactExpr) CompactExpr { return c.combine(Add, o) }
func (c CompactExpr) Sub(o CompactExpr) CompactExpr { return c.combine(Sub, o) }
func (c CompactExpr) Mul(o CompactExpr) CompactExpr { return c.combine(Mul, o) }
func (c CompactExpr) Div(o CompactExpr) CompactExpr { return c.combine(Div, o) }
func (c CompactExpr) Mod(o CompactExpr) CompactExpr { return c.combine(Mod, o) }
func (c CompactExpr) Min(o CompactExpr) CompactExpr { return c.combine(Min, o) }
func (c CompactExpr) Max(o CompactExpr) CompactExpr { return c.combine(Max, o) }
func (c CompactExpr) Gte(o CompactExpr) CompactExpr { return c.combine(Gte, o) }
func (c CompactExpr) Lt(o CompactExpr) CompactExpr  { return c.combine(Lt, o) }

// Eval evaluates the RPN term stack directly, without building a tree.
func (c CompactExpr) Eval(env map[byte]int) (int, error) {
	var stack [compactCap]int
	sp := 0
	for i := 0; i < c.n; i++ {
		t := c.terms[i]
		switch t.Kind {
		case TermNum:
			stack[sp] = t.Num
			sp++
		case TermVar:
			v, ok := env[t.Var]
			if !ok {
				return 0, errors.Wrapf(cerr.ErrUnresolvedVariable, "variable %q", string(t.Var))
			}
			stack[sp] = v
			sp++
		case TermOp:
			b := stack[sp-1]
			a := stack[sp-2]
			sp -= 2
			stack[sp] = applyOp(t.Op, a, b)
			sp++
		}
	}
	return stack[sp-1], nil
}

// IsConst reports whether c reduces to a single literal term.
func (c CompactExpr) IsConst() (int, bool) {
	if c.n == 1 && c.terms[0].Kind == TermNum {
		return c.terms[0].Num, true
	}
	return 0, false
}

// Expr promotes a CompactExpr to the heap Expr tree representation, by
// replaying its RPN terms onto an operand stack of Exprs.
func (c CompactExpr) Expr() Expr {
	var stack [compactCap]Expr
	sp := 0
	for i := 0; i < c.n; i++ {
		t := c.terms[i]
		switch t.Kind {
		case TermNum:
			stack[sp] = Const(t.Num)
			sp++
		case TermVar:
			stack[sp] = Var(t.Var)
			sp++
		case TermOp:
			b := stack[sp-1]
			a := stack[sp-2]
			sp -= 2
			stack[sp] = bin(t.Op, a, b)
			sp++
		}
	}
	if sp == 0 {
		return Const(0)
	}
	return stack[sp-1]
}

// FromExpr lowers a heap Expr tree to its compact RPN form, via a
// post-order traversal that emits terms in evaluation order.
func FromExpr(e Expr) CompactExpr {
	var out CompactExpr
	emit(e.n, &out)
	return out
}

func emit(n *node, out *CompactExpr) {
	switch n.kind {
	case kindConst:
		*out = out.push(Term{Kind: TermNum, Num: n.val})
	case kindVar:
		*out = out.push(Term{Kind: TermVar, Var: n.name})
	default:
		emit(n.l, out)
		emit(n.r, out)
		*out = out.push(Term{Kind: TermOp, Op: n.op})
	}
}

// Minimize routes through the heap representation, where all of the
// tree-shape identities (constant folding, associative flattening, etc.)
// are implemented, then lowers the result back to compact form.
func (c CompactExpr) Minimize() CompactExpr {
	return FromExpr(c.Expr().Minimize())
}

// Equal compares two compact expressions structurally after minimization.
func (c CompactExpr) Equal(o CompactExpr) bool {
	return c.Expr().Equal(o.Expr())
}

// String renders c via its heap form for diagnostics.
func (c CompactExpr) String() string {
	return c.Expr().String()
}
