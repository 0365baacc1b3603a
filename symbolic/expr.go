// Package symbolic implements an immutable arithmetic expression tree over
// integer literals and single-character named variables. It provides two
// representations: the array-backed CompactExpr (see
// compact.go), used inline by shape.Tracker for per-axis dims/slices/
// padding, and the heap-allocated Expr tree used for the larger expressions
// synthesized by Tracker.IndexExpression/ValidExpression.
package symbolic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/csotherden/luminal/cerr"
)

// Op is an arithmetic or logical operator over two operands.
type Op uint8

const (
	Add Op = iota
	Sub
	Mul
	Div
	Mod
	Min
	Max
	Gte
	Lt
	And
	Or
)

func (o Op) String() string {
	switch o {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	case Mod:
		return "%"
	case Min:
		return "min"
	case Max:
		return "max"
	case Gte:
		return ">="
	case Lt:
		return "<"
	case And:
		return "&"
	case Or:
		return "|"
	default:
		return "?"
	}
}

type kind uint8

const (
	kindConst kind = iota
	kindVar
	kindOp
)

// node is the immutable tree node backing Expr. Expr never mutates a node
// in place; every arithmetic method builds a fresh node.
type node struct {
	kind kind
	op   Op
	val  int
	name byte
	l, r *node
}

// Expr is a heap-allocated, immutable expression tree. The zero value is
// not a valid Expr; use Const or Var to build one.
type Expr struct {
	n *node
}

// Const builds a literal integer expression.
func Const(v int) Expr { return Expr{&node{kind: kindConst, val: v}} }

// Var builds a single-character named variable expression. name must be in
// 'a'..'z'; this is not enforced at construction (callers are internal),
// but Eval will fail with ErrUnresolvedVariable if it's never bound.
func Var(name byte) Expr { return Expr{&node{kind: kindVar, name: name}} }

func bin(op Op, a, b Expr) Expr {
	return Expr{&node{kind: kindOp, op: op, l: a.n, r: b.n}}
}

func (e Expr) Add(o Expr) Expr { return bin(Add, e, o) }
func (e Expr) Sub(o Expr) Expr { return bin(Sub, e, o) }
func (e Expr) Mul(o Expr) Expr { return bin(Mul, e, o) }
func (e Expr) Div(o Expr) Expr { return bin(Div, e, o) }
func (e Expr) Mod(o Expr) Expr { return bin(Mod, e, o) }
func (e Expr) Min(o Expr) Expr { return bin(Min, e, o) }
func (e Expr) Max(o Expr) Expr { return bin(Max, e, o) }
func (e Expr) Gte(o Expr) Expr { return bin(Gte, e, o) }
func (e Expr) Lt(o Expr) Expr  { return bin(Lt, e, o) }
func (e Expr) And(o Expr) Expr { return bin(And, e, o) }
func (e Expr) Or(o Expr) Expr  { return bin(Or, e, o) }

// IsConst reports whether e is a literal, returning its value.
func (e Expr) IsConst() (int, bool) {
	if e.n.kind == kindConst {
		return e.n.val, true
	}
	return 0, false
}

// Valid reports whether e wraps a constructed node (guards against the zero
// value slipping through a default-initialized struct field).
func (e Expr) Valid() bool { return e.n != nil }

func applyOp(op Op, a, b int) int {
	switch op {
	case Add:
		return a + b
	case Sub:
		return a - b
	case Mul:
		return a * b
	case Div:
		if b == 0 {
			return 0
		}
		return a / b
	case Mod:
		if b == 0 {
			return 0
		}
		return a % b
	case Min:
		if a < b {
			return a
		}
		return b
	case Max:
		if a > b {
			return a
		}
		return b
	case Gte:
		if a >= b {
			return 1
		}
		return 0
	case Lt:
		if a < b {
			return 1
		}
		return 0
	case And:
		if a != 0 && b != 0 {
			return 1
		}
		return 0
	case Or:
		if a != 0 || b != 0 {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Eval evaluates e under env, mapping variable names to integers. It fails
// with cerr.ErrUnresolvedVariable if a referenced variable is unbound.
func (e Expr) Eval(env map[byte]int) (int, error) {
	return evalNode(e.n, env)
}

func evalNode(n *node, env map[byte]int) (int, error) {
	switch n.kind {
	case kindConst:
		return n.val, nil
	case kindVar:
		v, ok := env[n.name]
		if !ok {
			return 0, errors.Wrapf(cerr.ErrUnresolvedVariable, "variable %q", string(n.name))
		}
		return v, nil
	default: // kindOp
		a, err := evalNode(n.l, env)
		if err != nil {
			return 0, err
		}
		b, err := evalNode(n.r, env)
		if err != nil {
			return 0, err
		}
		return applyOp(n.op, a, b), nil
	}
}

// String renders e in ordinary infix form for diagnostics.
func (e Expr) String() string {
	var sb strings.Builder
	writeNode(&sb, e.n)
	return sb.String()
}

func writeNode(sb *strings.Builder, n *node) {
	switch n.kind {
	case kindConst:
		fmt.Fprintf(sb, "%d", n.val)
	case kindVar:
		sb.WriteByte(n.name)
	default:
		switch n.op {
		case Min, Max:
			fmt.Fprintf(sb, "%s(", n.op)
			writeNode(sb, n.l)
			sb.WriteString(", ")
			writeNode(sb, n.r)
			sb.WriteString(")")
		default:
			sb.WriteString("(")
			writeNode(sb, n.l)
			fmt.Fprintf(sb, " %s ", n.op)
			writeNode(sb, n.r)
			sb.WriteString(")")
		}
	}
}

// Equal reports whether e and o are structurally equivalent after
// independently minimizing both sides.
func (e Expr) Equal(o Expr) bool {
	return e.Minimize().String() == o.Minimize().String()
}

// structEqual reports plain syntactic equality (no minimization), used by
// Minimize's own identities (x - x, min(x, x)) to detect shared subtrees
// without paying for a recursive minimize of each side first.
func structEqual(a, b *node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.kind != b.kind {
		return false
	}
	switch a.kind {
	case kindConst:
		return a.val == b.val
	case kindVar:
		return a.name == b.name
	default:
		return a.op == b.op && structEqual(a.l, b.l) && structEqual(a.r, b.r)
	}
}

// Minimize returns a structurally simpler but semantically equivalent
// expression. It performs, bottom-up: constant folding; the identities
// x+0, x*1, x*0, x-x, min(x,x), max(x,x); mod-idempotence ((x mod n) mod n
// == x mod n, our conservative stand-in for "x mod n where x < n is
// statically provable" absent interval tracking); and flattening of
// associative +/* chains into a canonically-ordered left-leaning spine so
// that reorderings compare equal after minimization.
func (e Expr) Minimize() Expr {
	return Expr{minimizeNode(e.n)}
}

func minimizeNode(n *node) *node {
	if n.kind != kindOp {
		return n
	}

	switch n.op {
	case Add, Mul:
		return minimizeAssoc(n.op, n)
	}

	l := minimizeNode(n.l)
	r := minimizeNode(n.r)

	if l.kind == kindConst && r.kind == kindConst {
		return &node{kind: kindConst, val: applyOp(n.op, l.val, r.val)}
	}

	switch n.op {
	case Sub:
		if structEqual(l, r) {
			return &node{kind: kindConst, val: 0}
		}
		if r.kind == kindConst && r.val == 0 {
			return l
		}
	case Div:
		if r.kind == kindConst && r.val == 1 {
			return l
		}
	case Mod:
		if r.kind == kindConst && r.val == 1 {
			return &node{kind: kindConst, val: 0}
		}
		// (x mod n) mod n == x mod n: our provable-statically-smaller case.
		if l.kind == kindOp && l.op == Mod && structEqual(l.r, r) {
			return l
		}
	case Min:
		if structEqual(l, r) {
			return l
		}
	case Max:
		if structEqual(l, r) {
			return l
		}
	}

	if l == n.l && r == n.r {
		return n
	}
	return &node{kind: kindOp, op: n.op, l: l, r: r}
}

// minimizeAssoc flattens an Add/Mul chain, folds all constant leaves into
// one, and rebuilds a canonically ordered left-leaning spine so that
// a+b+c and c+a+b minimize to the same tree.
func minimizeAssoc(op Op, n *node) *node {
	var leaves []*node
	flatten(op, n, &leaves)

	for i, l := range leaves {
		leaves[i] = minimizeNode(l)
	}

	identity := 0
	if op == Mul {
		identity = 1
	}

	constVal := identity
	var rest []*node
	for _, l := range leaves {
		if l.kind == kindConst {
			constVal = applyOp(op, constVal, l.val)
			continue
		}
		rest = append(rest, l)
	}

	// x*0 == 0 regardless of the other operands.
	if op == Mul && constVal == 0 {
		return &node{kind: kindConst, val: 0}
	}

	sort.Slice(rest, func(i, j int) bool {
		return canonicalKey(rest[i]) < canonicalKey(rest[j])
	})

	var operands []*node
	if constVal != identity || len(rest) == 0 {
		operands = append(operands, &node{kind: kindConst, val: constVal})
	}
	operands = append(operands, rest...)

	if len(operands) == 1 {
		return operands[0]
	}

	acc := operands[0]
	for _, o := range operands[1:] {
		acc = &node{kind: kindOp, op: op, l: acc, r: o}
	}
	return acc
}

func flatten(op Op, n *node, out *[]*node) {
	if n.kind == kindOp && n.op == op {
		flatten(op, n.l, out)
		flatten(op, n.r, out)
		return
	}
	*out = append(*out, n)
}

func canonicalKey(n *node) string {
	var sb strings.Builder
	writeNode(&sb, n)
	return sb.String()
}
