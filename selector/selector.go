// Package selector implements a declarative subgraph pattern language: node
// patterns constrained by operator type, per-input shape and fake-axis
// signatures, and an arbitrary predicate, composed via edge constraints and
// matched against a graph.Graph through backtracking search.
package selector

import (
	"iter"
	"sort"

	"github.com/pkg/errors"

	"github.com/csotherden/luminal/cerr"
	"github.com/csotherden/luminal/graph"
	"github.com/csotherden/luminal/symbolic"
)

// NodePattern describes one vertex of the pattern graph. Zero value
// matches any node (no type filter, no shape/fake constraints, no
// predicate).
type NodePattern struct {
	id int

	typeOf  func(op graph.Operator) bool
	shapes  [][]Dim
	fakes   [][]bool
	checkFn func(op graph.Operator, b Bindings) bool
	ptr     *int64
}

// OfType constrains np to operators of concrete type T. Go methods can't
// carry their own type parameters, so this is a standalone generic
// function rather than a chained builder call: OfType[*ops.Mul](p).
func OfType[T graph.Operator](np *NodePattern) *NodePattern {
	np.typeOf = func(op graph.Operator) bool {
		_, ok := op.(T)
		return ok
	}
	return np
}

// Shapes constrains each input's shape signature. patterns[i] is matched
// against the i-th input's tracker dims (in order); len(patterns) must
// equal the node's input count for a candidate to match.
func (np *NodePattern) Shapes(patterns [][]Dim) *NodePattern {
	np.shapes = patterns
	return np
}

// Fakes constrains each input's fake-axis mask the same way Shapes
// constrains dims.
func (np *NodePattern) Fakes(masks [][]bool) *NodePattern {
	np.fakes = masks
	return np
}

// Check attaches an arbitrary predicate over the candidate operator and
// the variable bindings accumulated so far in this match attempt.
func (np *NodePattern) Check(pred func(op graph.Operator, b Bindings) bool) *NodePattern {
	np.checkFn = pred
	return np
}

// Ptr records the matched node id into slot once a match completes.
func (np *NodePattern) Ptr(slot *int64) *NodePattern {
	np.ptr = slot
	return np
}

type edgeConstraint struct {
	src, dst int
}

// Selector is a tree (here: a small DAG) of node patterns joined by edge
// constraints.
type Selector struct {
	patterns []*NodePattern
	edges    []edgeConstraint
}

// New returns an empty selector.
func New() *Selector {
	return &Selector{}
}

// Op allocates a fresh node pattern.
func (s *Selector) Op() *NodePattern {
	np := &NodePattern{id: len(s.patterns)}
	s.patterns = append(s.patterns, np)
	return np
}

// Edge declares that src's output feeds dst's input, i.e. dst's matched
// node must directly consume src's matched node.
func (s *Selector) Edge(src, dst *NodePattern) *Selector {
	s.edges = append(s.edges, edgeConstraint{src: src.id, dst: dst.id})
	return s
}

// Validate checks s for the two classes of malformed pattern that are
// detectable without a graph to match against: edge constraints pointing at
// pattern ids this selector never declared (e.g. a NodePattern built by a
// different Selector passed into Edge by mistake), and per-pattern
// Shapes/Fakes descriptors whose arities disagree with each other. Both are
// construction bugs rather than ordinary non-matches, so they are reported
// as cerr.ErrPatternMalformed instead of Search silently yielding nothing.
//
// Run calls Validate before searching, so a malformed selector aborts
// before the graph it would have been matched against is ever touched.
func (s *Selector) Validate() error {
	for _, ec := range s.edges {
		if ec.src < 0 || ec.src >= len(s.patterns) {
			return errors.Wrapf(cerr.ErrPatternMalformed, "edge references undeclared pattern id %d", ec.src)
		}
		if ec.dst < 0 || ec.dst >= len(s.patterns) {
			return errors.Wrapf(cerr.ErrPatternMalformed, "edge references undeclared pattern id %d", ec.dst)
		}
		if ec.src == ec.dst {
			return errors.Wrapf(cerr.ErrPatternMalformed, "edge from pattern %d to itself", ec.src)
		}
	}

	for i, np := range s.patterns {
		if np.shapes != nil && np.fakes != nil && len(np.shapes) != len(np.fakes) {
			return errors.Wrapf(cerr.ErrPatternMalformed,
				"pattern %d: %d Shapes operands but %d Fakes operands", i, len(np.shapes), len(np.fakes))
		}
		if np.shapes == nil || np.fakes == nil {
			continue
		}
		for j := range np.shapes {
			if len(np.shapes[j]) != len(np.fakes[j]) {
				return errors.Wrapf(cerr.ErrPatternMalformed,
					"pattern %d operand %d: %d Shapes axes but %d Fakes axes", i, j, len(np.shapes[j]), len(np.fakes[j]))
			}
		}
	}

	return nil
}

// Bindings is one successful match: the pattern-vertex-id -> node-id
// assignment, plus the resolved value of every unknown Dim variable in that
// match.
type Bindings struct {
	Nodes map[int]int64
	Vars  map[byte]symbolic.CompactExpr
}

func cloneVars(v map[byte]symbolic.CompactExpr) map[byte]symbolic.CompactExpr {
	out := make(map[byte]symbolic.CompactExpr, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// matchShapes checks a candidate node's ordered input sources against a
// pattern's shape/fake constraints, returning an updated variable
// assignment on success. nil shapes/fakes mean "unconstrained".
func matchShapes(shapes [][]Dim, fakes [][]bool, sources []graph.Source, vars map[byte]symbolic.CompactExpr) (map[byte]symbolic.CompactExpr, bool) {
	if shapes != nil && len(shapes) != len(sources) {
		return nil, false
	}
	if fakes != nil && len(fakes) != len(sources) {
		return nil, false
	}

	out := cloneVars(vars)

	for i, src := range sources {
		tr := src.Tracker

		if shapes != nil {
			dims := tr.Dims()
			pat := shapes[i]
			if len(pat) != len(dims) {
				return nil, false
			}
			for j, d := range pat {
				switch d.Kind {
				case DimKnownKind:
					if !dims[j].Equal(d.Known) {
						return nil, false
					}
				case DimUnknownKind:
					if existing, ok := out[d.Symbol]; ok {
						if !dims[j].Equal(existing) {
							return nil, false
						}
					} else {
						out[d.Symbol] = dims[j]
					}
				}
			}
		}

		if fakes != nil {
			want := fakes[i]
			actual := tr.Fakes()
			if len(want) != len(actual) {
				return nil, false
			}
			for j := range want {
				if actual[j] != want[j] {
					return nil, false
				}
			}
		}
	}

	return out, true
}

// Search enumerates every match of s against g as a Go 1.23 range-over-
// func iterator. Nodes are tried in ascending node-id order at every
// backtracking level, so matches are emitted in a deterministic order
// driven by node id; stopping the range early (e.g. `for b := range
// sel.Search(g) { break }`) halts the backtracking search immediately
// rather than exhausting it.
//
// As a side effect of yielding a match, every pattern's Ptr slot (if set)
// is written with that match's assigned node id.
func (s *Selector) Search(g *graph.Graph) iter.Seq[Bindings] {
	return func(yield func(Bindings) bool) {
		nodes := g.Nodes()
		sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

		used := make(map[int64]bool, len(nodes))
		assign := make([]int64, len(s.patterns))

		var backtrack func(i int, vars map[byte]symbolic.CompactExpr) bool
		backtrack = func(i int, vars map[byte]symbolic.CompactExpr) bool {
			if i == len(s.patterns) {
				b := Bindings{Nodes: make(map[int]int64, len(assign)), Vars: vars}
				for idx, nid := range assign {
					b.Nodes[idx] = nid
				}
				for idx, p := range s.patterns {
					if p.ptr != nil {
						*p.ptr = assign[idx]
					}
				}
				return !yield(b)
			}

			pat := s.patterns[i]
			for _, nid := range nodes {
				if used[nid] {
					continue
				}
				op, ok := g.NodeWeight(nid)
				if !ok {
					continue
				}
				if pat.typeOf != nil && !pat.typeOf(op) {
					continue
				}

				edgesOK := true
				for _, ec := range s.edges {
					if ec.dst == i && ec.src < i && !g.HasDirectEdge(assign[ec.src], nid) {
						edgesOK = false
						break
					}
					if ec.src == i && ec.dst < i && !g.HasDirectEdge(nid, assign[ec.dst]) {
						edgesOK = false
						break
					}
				}
				if !edgesOK {
					continue
				}

				newVars, ok := matchShapes(pat.shapes, pat.fakes, g.GetSources(nid), vars)
				if !ok {
					continue
				}

				if pat.checkFn != nil && !pat.checkFn(op, Bindings{Vars: newVars}) {
					continue
				}

				used[nid] = true
				assign[i] = nid
				stop := backtrack(i+1, newVars)
				used[nid] = false
				if stop {
					return true
				}
			}
			return false
		}

		backtrack(0, map[byte]symbolic.CompactExpr{})
	}
}
