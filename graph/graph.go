// Package graph holds the computation graph container: a multigraph of
// Operator-weighted nodes connected by shape-tracker-annotated data
// dependencies, plus the node/edge bookkeeping (pinning, id remapping) that
// the rewrite engine needs to survive restructuring a graph out from under
// itself mid-pass.
package graph

import (
	"sort"

	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/multi"

	"github.com/csotherden/luminal/shape"
)

// Graph is the container: node/edge topology lives in an embedded
// multi.DirectedGraph (stable int64 ids, parallel edges between the same
// pair of nodes for multi-input operators that happen to read the same
// producer twice), Operator weights and bookkeeping sets live alongside it.
// There is no mutex: the core is single-threaded and synchronous, unlike
// the mutex-guarded graph containers elsewhere in the ecosystem.
type Graph struct {
	topo    *multi.DirectedGraph
	weights map[int64]Operator

	// NoDelete pins nodes (typically graph inputs/outputs) the rewrite
	// engine must never remove, even when a pass would otherwise fold
	// them away.
	NoDelete map[int64]struct{}

	// ToRetrieve marks nodes whose Tensor output the caller still wants
	// after compilation; rewrites that would delete one of these must
	// first call MoveReferences to carry the marker onto its replacement.
	ToRetrieve map[int64]struct{}

	// IDRemap records id -> id substitutions left behind by rewrites that
	// replaced a node; Resolve follows the chain to a fixed point so
	// stale references recorded before a multi-step rewrite still land
	// on the right node.
	IDRemap map[int64]int64
}

// NewGraph returns an empty graph container.
func NewGraph() *Graph {
	return &Graph{
		topo:       multi.NewDirectedGraph(),
		weights:    make(map[int64]Operator),
		NoDelete:   make(map[int64]struct{}),
		ToRetrieve: make(map[int64]struct{}),
		IDRemap:    make(map[int64]int64),
	}
}

// Source describes one resolved input to a node: the producer node id and
// the shape tracker the consumer reads that producer's output through.
type Source struct {
	Node    int64
	OutIdx  int
	Tracker shape.Tracker
}

// OpBuilder accumulates a new node's inputs before Finish commits it to
// the graph. Mirrors the reference builder's add_op().input(...).finish()
// chain.
type OpBuilder struct {
	g      *Graph
	op     Operator
	inputs []pendingInput
}

type pendingInput struct {
	src    int64
	outIdx int
	tr     shape.Tracker
}

// AddOp begins constructing a new node wrapping op.
func (g *Graph) AddOp(op Operator) *OpBuilder {
	return &OpBuilder{g: g, op: op}
}

// Input appends a dependency on the outIdx'th output of src, viewed
// through tr. Inputs are ordered: the position of this call among the
// builder's Input calls is the resulting node's input index.
func (b *OpBuilder) Input(src int64, outIdx int, tr shape.Tracker) *OpBuilder {
	b.inputs = append(b.inputs, pendingInput{src: src, outIdx: outIdx, tr: tr})
	return b
}

// Finish commits the node and its input edges, returning the new node id.
func (b *OpBuilder) Finish() int64 {
	n := b.g.topo.NewNode()
	b.g.topo.AddNode(n)
	id := n.ID()
	b.g.weights[id] = b.op

	for inIdx, in := range b.inputs {
		src := b.g.topo.Node(in.src)
		if src == nil {
			continue
		}
		line := b.g.topo.NewLine(src, n)
		b.g.topo.SetLine(&opEdge{
			from:    src,
			to:      n,
			id:      line.ID(),
			outIdx:  in.outIdx,
			inIdx:   inIdx,
			tracker: in.tr,
		})
	}
	return id
}

// incomingEdges returns every opEdge terminating at node, unsorted.
func (g *Graph) incomingEdges(node int64) []*opEdge {
	to := g.topo.Node(node)
	if to == nil {
		return nil
	}
	preds := g.topo.To(node)
	var edges []*opEdge
	for preds.Next() {
		from := preds.Node()
		lines := g.topo.Lines(from.ID(), node)
		for lines.Next() {
			if oe, ok := lines.Line().(*opEdge); ok {
				edges = append(edges, oe)
			}
		}
	}
	return edges
}

// GetSources returns node's resolved inputs in input-index order.
func (g *Graph) GetSources(node int64) []Source {
	edges := g.incomingEdges(node)
	sort.Slice(edges, func(i, j int) bool { return edges[i].inIdx < edges[j].inIdx })
	out := make([]Source, len(edges))
	for i, e := range edges {
		out[i] = Source{Node: e.from.ID(), OutIdx: e.outIdx, Tracker: e.tracker}
	}
	return out
}

// NodeWeight returns the Operator wired to node.
func (g *Graph) NodeWeight(node int64) (Operator, bool) {
	op, ok := g.weights[node]
	return op, ok
}

// SetWeight replaces the Operator wired to node. Most Operator
// implementations are pointer types, so in-place mutation of fields on the
// value already returned by NodeWeight works without ever calling this;
// SetWeight exists for the wholesale-replacement case (e.g. fusing several
// nodes into one new operator).
func (g *Graph) SetWeight(node int64, op Operator) {
	g.weights[node] = op
}

// Nodes returns every node id currently in the graph in no particular
// order.
func (g *Graph) Nodes() []int64 {
	it := g.topo.Nodes()
	out := make([]int64, 0, it.Len())
	for it.Next() {
		out = append(out, it.Node().ID())
	}
	return out
}

// RemoveNode deletes node and every edge touching it, along with its
// bookkeeping entries. Callers are responsible for having already moved
// any NoDelete/ToRetrieve marker or outstanding IDRemap target off of node
// via MoveReferences before removing it.
func (g *Graph) RemoveNode(node int64) {
	g.topo.RemoveNode(node)
	delete(g.weights, node)
	delete(g.NoDelete, node)
	delete(g.ToRetrieve, node)
}

// MoveOutgoingEdge re-parents every edge leaving src so it leaves dst
// instead, preserving each edge's outIdx/inIdx/tracker payload. Used when
// a rewrite replaces src with dst and every downstream consumer needs to
// keep reading from the replacement.
func (g *Graph) MoveOutgoingEdge(src, dst int64) {
	srcNode := g.topo.Node(src)
	dstNode := g.topo.Node(dst)
	if srcNode == nil || dstNode == nil {
		return
	}

	succs := g.topo.From(src)
	var edges []*opEdge
	for succs.Next() {
		to := succs.Node()
		lines := g.topo.Lines(src, to.ID())
		for lines.Next() {
			if oe, ok := lines.Line().(*opEdge); ok {
				edges = append(edges, oe)
			}
		}
	}

	for _, oe := range edges {
		g.topo.RemoveLine(oe.from.ID(), oe.to.ID(), oe.id)
		newLine := g.topo.NewLine(dstNode, oe.to)
		g.topo.SetLine(&opEdge{
			from:    dstNode,
			to:      oe.to,
			id:      newLine.ID(),
			outIdx:  oe.outIdx,
			inIdx:   oe.inIdx,
			tracker: oe.tracker,
		})
	}
}

// MoveReferences transfers old's NoDelete/ToRetrieve pinning onto dst and
// records old -> dst in IDRemap, so any previously-captured reference to
// old resolves to dst once old is removed.
func (g *Graph) MoveReferences(old, dst int64) {
	if _, ok := g.NoDelete[old]; ok {
		delete(g.NoDelete, old)
		g.NoDelete[dst] = struct{}{}
	}
	if _, ok := g.ToRetrieve[old]; ok {
		delete(g.ToRetrieve, old)
		g.ToRetrieve[dst] = struct{}{}
	}
	g.IDRemap[old] = dst
}

// Resolve follows IDRemap chains from id to a fixed point, so a reference
// captured before several chained rewrites still lands on the surviving
// node. A cycle (which a correct rewrite pass never produces) breaks the
// walk rather than looping forever.
func (g *Graph) Resolve(id int64) int64 {
	seen := map[int64]struct{}{id: {}}
	for {
		next, ok := g.IDRemap[id]
		if !ok {
			return id
		}
		if _, cyc := seen[next]; cyc {
			return id
		}
		seen[next] = struct{}{}
		id = next
	}
}

// IsPinned reports whether node is marked NoDelete.
func (g *Graph) IsPinned(node int64) bool {
	_, ok := g.NoDelete[node]
	return ok
}

// HasDirectEdge reports whether to consumes an output of from, i.e. an
// edge exists from -> to in the topology. Used by the selector's edge
// constraints, which are expressed purely in terms of this adjacency and
// never need to inspect opEdge internals directly.
func (g *Graph) HasDirectEdge(from, to int64) bool {
	for _, s := range g.GetSources(to) {
		if s.Node == from {
			return true
		}
	}
	return false
}
