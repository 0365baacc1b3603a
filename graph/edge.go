package graph

import (
	gonumgraph "gonum.org/v1/gonum/graph"

	"github.com/csotherden/luminal/shape"
)

// opEdge is the custom graph.Line carried by the underlying multigraph: a
// directed dependency from a producer node's outIdx'th output to a
// consumer node's inIdx'th input, annotated with the shape tracker that
// view of the data is presented through. gonum's own multi.Line has no
// payload field, so every edge in the container is one of these instead.
type opEdge struct {
	from, to gonumgraph.Node
	id       int64
	outIdx   int
	inIdx    int
	tracker  shape.Tracker
}

func (e *opEdge) From() gonumgraph.Node         { return e.from }
func (e *opEdge) To() gonumgraph.Node           { return e.to }
func (e *opEdge) ID() int64                     { return e.id }
func (e *opEdge) ReversedLine() gonumgraph.Line {
	r := *e
	r.from, r.to = e.to, e.from
	return &r
}

// opNode is the trivial graph.Node wrapper around a node id; Operator
// weights live in Graph.weights rather than on the node itself, since
// gonum's node type is topology-only.
type opNode int64

func (n opNode) ID() int64 { return int64(n) }
