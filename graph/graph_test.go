package graph

import (
	"testing"

	"github.com/csotherden/luminal/shape"
)

// stubOp is a minimal Operator used only to exercise the container; it
// never actually runs.
type stubOp struct {
	name string
}

func (s *stubOp) Process(inputs []Input) ([]Tensor, error) { return nil, nil }
func (s *stubOp) Custom(key string) (any, bool)             { return nil, false }

func TestAddOpAndGetSources(t *testing.T) {
	g := NewGraph()
	a := g.AddOp(&stubOp{"a"}).Finish()
	b := g.AddOp(&stubOp{"b"}).Finish()
	c := g.AddOp(&stubOp{"c"}).
		Input(a, 0, shape.New(nil)).
		Input(b, 0, shape.New(nil)).
		Finish()

	srcs := g.GetSources(c)
	if len(srcs) != 2 {
		t.Fatalf("want 2 sources, got %d", len(srcs))
	}
	if srcs[0].Node != a || srcs[1].Node != b {
		t.Fatalf("sources out of order: %+v", srcs)
	}
}

func TestRemoveNodeClearsBookkeeping(t *testing.T) {
	g := NewGraph()
	a := g.AddOp(&stubOp{"a"}).Finish()
	g.NoDelete[a] = struct{}{}
	g.ToRetrieve[a] = struct{}{}

	g.RemoveNode(a)

	if _, ok := g.NodeWeight(a); ok {
		t.Fatalf("expected weight removed")
	}
	if g.IsPinned(a) {
		t.Fatalf("expected pin removed")
	}
	if _, ok := g.ToRetrieve[a]; ok {
		t.Fatalf("expected retrieve marker removed")
	}
}

func TestMoveOutgoingEdgeRewiresConsumers(t *testing.T) {
	g := NewGraph()
	src := g.AddOp(&stubOp{"src"}).Finish()
	consumer := g.AddOp(&stubOp{"consumer"}).Input(src, 0, shape.New(nil)).Finish()
	replacement := g.AddOp(&stubOp{"replacement"}).Finish()

	g.MoveOutgoingEdge(src, replacement)

	srcs := g.GetSources(consumer)
	if len(srcs) != 1 || srcs[0].Node != replacement {
		t.Fatalf("expected consumer to read from replacement, got %+v", srcs)
	}
}

func TestMoveReferencesAndResolve(t *testing.T) {
	g := NewGraph()
	old := g.AddOp(&stubOp{"old"}).Finish()
	g.NoDelete[old] = struct{}{}
	g.ToRetrieve[old] = struct{}{}

	replacement := g.AddOp(&stubOp{"new"}).Finish()
	g.MoveReferences(old, replacement)

	if g.IsPinned(old) {
		t.Fatalf("old should no longer be pinned")
	}
	if !g.IsPinned(replacement) {
		t.Fatalf("replacement should now be pinned")
	}
	if _, ok := g.ToRetrieve[replacement]; !ok {
		t.Fatalf("retrieve marker should have moved to replacement")
	}
	if got := g.Resolve(old); got != replacement {
		t.Fatalf("Resolve(old) = %d, want %d", got, replacement)
	}
}

func TestResolveChainsThroughMultipleRemaps(t *testing.T) {
	g := NewGraph()
	n1 := g.AddOp(&stubOp{"1"}).Finish()
	n2 := g.AddOp(&stubOp{"2"}).Finish()
	n3 := g.AddOp(&stubOp{"3"}).Finish()

	g.IDRemap[n1] = n2
	g.IDRemap[n2] = n3

	if got := g.Resolve(n1); got != n3 {
		t.Fatalf("Resolve(n1) = %d, want %d", got, n3)
	}
}
