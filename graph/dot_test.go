package graph

import (
	"strings"
	"testing"

	"github.com/csotherden/luminal/shape"
)

func TestToDotIncludesNodesAndPinnedStyling(t *testing.T) {
	g := NewGraph()
	a := g.AddOp(&stubOp{"a"}).Finish()
	b := g.AddOp(&stubOp{"b"}).
		Input(a, 0, shape.New(nil)).
		Finish()
	g.NoDelete[a] = struct{}{}
	g.ToRetrieve[b] = struct{}{}

	dot, err := g.ToDot("G")
	if err != nil {
		t.Fatalf("ToDot: %v", err)
	}

	for _, want := range []string{"digraph", "fillcolor", "peripheries"} {
		if !strings.Contains(dot, want) {
			t.Fatalf("dot output missing %q:\n%s", want, dot)
		}
	}
}
