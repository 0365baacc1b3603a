package graph

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// ToDot renders the current graph as a Graphviz DOT document, the same
// debugging aid gorgonia.org/gorgonia exposes on its own ExprGraph via
// gographviz. Node labels combine the node id with its Operator's %T;
// pinned nodes are filled light grey and ToRetrieve nodes get a double
// border, so a pass's effect on those sets is visible at a glance.
func (g *Graph) ToDot(name string) (string, error) {
	dg := gographviz.NewGraph()
	if err := dg.SetName(name); err != nil {
		return "", err
	}
	if err := dg.SetDir(true); err != nil {
		return "", err
	}

	for _, id := range g.Nodes() {
		attrs := map[string]string{
			"label": fmt.Sprintf(`"%d: %T"`, id, g.weights[id]),
		}
		if g.IsPinned(id) {
			attrs["style"] = "filled"
			attrs["fillcolor"] = "lightgrey"
		}
		if _, ok := g.ToRetrieve[id]; ok {
			attrs["peripheries"] = "2"
		}
		if err := dg.AddNode(name, nodeName(id), attrs); err != nil {
			return "", err
		}
	}

	for _, id := range g.Nodes() {
		for _, src := range g.GetSources(id) {
			edgeAttrs := map[string]string{
				"label": fmt.Sprintf(`"out%d->in"`, src.OutIdx),
			}
			if err := dg.AddEdge(nodeName(src.Node), nodeName(id), true, edgeAttrs); err != nil {
				return "", err
			}
		}
	}

	return dg.String(), nil
}

func nodeName(id int64) string {
	return fmt.Sprintf("n%d", id)
}
