// Package rewrite drives a selector.Selector across a graph.Graph,
// invoking a caller-supplied action per match and applying the standard
// post-match bookkeeping protocol: pinned-node skip, per-match
// transactional failure via RewriteSkipped, everything else fatal.
package rewrite

import (
	"github.com/csotherden/luminal/cerr"
	"github.com/csotherden/luminal/graph"
	"github.com/csotherden/luminal/obslog"
	"github.com/csotherden/luminal/selector"
)

// Action performs the in-graph surgery for one match: constructing
// replacement operators/trackers, re-parenting edges via
// graph.MoveOutgoingEdge, updating pins and remaps via
// graph.MoveReferences, and removing the orphaned matched nodes. Run never
// invokes an Action for a match in which any matched node is in
// g.NoDelete.
type Action func(g *graph.Graph, b selector.Bindings) error

// Run validates s, then searches g for matches and invokes action once per
// match, stopping the search only on a non-RewriteSkipped error. It returns
// the number of matches the action actually applied (i.e. for which action
// returned nil). A malformed selector (see Selector.Validate) is rejected
// before g is searched at all.
//
// Matches whose pattern set includes any node currently in g.NoDelete are
// skipped before action is even invoked — this is the "pinned node in the
// match's interior" check from the standard protocol; actions that need a
// narrower notion of "interior" (e.g. only some of the matched nodes, not
// all) can additionally consult g.IsPinned themselves.
func Run(g *graph.Graph, s *selector.Selector, action Action) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}

	applied := 0
	pass := 0

	for b := range s.Search(g) {
		pass++
		if anyPinned(g, b) {
			continue
		}

		err := action(g, b)
		if err == nil {
			applied++
			continue
		}

		if rs, ok := cerr.IsRewriteSkipped(err); ok {
			obslog.RewriteSkipped(passLabel(s), firstNode(b), rs.Reason)
			continue
		}

		return applied, err
	}

	return applied, nil
}

func anyPinned(g *graph.Graph, b selector.Bindings) bool {
	for _, nodeID := range b.Nodes {
		if g.IsPinned(nodeID) {
			return true
		}
	}
	return false
}

func firstNode(b selector.Bindings) int64 {
	for _, nodeID := range b.Nodes {
		return nodeID
	}
	return -1
}

// passLabel is a placeholder diagnostic name; callers that care about
// attributing log lines to a specific named pass should wrap Run rather
// than rely on this.
func passLabel(s *selector.Selector) string {
	return "rewrite"
}
