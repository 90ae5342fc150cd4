package graph

import (
	"fmt"
	"sort"
)

// Issue is one finding from the structural lint pass.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Validate runs the structural lint pass over a graph: exactly one trigger
// node, no edge referencing a missing node, and a few cheaper hygiene
// checks. It consults only the node and edge arrays; no canonicalization.
func Validate(g Graph) []Issue {
	var issues []Issue

	triggers := 0
	seen := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Kind == KindTrigger {
			triggers++
		}
		seen[n.ID]++
	}
	if triggers == 0 {
		issues = append(issues, Issue{
			Code:     "missing_trigger",
			Message:  "workflow has no trigger node",
			Severity: SeverityError,
		})
	} else if triggers > 1 {
		issues = append(issues, Issue{
			Code:     "multiple_triggers",
			Message:  fmt.Sprintf("workflow has %d trigger nodes, expected exactly 1", triggers),
			Severity: SeverityError,
		})
	}
	var dups []string
	for id, count := range seen {
		if count > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	for _, id := range dups {
		issues = append(issues, Issue{
			Code:     "duplicate_node_id",
			Message:  fmt.Sprintf("node id %q appears %d times", id, seen[id]),
			Severity: SeverityError,
		})
	}

	for _, e := range g.Edges {
		for _, ep := range []Endpoint{e.From, e.To} {
			n := g.Node(ep.NodeID)
			if n == nil {
				issues = append(issues, Issue{
					Code:     "dangling_edge",
					Message:  fmt.Sprintf("edge %q references missing node %q", e.ID, ep.NodeID),
					Severity: SeverityError,
				})
				continue
			}
			if ep.PortID != "" && g.PortOn(ep.NodeID, ep.PortID) == nil {
				issues = append(issues, Issue{
					Code:     "missing_port",
					Message:  fmt.Sprintf("edge %q references missing port %q on node %q", e.ID, ep.PortID, ep.NodeID),
					Severity: SeverityWarning,
				})
			}
		}
	}

	return issues
}
