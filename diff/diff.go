package diff

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"flowlab/canon"
)

// Graphs diffs two graph snapshots. Both sides are normalized first, so the
// result is insensitive to layout, selection, and array or key order.
func Graphs(a, b any) (*Result, error) {
	na, err := canon.Normalize(a)
	if err != nil {
		return nil, fmt.Errorf("normalizing left side: %w", err)
	}
	nb, err := canon.Normalize(b)
	if err != nil {
		return nil, fmt.Errorf("normalizing right side: %w", err)
	}

	res := &Result{}
	diffNodes(nodesByID(na), nodesByID(nb), res)
	diffEdges(edgesByKey(na), edgesByKey(nb), res)
	res.Score = score(res.Details)
	res.Summary = summarize(res.Details)
	return res, nil
}

func nodesByID(m map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	nodes, _ := m["nodes"].([]any)
	for _, n := range nodes {
		nm, ok := n.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := nm["id"].(string); ok {
			out[id] = nm
		}
	}
	return out
}

func edgesByKey(m map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	edges, _ := m["edges"].([]any)
	for _, e := range edges {
		em, ok := e.(map[string]any)
		if !ok {
			continue
		}
		out[canon.EdgeKeyOf(em)] = em
	}
	return out
}

func diffNodes(a, b map[string]map[string]any, res *Result) {
	for id, nb := range b {
		na, exists := a[id]
		if !exists {
			res.Details.AddedNodes = append(res.Details.AddedNodes, id)
			continue
		}
		if !reflect.DeepEqual(na, nb) {
			res.Details.ChangedNodes = append(res.Details.ChangedNodes, NodeChange{
				ID:   id,
				From: na,
				To:   nb,
			})
		}
	}
	for id := range a {
		if _, exists := b[id]; !exists {
			res.Details.RemovedNodes = append(res.Details.RemovedNodes, id)
		}
	}

	sort.Strings(res.Details.AddedNodes)
	sort.Strings(res.Details.RemovedNodes)
	sort.Slice(res.Details.ChangedNodes, func(i, j int) bool {
		return res.Details.ChangedNodes[i].ID < res.Details.ChangedNodes[j].ID
	})
}

func diffEdges(a, b map[string]map[string]any, res *Result) {
	for key := range b {
		if _, exists := a[key]; !exists {
			res.Details.AddedEdges = append(res.Details.AddedEdges, key)
		}
	}
	for key := range a {
		if _, exists := b[key]; !exists {
			res.Details.RemovedEdges = append(res.Details.RemovedEdges, key)
		}
	}
	sort.Strings(res.Details.AddedEdges)
	sort.Strings(res.Details.RemovedEdges)
}

func score(d Details) int {
	total := len(d.AddedNodes)*ScoreNodeAdded +
		len(d.RemovedNodes)*ScoreNodeRemoved +
		len(d.AddedEdges)*ScoreEdgeAdded +
		len(d.RemovedEdges)*ScoreEdgeRemoved

	for _, c := range d.ChangedNodes {
		total += changedNodeScore(c)
	}
	return total
}

// changedNodeScore weighs one modified node: a rewrite into a branch node
// changes control flow, a config key-set change alters the node's shape,
// anything else is a content tweak.
func changedNodeScore(c NodeChange) int {
	if kind, _ := c.To["kind"].(string); kind == "condition" {
		return ScoreNodeBranch
	}
	if !sameKeySet(configOf(c.From), configOf(c.To)) {
		return ScoreNodeStructural
	}
	return ScoreNodeMinor
}

func configOf(n map[string]any) map[string]any {
	cfg, _ := n["config"].(map[string]any)
	return cfg
}

func sameKeySet(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// summarize builds the short human-readable change string: non-zero counts
// joined in a fixed order, or "no changes".
func summarize(d Details) string {
	var parts []string
	if n := len(d.AddedNodes); n > 0 {
		parts = append(parts, fmt.Sprintf("+%d nodes", n))
	}
	if n := len(d.RemovedNodes); n > 0 {
		parts = append(parts, fmt.Sprintf("-%d nodes", n))
	}
	if n := len(d.AddedEdges); n > 0 {
		parts = append(parts, fmt.Sprintf("+%d edges", n))
	}
	if n := len(d.RemovedEdges); n > 0 {
		parts = append(parts, fmt.Sprintf("-%d edges", n))
	}
	if n := len(d.ChangedNodes); n > 0 {
		parts = append(parts, fmt.Sprintf("modified %d nodes", n))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}
