// Package diff computes structural differences between two workflow graph
// snapshots and scores their magnitude for auto-commit decisions.
package diff

// Score weights. The heuristic is part of the versioning contract: stored
// thresholds assume these exact values.
const (
	ScoreNodeAdded   = 5
	ScoreNodeRemoved = 5
	ScoreEdgeAdded   = 2
	ScoreEdgeRemoved = 2

	// Per changed node: branch-kind rewrites weigh most, structural config
	// changes (key set differs) less, content-only tweaks least.
	ScoreNodeBranch     = 8
	ScoreNodeStructural = 4
	ScoreNodeMinor      = 1
)

// NodeChange records a node present on both sides whose normalized form
// differs.
type NodeChange struct {
	ID   string         `json:"id"`
	From map[string]any `json:"from"`
	To   map[string]any `json:"to"`
}

// Details lists the individual differences. Node entries are ids, edge
// entries are canonical composite keys.
type Details struct {
	AddedNodes   []string     `json:"addedNodes"`
	RemovedNodes []string     `json:"removedNodes"`
	ChangedNodes []NodeChange `json:"changedNodes"`
	AddedEdges   []string     `json:"addedEdges"`
	RemovedEdges []string     `json:"removedEdges"`
}

// Result is a scored structural diff.
type Result struct {
	Summary string  `json:"summary"`
	Score   int     `json:"score"`
	Details Details `json:"details"`
}

// Empty reports whether the two sides were structurally identical.
func (r *Result) Empty() bool {
	return r.Score == 0
}
