package graph

import "sort"

// Selection is pure view state. The selected flag on each entity and the
// selection sets are two representations of the same fact; every operation
// here updates both in the same step.

// SelectNodes marks the given nodes selected. With additive false the
// previous selection (nodes and edges) is cleared first. Unknown ids are
// ignored.
func (s *Store) SelectNodes(ids []string, additive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !additive {
		s.clearSelectionLocked()
	}
	for _, id := range ids {
		n := s.doc.Graph.Node(id)
		if n == nil {
			continue
		}
		n.Selected = true
		s.selNodes[id] = struct{}{}
	}
}

// SelectEdges marks the given edges selected, mirroring SelectNodes.
func (s *Store) SelectEdges(ids []string, additive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !additive {
		s.clearSelectionLocked()
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range s.doc.Graph.Edges {
		e := &s.doc.Graph.Edges[i]
		if _, ok := want[e.ID]; ok {
			e.Selected = true
			s.selEdges[e.ID] = struct{}{}
		}
	}
}

// ToggleNodeSelection flips a single node's selection state.
func (s *Store) ToggleNodeSelection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.doc.Graph.Node(id)
	if n == nil {
		return
	}
	if n.Selected {
		n.Selected = false
		delete(s.selNodes, id)
	} else {
		n.Selected = true
		s.selNodes[id] = struct{}{}
	}
}

// ClearSelection deselects everything.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.clearSelectionLocked()
	s.mu.Unlock()
}

func (s *Store) clearSelectionLocked() {
	for i := range s.doc.Graph.Nodes {
		s.doc.Graph.Nodes[i].Selected = false
	}
	for i := range s.doc.Graph.Edges {
		s.doc.Graph.Edges[i].Selected = false
	}
	s.selNodes = make(map[string]struct{})
	s.selEdges = make(map[string]struct{})
}

// SelectedNodeIDs returns the selected node ids, sorted.
func (s *Store) SelectedNodeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.selNodes)
}

// SelectedEdgeIDs returns the selected edge ids, sorted.
func (s *Store) SelectedEdgeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.selEdges)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
