package graph

import (
	"testing"
)

func testStore() *Store {
	return NewStore(&Workflow{
		ID:     "wf-1",
		Name:   "test workflow",
		Status: "draft",
		Graph:  Graph{Nodes: []Node{}, Edges: []Edge{}},
	})
}

func TestAddNodeDefaults(t *testing.T) {
	s := testStore()

	id := s.AddNode(Node{Label: "fetch"})
	if id == "" {
		t.Fatal("expected generated id")
	}

	g := s.GraphSnapshot()
	n := g.Node(id)
	if n == nil {
		t.Fatal("node not in graph")
	}
	if n.Kind != KindAction {
		t.Errorf("kind = %q, want %q", n.Kind, KindAction)
	}
	if n.Size != defaultSize {
		t.Errorf("size = %+v, want %+v", n.Size, defaultSize)
	}
	if n.Ports == nil {
		t.Error("ports not initialized")
	}
}

func TestAddNodeKeepsExplicitID(t *testing.T) {
	s := testStore()
	if got := s.AddNode(Node{ID: "n1", Kind: KindTrigger}); got != "n1" {
		t.Errorf("id = %q, want n1", got)
	}
}

func TestUpdateNode(t *testing.T) {
	s := testStore()
	id := s.AddNode(Node{Label: "old", Config: map[string]any{"url": "http://x", "retries": 3}})

	label := "new"
	pos := Position{X: 100, Y: 200}
	ok := s.UpdateNode(id, NodePatch{
		Label:    &label,
		Position: &pos,
		Config:   map[string]any{"url": "http://y"},
	})
	if !ok {
		t.Fatal("update failed")
	}

	g := s.GraphSnapshot()
	n := g.Node(id)
	if n.Label != "new" {
		t.Errorf("label = %q", n.Label)
	}
	if n.Position != pos {
		t.Errorf("position = %+v", n.Position)
	}
	// merge, not replace
	if n.Config["url"] != "http://y" || n.Config["retries"] != 3 {
		t.Errorf("config = %v", n.Config)
	}
}

func TestUpdateNodeMissing(t *testing.T) {
	s := testStore()
	if s.UpdateNode("nope", NodePatch{}) {
		t.Error("update of missing node reported success")
	}
}

func TestMoveNodesSnapsToGrid(t *testing.T) {
	s := testStore()
	id := s.AddNode(Node{Position: Position{X: 0, Y: 0}})

	s.MoveNodes([]string{id}, 33, 47)

	g := s.GraphSnapshot()
	n := g.Node(id)
	if n.Position.X != 40 || n.Position.Y != 40 {
		t.Errorf("position = %+v, want {40 40}", n.Position)
	}
}

func TestMoveNodesIgnoresMissing(t *testing.T) {
	s := testStore()
	before := s.Snapshot().UpdatedAt
	s.MoveNodes([]string{"ghost"}, 10, 10)
	if s.Snapshot().UpdatedAt != before {
		t.Error("no-op move bumped updatedAt")
	}
}

func TestRemoveNodesDropsTouchingEdges(t *testing.T) {
	s := testStore()
	a := s.AddNode(Node{ID: "a"})
	b := s.AddNode(Node{ID: "b"})
	c := s.AddNode(Node{ID: "c"})
	e1 := s.AddEdge(Edge{From: Endpoint{NodeID: a}, To: Endpoint{NodeID: b}})
	e2 := s.AddEdge(Edge{From: Endpoint{NodeID: b}, To: Endpoint{NodeID: c}})

	if n := s.RemoveNodes([]string{b}); n != 1 {
		t.Fatalf("removed %d nodes, want 1", n)
	}

	g := s.GraphSnapshot()
	if len(g.Edges) != 0 {
		t.Errorf("edges %v survived, want none (e1=%s e2=%s)", g.Edges, e1, e2)
	}
	if g.Node(a) == nil || g.Node(c) == nil {
		t.Error("unrelated nodes removed")
	}
}

func TestRemoveNodesPrunesSelection(t *testing.T) {
	s := testStore()
	a := s.AddNode(Node{ID: "a"})
	s.AddNode(Node{ID: "b"})
	s.SelectNodes([]string{a}, false)

	s.RemoveNodes([]string{a})
	if got := s.SelectedNodeIDs(); len(got) != 0 {
		t.Errorf("selection = %v after removing selected node", got)
	}
}

func TestAddEdgeDefaultsKind(t *testing.T) {
	s := testStore()
	a := s.AddNode(Node{ID: "a"})
	b := s.AddNode(Node{ID: "b"})
	id := s.AddEdge(Edge{From: Endpoint{NodeID: a, PortID: "out"}, To: Endpoint{NodeID: b, PortID: "in"}})

	g := s.GraphSnapshot()
	for _, e := range g.Edges {
		if e.ID == id && e.Kind != PortControl {
			t.Errorf("kind = %q, want %q", e.Kind, PortControl)
		}
	}
}

func TestRemoveEdges(t *testing.T) {
	s := testStore()
	a := s.AddNode(Node{ID: "a"})
	b := s.AddNode(Node{ID: "b"})
	e := s.AddEdge(Edge{From: Endpoint{NodeID: a}, To: Endpoint{NodeID: b}})

	if n := s.RemoveEdges([]string{e, "ghost"}); n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if g := s.GraphSnapshot(); len(g.Edges) != 0 {
		t.Errorf("%d edges left", len(g.Edges))
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := testStore()
	id := s.AddNode(Node{ID: "a", Config: map[string]any{"k": "v"}})

	g := s.GraphSnapshot()
	g.Node(id).Config["k"] = "mutated"
	g.Node(id).Position.X = 999

	live := s.GraphSnapshot()
	if live.Node(id).Config["k"] != "v" {
		t.Error("snapshot mutation leaked into live document")
	}
	if live.Node(id).Position.X != 0 {
		t.Error("snapshot position mutation leaked")
	}
}

func TestSetViewportClampsZoom(t *testing.T) {
	tests := []struct {
		zoom float64
		want float64
	}{
		{0.01, 0.1},
		{1, 1},
		{50, 5},
	}
	for _, tt := range tests {
		s := testStore()
		s.SetViewport(Viewport{Zoom: tt.zoom})
		if got := s.Viewport().Zoom; got != tt.want {
			t.Errorf("zoom %v clamped to %v, want %v", tt.zoom, got, tt.want)
		}
	}
}

func TestViewportDoesNotMarkDirty(t *testing.T) {
	s := testStore()
	dirty := false
	s.SetMutateHook(func() { dirty = true })

	s.SetViewport(Viewport{Offset: Position{X: 10, Y: 10}, Zoom: 2})
	if dirty {
		t.Error("viewport change invoked mutate hook")
	}

	s.AddNode(Node{})
	if !dirty {
		t.Error("node add did not invoke mutate hook")
	}
}
