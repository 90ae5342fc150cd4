package graph

import (
	"math"
	"sync"

	"github.com/google/uuid"
)

// DefaultGrid is the snap grid spacing in canvas units.
const DefaultGrid = 20.0

var defaultSize = Size{Width: 160, Height: 80}

// Store owns one live workflow document for the duration of an editing
// session. All mutations go through it so that selection bookkeeping, group
// geometry, and the history stack stay consistent. It is created when a
// workflow is opened and disposed when the session closes; nothing holds it
// as ambient global state.
type Store struct {
	mu       sync.Mutex
	doc      *Workflow
	viewport Viewport

	selNodes map[string]struct{}
	selEdges map[string]struct{}

	undo []historyEntry
	redo []historyEntry

	grid     float64
	onMutate func()
}

// NewStore wraps a workflow document in a session store.
func NewStore(w *Workflow) *Store {
	return &Store{
		doc:      w,
		viewport: Viewport{Zoom: 1},
		selNodes: make(map[string]struct{}),
		selEdges: make(map[string]struct{}),
		grid:     DefaultGrid,
	}
}

// SetMutateHook registers a callback invoked after every document mutation.
// The versioning layer uses it to flip Clean to Dirty.
func (s *Store) SetMutateHook(fn func()) {
	s.mu.Lock()
	s.onMutate = fn
	s.mu.Unlock()
}

// WorkflowID returns the id of the owned document.
func (s *Store) WorkflowID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.ID
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// GraphSnapshot returns a deep copy of the current graph payload.
func (s *Store) GraphSnapshot() Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Graph.Clone()
}

// Viewport returns the current viewport.
func (s *Store) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// SetViewport replaces the viewport, clamping zoom. Pure view state: does
// not touch updatedAt and does not mark the session dirty.
func (s *Store) SetViewport(v Viewport) {
	s.mu.Lock()
	v.Zoom = ClampZoom(v.Zoom)
	s.viewport = v
	s.mu.Unlock()
}

// touch is called with the lock held after every document mutation.
func (s *Store) touch() {
	s.doc.UpdatedAt = NowMs()
	if s.onMutate != nil {
		s.onMutate()
	}
}

// AddNode appends a node, assigning an id, default size, and an empty port
// list where unset. It always succeeds and returns the node id.
func (s *Store) AddNode(n Node) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Kind == "" {
		n.Kind = KindAction
	}
	if n.Size.Width == 0 && n.Size.Height == 0 {
		n.Size = defaultSize
	}
	if n.Ports == nil {
		n.Ports = []Port{}
	}
	s.doc.Graph.Nodes = append(s.doc.Graph.Nodes, n)
	s.touch()
	return n.ID
}

// NodePatch carries the fields UpdateNode may change. Nil fields are left
// untouched; Config entries are merged key by key (shallow).
type NodePatch struct {
	Label    *string        `json:"label,omitempty"`
	Position *Position      `json:"position,omitempty"`
	Size     *Size          `json:"size,omitempty"`
	Ports    []Port         `json:"ports,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

// UpdateNode shallow-merges a patch into an existing node. A missing id is
// a benign no-op and returns false.
func (s *Store) UpdateNode(id string, patch NodePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.doc.Graph.Node(id)
	if n == nil {
		return false
	}

	geometry := false
	if patch.Label != nil {
		n.Label = *patch.Label
	}
	if patch.Position != nil {
		n.Position = *patch.Position
		geometry = true
	}
	if patch.Size != nil {
		n.Size = *patch.Size
		geometry = true
	}
	if patch.Ports != nil {
		n.Ports = append([]Port(nil), patch.Ports...)
	}
	if patch.Config != nil {
		if n.Config == nil {
			n.Config = make(map[string]any, len(patch.Config))
		}
		for k, v := range patch.Config {
			n.Config[k] = cloneValue(v)
		}
	}

	if geometry {
		s.refreshGroupsFor([]string{id})
	}
	s.touch()
	return true
}

// MoveNodes translates the matching nodes by the accumulated drag delta and
// snaps the result to the grid. Snapping happens once, after the full delta
// is applied, so continuous drags do not drift.
func (s *Store) MoveNodes(ids []string, dx, dy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := ids[:0:0]
	for _, id := range ids {
		n := s.doc.Graph.Node(id)
		if n == nil {
			continue
		}
		n.Position.X = snapTo(n.Position.X+dx, s.grid)
		n.Position.Y = snapTo(n.Position.Y+dy, s.grid)
		moved = append(moved, id)
	}
	if len(moved) == 0 {
		return
	}
	s.refreshGroupsFor(moved)
	s.touch()
}

// RemoveNodes deletes the given nodes, every edge touching them, and any
// group left with fewer than 2 children. Group pruning cascades and the
// whole removal is a single atomic step. Returns the number of nodes
// removed, including cascaded groups.
func (s *Store) RemoveNodes(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]struct{})
	for _, id := range ids {
		if s.doc.Graph.Node(id) != nil {
			removed[id] = struct{}{}
		}
	}
	if len(removed) == 0 {
		return 0
	}

	// Phase one: cascade group deletion until stable. A group whose
	// surviving membership drops to 0 or 1 is removed itself, which can in
	// turn starve an enclosing group.
	for {
		grew := false
		for i := range s.doc.Graph.Nodes {
			n := &s.doc.Graph.Nodes[i]
			if _, gone := removed[n.ID]; gone {
				continue
			}
			gc, ok := groupConfigOf(n)
			if !ok {
				continue
			}
			survivors := 0
			for _, child := range gc.ChildIDs {
				if _, gone := removed[child]; gone {
					continue
				}
				if s.doc.Graph.Node(child) != nil {
					survivors++
				}
			}
			if survivors <= 1 {
				removed[n.ID] = struct{}{}
				grew = true
			}
		}
		if !grew {
			break
		}
	}

	// Phase two: drop removed nodes and edges touching them.
	nodes := s.doc.Graph.Nodes[:0]
	for _, n := range s.doc.Graph.Nodes {
		if _, gone := removed[n.ID]; !gone {
			nodes = append(nodes, n)
		}
	}
	s.doc.Graph.Nodes = nodes

	edges := s.doc.Graph.Edges[:0]
	for _, e := range s.doc.Graph.Edges {
		_, fromGone := removed[e.From.NodeID]
		_, toGone := removed[e.To.NodeID]
		if fromGone || toGone {
			delete(s.selEdges, e.ID)
			continue
		}
		edges = append(edges, e)
	}
	s.doc.Graph.Edges = edges

	// Phase three: surviving groups get filtered membership and fresh
	// geometry.
	for i := range s.doc.Graph.Nodes {
		n := &s.doc.Graph.Nodes[i]
		gc, ok := groupConfigOf(n)
		if !ok {
			continue
		}
		kept := gc.ChildIDs[:0:0]
		for _, child := range gc.ChildIDs {
			if _, gone := removed[child]; !gone {
				kept = append(kept, child)
			}
		}
		gc.ChildIDs = kept
		applyGroupConfig(n, gc)
		s.recomputeGroupBounds(n, gc)
	}

	for id := range removed {
		delete(s.selNodes, id)
	}
	s.touch()
	return len(removed)
}

// AddEdge appends an edge, assigning an id when absent. Port compatibility
// and endpoint existence are the caller's responsibility; the lint pass in
// validate.go reports violations after the fact.
func (s *Store) AddEdge(e Edge) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Kind == "" {
		e.Kind = PortControl
	}
	s.doc.Graph.Edges = append(s.doc.Graph.Edges, e)
	s.touch()
	return e.ID
}

// RemoveEdges deletes the given edges. Missing ids are ignored. Returns the
// number removed.
func (s *Store) RemoveEdges(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	removed := 0
	edges := s.doc.Graph.Edges[:0]
	for _, e := range s.doc.Graph.Edges {
		if _, gone := drop[e.ID]; gone {
			delete(s.selEdges, e.ID)
			removed++
			continue
		}
		edges = append(edges, e)
	}
	s.doc.Graph.Edges = edges
	if removed > 0 {
		s.touch()
	}
	return removed
}

func snapTo(v, grid float64) float64 {
	if grid <= 0 {
		return v
	}
	return math.Round(v/grid) * grid
}
