package graph

import (
	"math"

	"github.com/google/uuid"
)

// DefaultGroupPadding is the margin between a group's frame and its
// children's bounding box.
const DefaultGroupPadding = 40.0

const (
	configNodeType = "nodeType"
	configChildIDs = "childIds"
	configPadding  = "padding"

	nodeTypeGroup = "group"
)

// GroupConfig is the typed view of a group pseudo-node's config bag.
// A group's position and size are derived from its children and never
// authored directly.
type GroupConfig struct {
	ChildIDs []string
	Padding  float64
}

// GroupOptions controls group creation.
type GroupOptions struct {
	Label   string
	Padding float64
}

// IsGroup reports whether a node is a group pseudo-node.
func IsGroup(n *Node) bool {
	_, ok := groupConfigOf(n)
	return ok
}

// groupConfigOf decodes the group config from a node, tolerating the two
// list encodings that survive a JSON round-trip.
func groupConfigOf(n *Node) (GroupConfig, bool) {
	if n == nil || n.Config == nil {
		return GroupConfig{}, false
	}
	if t, _ := n.Config[configNodeType].(string); t != nodeTypeGroup {
		return GroupConfig{}, false
	}
	gc := GroupConfig{Padding: DefaultGroupPadding}
	switch ids := n.Config[configChildIDs].(type) {
	case []string:
		gc.ChildIDs = append([]string(nil), ids...)
	case []any:
		for _, v := range ids {
			if s, ok := v.(string); ok {
				gc.ChildIDs = append(gc.ChildIDs, s)
			}
		}
	}
	if p, ok := n.Config[configPadding].(float64); ok && p >= 0 {
		gc.Padding = p
	}
	return gc, true
}

func applyGroupConfig(n *Node, gc GroupConfig) {
	if n.Config == nil {
		n.Config = make(map[string]any, 3)
	}
	n.Config[configNodeType] = nodeTypeGroup
	n.Config[configChildIDs] = append([]string(nil), gc.ChildIDs...)
	n.Config[configPadding] = gc.Padding
}

// GroupNodes creates a group pseudo-node around the given nodes. Nodes that
// are missing or are themselves groups are skipped; fewer than 2 eligible
// nodes is a benign no-op signalled by an empty id.
func (s *Store) GroupNodes(ids []string, opts GroupOptions) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []string
	for _, id := range ids {
		n := s.doc.Graph.Node(id)
		if n == nil || IsGroup(n) {
			continue
		}
		eligible = append(eligible, id)
	}
	if len(eligible) < 2 {
		return ""
	}

	padding := opts.Padding
	if padding <= 0 {
		padding = DefaultGroupPadding
	}

	g := Node{
		ID:    uuid.New().String(),
		Kind:  KindCustom,
		Label: opts.Label,
		Ports: []Port{},
	}
	gc := GroupConfig{ChildIDs: eligible, Padding: padding}
	applyGroupConfig(&g, gc)
	s.recomputeGroupBounds(&g, gc)

	s.doc.Graph.Nodes = append(s.doc.Graph.Nodes, g)
	s.touch()
	return g.ID
}

// UngroupNodes dissolves a group, leaving its children in place. Returns
// false if the id is not a group.
func (s *Store) UngroupNodes(groupID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.doc.Graph.Node(groupID)
	if n == nil || !IsGroup(n) {
		return false
	}

	nodes := s.doc.Graph.Nodes[:0]
	for _, m := range s.doc.Graph.Nodes {
		if m.ID != groupID {
			nodes = append(nodes, m)
		}
	}
	s.doc.Graph.Nodes = nodes
	delete(s.selNodes, groupID)
	s.touch()
	return true
}

// GroupOf returns the id of the group containing the given node, or "".
func (s *Store) GroupOf(nodeID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Graph.Nodes {
		n := &s.doc.Graph.Nodes[i]
		gc, ok := groupConfigOf(n)
		if !ok {
			continue
		}
		for _, child := range gc.ChildIDs {
			if child == nodeID {
				return n.ID
			}
		}
	}
	return ""
}

// refreshGroupsFor recomputes the bounds of every group containing any of
// the changed nodes. Caller holds the lock.
func (s *Store) refreshGroupsFor(changed []string) {
	changedSet := make(map[string]struct{}, len(changed))
	for _, id := range changed {
		changedSet[id] = struct{}{}
	}
	for i := range s.doc.Graph.Nodes {
		n := &s.doc.Graph.Nodes[i]
		gc, ok := groupConfigOf(n)
		if !ok {
			continue
		}
		for _, child := range gc.ChildIDs {
			if _, hit := changedSet[child]; hit {
				s.recomputeGroupBounds(n, gc)
				break
			}
		}
	}
}

// recomputeGroupBounds derives a group's position and size from the padded
// bounding box of its existing children. Caller holds the lock.
func (s *Store) recomputeGroupBounds(g *Node, gc GroupConfig) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	found := 0
	for _, child := range gc.ChildIDs {
		c := s.doc.Graph.Node(child)
		if c == nil {
			continue
		}
		found++
		minX = math.Min(minX, c.Position.X)
		minY = math.Min(minY, c.Position.Y)
		maxX = math.Max(maxX, c.Position.X+c.Size.Width)
		maxY = math.Max(maxY, c.Position.Y+c.Size.Height)
	}
	if found == 0 {
		return
	}
	p := gc.Padding
	g.Position = Position{X: minX - p, Y: minY - p}
	g.Size = Size{Width: maxX - minX + 2*p, Height: maxY - minY + 2*p}
}
