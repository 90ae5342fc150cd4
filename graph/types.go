// Package graph holds the in-memory workflow graph model: nodes, ports,
// edges, viewport, and the per-session Store that owns all mutations.
package graph

import "time"

// NodeKind classifies a node's primary role in the workflow.
type NodeKind string

const (
	KindTrigger   NodeKind = "trigger"
	KindAction    NodeKind = "action"
	KindCondition NodeKind = "condition"
	KindCustom    NodeKind = "custom"
)

// PortDirection is the data-flow direction of a port.
type PortDirection string

const (
	DirIn  PortDirection = "in"
	DirOut PortDirection = "out"
)

// PortKind classifies what a port carries.
type PortKind string

const (
	PortData    PortKind = "data"
	PortControl PortKind = "control"
	PortError   PortKind = "error"
)

// Position is a node's top-left corner in canvas coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a node's width and height.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Port is a connection point on a node. Edges reference ports by
// (nodeId, portId) pairs, never by pointer, because nodes are replaced
// wholesale on undo and restore.
type Port struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Direction PortDirection `json:"direction"`
	Kind      PortKind      `json:"kind"`
	DataType  string        `json:"dataType,omitempty"`
}

// Node is a single workflow node. Config is an open bag for kind-specific
// settings; well-known shapes (groups) get typed accessors in group.go.
type Node struct {
	ID       string         `json:"id"`
	Kind     NodeKind       `json:"kind"`
	Label    string         `json:"label,omitempty"`
	Position Position       `json:"position"`
	Size     Size           `json:"size"`
	Ports    []Port         `json:"ports"`
	Config   map[string]any `json:"config,omitempty"`
	Selected bool           `json:"selected,omitempty"`
}

// Endpoint identifies one end of an edge.
type Endpoint struct {
	NodeID string `json:"nodeId"`
	PortID string `json:"portId"`
}

// Edge connects an out port to an in port.
type Edge struct {
	ID       string   `json:"id"`
	From     Endpoint `json:"from"`
	To       Endpoint `json:"to"`
	Kind     PortKind `json:"kind,omitempty"`
	Label    string   `json:"label,omitempty"`
	Selected bool     `json:"selected,omitempty"`
}

// Graph is the structural payload of a workflow.
type Graph struct {
	Nodes []Node         `json:"nodes"`
	Edges []Edge         `json:"edges"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// Workflow is the root aggregate. Version is a monotonic counter bumped on
// structural replacement through the CRUD boundary.
type Workflow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Graph       Graph  `json:"graph"`
	Version     int    `json:"version"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// Viewport is presentation state, stored alongside a workflow for restore
// convenience but excluded from workflow identity.
type Viewport struct {
	Zoom   float64  `json:"zoom"`
	Offset Position `json:"offset"`
}

const (
	MinZoom = 0.1
	MaxZoom = 5.0
)

// ClampZoom bounds a zoom factor to the supported range.
func ClampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// NowMs returns the current time in milliseconds since epoch.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	c := n
	c.Ports = append([]Port(nil), n.Ports...)
	c.Config = cloneMap(n.Config)
	return c
}

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	c := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: append([]Edge(nil), g.Edges...),
		Meta:  cloneMap(g.Meta),
	}
	for i, n := range g.Nodes {
		c.Nodes[i] = n.Clone()
	}
	return c
}

// Clone returns a deep copy of the workflow.
func (w Workflow) Clone() Workflow {
	c := w
	c.Graph = w.Graph.Clone()
	return c
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// PortOn returns the port with the given id on the given node, or nil.
func (g *Graph) PortOn(nodeID, portID string) *Port {
	n := g.Node(nodeID)
	if n == nil {
		return nil
	}
	for i := range n.Ports {
		if n.Ports[i].ID == portID {
			return &n.Ports[i]
		}
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		c := make([]any, len(val))
		for i, e := range val {
			c[i] = cloneValue(e)
		}
		return c
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
