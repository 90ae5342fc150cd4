// Package proto defines wire format DTOs for the Flowlab HTTP API.
package proto

import (
	"encoding/json"

	"flowlab/graph"
)

// CreateWorkflowRequest creates a new workflow.
type CreateWorkflowRequest struct {
	// Name of the workflow (required).
	Name string `json:"name"`
	// Description is free-form text.
	Description string `json:"description,omitempty"`
	// Graph is the initial graph; empty graph when omitted.
	Graph *graph.Graph `json:"graph,omitempty"`
}

// UpdateWorkflowRequest replaces workflow fields. Nil fields are left as-is.
type UpdateWorkflowRequest struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Graph       *graph.Graph `json:"graph,omitempty"`
}

// StatusRequest changes a workflow's lifecycle status.
type StatusRequest struct {
	// Status is one of "draft", "active", "archived".
	Status string `json:"status"`
}

// WorkflowResponse is the full workflow document.
type WorkflowResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      string      `json:"status"`
	Graph       graph.Graph `json:"graph"`
	Version     int         `json:"version"`
	CreatedAt   int64       `json:"createdAt"`
	UpdatedAt   int64       `json:"updatedAt"`
}

// WorkflowEntry is one workflow in list responses; graphs are omitted.
type WorkflowEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Version     int    `json:"version"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// WorkflowsListResponse contains a list of workflows.
type WorkflowsListResponse struct {
	Workflows []*WorkflowEntry `json:"workflows"`
}

// CommitRequest cuts an explicit version.
type CommitRequest struct {
	// Message becomes the version label.
	Message string `json:"message,omitempty"`
}

// MaybeCommitRequest tunes the auto-commit gates. Zero values take the
// server defaults.
type MaybeCommitRequest struct {
	// MinIntervalSec is the minimum seconds since the last commit.
	MinIntervalSec int `json:"minIntervalSec,omitempty"`
	// Threshold is the minimum change score.
	Threshold int `json:"threshold,omitempty"`
}

// MaybeCommitResponse reports the auto-commit decision.
type MaybeCommitResponse struct {
	Committed     bool   `json:"committed"`
	VersionID     string `json:"versionId,omitempty"`
	VersionNumber int    `json:"versionNumber,omitempty"`
	Score         int    `json:"score"`
	Summary       string `json:"summary"`
}

// VersionEntry is one version in list responses; snapshots are omitted.
type VersionEntry struct {
	ID            string `json:"id"`
	WorkflowID    string `json:"workflowId"`
	VersionNumber int    `json:"versionNumber"`
	Name          string `json:"name"`
	Label         string `json:"label"`
	Description   string `json:"description"`
	Summary       string `json:"summary"`
	SemanticHash  string `json:"semanticHash"`
	CreatedAt     int64  `json:"createdAt"`
}

// VersionsListResponse contains a workflow's version history, newest first.
type VersionsListResponse struct {
	Versions []*VersionEntry `json:"versions"`
}

// VersionResponse is one version with its snapshot.
type VersionResponse struct {
	VersionEntry
	Snapshot json.RawMessage `json:"snapshot"`
}

// WorkingCopyRequest replaces the working copy.
type WorkingCopyRequest struct {
	Graph graph.Graph `json:"graph"`
}

// WorkingCopyResponse is the persisted working copy.
type WorkingCopyResponse struct {
	WorkflowID string      `json:"workflowId"`
	Graph      graph.Graph `json:"graph"`
	UpdatedAt  int64       `json:"updatedAt"`
}

// ValidateResponse lists lint findings for a graph.
type ValidateResponse struct {
	Valid  bool          `json:"valid"`
	Issues []graph.Issue `json:"issues"`
}

// FingerprintResponse carries a graph's semantic hash.
type FingerprintResponse struct {
	Fingerprint string `json:"fingerprint"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// EditOp is one editing operation on the websocket channel. Fields beyond
// Op are populated per operation; unused ones stay zero.
type EditOp struct {
	// Op names the operation: addNode, updateNode, moveNodes, removeNodes,
	// groupNodes, ungroupNodes, addEdge, removeEdges, select, setViewport,
	// undo, redo, save.
	Op string `json:"op"`

	Node  *graph.Node      `json:"node,omitempty"`
	Patch *graph.NodePatch `json:"patch,omitempty"`
	Edge  *graph.Edge      `json:"edge,omitempty"`

	NodeID  string   `json:"nodeId,omitempty"`
	NodeIDs []string `json:"nodeIds,omitempty"`
	EdgeIDs []string `json:"edgeIds,omitempty"`
	GroupID string   `json:"groupId,omitempty"`

	DX float64 `json:"dx,omitempty"`
	DY float64 `json:"dy,omitempty"`

	Label    string          `json:"label,omitempty"`
	Additive bool            `json:"additive,omitempty"`
	Viewport *graph.Viewport `json:"viewport,omitempty"`
}

// EditResult acknowledges one EditOp.
type EditResult struct {
	Op string `json:"op"`
	OK bool   `json:"ok"`
	// ID is the created node/edge/group ID for operations that mint one.
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
	// Undo and Redo are the history depths after the operation.
	Undo int `json:"undo"`
	Redo int `json:"redo"`
}
