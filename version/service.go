// Package version implements the versioning protocol: working-copy
// persistence, explicit commits, score-and-interval gated auto-commits, and
// restore.
package version

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flowlab/canon"
	"flowlab/diff"
	"flowlab/graph"
	"flowlab/store"
)

// Defaults for MaybeCommit gating.
const (
	DefaultThreshold      = 10
	DefaultMinIntervalSec = 300
)

// Service runs the versioning protocol against the record store. It is
// stateless; the per-session Clean/Dirty/Saving machine lives in Autosaver.
type Service struct {
	db *store.DB
}

// NewService creates a versioning service.
func NewService(db *store.DB) *Service {
	return &Service{db: db}
}

// CommitOptions gates MaybeCommit. Zero values take the defaults.
type CommitOptions struct {
	MinIntervalSec int `json:"minIntervalSec,omitempty"`
	Threshold      int `json:"threshold,omitempty"`
}

// CommitResult reports the outcome of a commit decision. Score and Summary
// are filled in even when nothing was committed.
type CommitResult struct {
	Committed     bool   `json:"committed"`
	VersionID     string `json:"versionId,omitempty"`
	VersionNumber int    `json:"versionNumber,omitempty"`
	Score         int    `json:"score"`
	Summary       string `json:"summary"`
	SemanticHash  string `json:"semanticHash,omitempty"`
}

// currentGraph returns the freshest persisted graph for a workflow: the
// working copy when present, the workflow record otherwise.
func (s *Service) currentGraph(workflowID string) (*store.Workflow, []byte, error) {
	wf, err := s.db.GetWorkflow(workflowID)
	if err != nil {
		return nil, nil, err
	}
	wc, err := s.db.GetWorkingCopy(workflowID)
	if err == nil {
		return wf, wc.Graph, nil
	}
	if errors.Is(err, store.ErrWorkingCopyNotFound) {
		return wf, wf.Graph, nil
	}
	return nil, nil, err
}

// SaveWorkingCopy upserts the working-copy slot from a graph snapshot and
// bumps the workflow's updatedAt.
func (s *Service) SaveWorkingCopy(workflowID string, g graph.Graph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	if err := s.db.UpsertWorkingCopy(workflowID, data); err != nil {
		return err
	}
	return s.db.TouchWorkflow(workflowID)
}

// Commit unconditionally cuts a version from the current working graph.
// The message becomes the version label; the description records what
// changed relative to the previous version. Failures are the caller's to
// handle: an explicit save that did not happen must be visible.
func (s *Service) Commit(workflowID, message string) (*store.Version, error) {
	wf, graphJSON, err := s.currentGraph(workflowID)
	if err != nil {
		return nil, err
	}
	return s.cut(wf, graphJSON, message)
}

// MaybeCommit diffs the last committed version against the current working
// graph and cuts a version only when the change score meets the threshold
// AND enough time has passed since the last commit. Otherwise it reports
// {committed:false} with the score still computed, so callers can expose
// "pending changes" without committing them.
func (s *Service) MaybeCommit(workflowID string, opts CommitOptions) (*CommitResult, error) {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MinIntervalSec <= 0 {
		opts.MinIntervalSec = DefaultMinIntervalSec
	}

	wf, graphJSON, err := s.currentGraph(workflowID)
	if err != nil {
		return nil, err
	}

	var base any = graph.Graph{}
	intervalOK := true
	last, err := s.db.LatestVersion(workflowID)
	switch {
	case err == nil:
		base = json.RawMessage(last.Snapshot)
		elapsed := time.Duration(graph.NowMs()-last.CreatedAt) * time.Millisecond
		intervalOK = elapsed >= time.Duration(opts.MinIntervalSec)*time.Second
	case errors.Is(err, store.ErrVersionNotFound):
		// First commit: diff against the empty graph, no interval gate.
	default:
		return nil, err
	}

	d, err := diff.Graphs(base, json.RawMessage(graphJSON))
	if err != nil {
		return nil, err
	}

	res := &CommitResult{Score: d.Score, Summary: d.Summary}
	if d.Score < opts.Threshold || !intervalOK {
		return res, nil
	}

	v, err := s.cut(wf, graphJSON, "auto")
	if err != nil {
		return nil, err
	}
	res.Committed = true
	res.VersionID = v.ID
	res.VersionNumber = v.VersionNumber
	res.SemanticHash = v.SemanticHash
	return res, nil
}

// cut writes one immutable version record. The snapshot keeps the full
// graph (layout included) so restore brings back what the user saw; the
// semantic hash is computed over the canonical form. Name and Description
// are the workflow's own metadata so restore can bring them back too; the
// change summary goes in its own field.
func (s *Service) cut(wf *store.Workflow, graphJSON []byte, label string) (*store.Version, error) {
	hash, err := canon.Fingerprint(json.RawMessage(graphJSON))
	if err != nil {
		return nil, fmt.Errorf("fingerprinting graph: %w", err)
	}

	summary := ""
	if last, err := s.db.LatestVersion(wf.ID); err == nil {
		d, derr := diff.Graphs(json.RawMessage(last.Snapshot), json.RawMessage(graphJSON))
		if derr == nil {
			summary = d.Summary
		}
	}

	v := &store.Version{
		ID:           uuid.New().String(),
		WorkflowID:   wf.ID,
		Name:         wf.Name,
		Label:        label,
		Description:  wf.Description,
		Summary:      summary,
		Snapshot:     graphJSON,
		SemanticHash: hash,
	}
	if err := s.db.InsertVersion(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Restore replaces a workflow's live state with a prior version's snapshot.
// The version must belong to the workflow. The working copy is rewritten to
// the restored graph and the restored graph is returned so the session
// layer can swap its document and reset history.
func (s *Service) Restore(workflowID, versionID string) (graph.Graph, *store.Version, error) {
	v, err := s.db.GetVersionOf(workflowID, versionID)
	if err != nil {
		return graph.Graph{}, nil, err
	}

	var g graph.Graph
	if err := json.Unmarshal(v.Snapshot, &g); err != nil {
		return graph.Graph{}, nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	wf, err := s.db.GetWorkflow(workflowID)
	if err != nil {
		return graph.Graph{}, nil, err
	}
	wf.Name = v.Name
	wf.Description = v.Description
	wf.Graph = v.Snapshot
	if err := s.db.UpdateWorkflow(wf, true); err != nil {
		return graph.Graph{}, nil, err
	}
	if err := s.db.UpsertWorkingCopy(workflowID, v.Snapshot); err != nil {
		return graph.Graph{}, nil, err
	}
	return g, v, nil
}
