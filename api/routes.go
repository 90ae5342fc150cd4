// Package api provides the HTTP API for Flowlab.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"flowlab/config"
	"flowlab/graph"
	"flowlab/proto"
	"flowlab/session"
	"flowlab/store"
	"flowlab/version"
)

// Handler wraps the persistence and session layers for HTTP handlers.
type Handler struct {
	db       *store.DB
	sessions *session.Manager
	versions *version.Service
	cfg      *config.Config
}

// NewHandler creates a new API handler.
func NewHandler(db *store.DB, sessions *session.Manager, versions *version.Service, cfg *config.Config) *Handler {
	return &Handler{db: db, sessions: sessions, versions: versions, cfg: cfg}
}

// NewRouter creates the HTTP router with all routes registered.
func NewRouter(db *store.DB, sessions *session.Manager, versions *version.Service, cfg *config.Config) http.Handler {
	h := NewHandler(db, sessions, versions, cfg)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)

	mux.HandleFunc("POST /v1/workflows", h.CreateWorkflow)
	mux.HandleFunc("GET /v1/workflows", h.ListWorkflows)
	mux.HandleFunc("GET /v1/workflows/{id}", h.GetWorkflow)
	mux.HandleFunc("PUT /v1/workflows/{id}", h.UpdateWorkflow)
	mux.HandleFunc("DELETE /v1/workflows/{id}", h.DeleteWorkflow)
	mux.HandleFunc("POST /v1/workflows/{id}/duplicate", h.DuplicateWorkflow)
	mux.HandleFunc("POST /v1/workflows/{id}/status", h.SetStatus)

	mux.HandleFunc("GET /v1/workflows/{id}/versions", h.ListVersions)
	mux.HandleFunc("POST /v1/workflows/{id}/versions", h.Commit)
	mux.HandleFunc("GET /v1/workflows/{id}/versions/{versionId}", h.GetVersion)
	mux.HandleFunc("POST /v1/workflows/{id}/versions/{versionId}/restore", h.Restore)
	mux.HandleFunc("POST /v1/workflows/{id}/commit", h.Commit)
	mux.HandleFunc("POST /v1/workflows/{id}/maybe-commit", h.MaybeCommit)

	mux.HandleFunc("GET /v1/workflows/{id}/working-copy", h.GetWorkingCopy)
	mux.HandleFunc("PUT /v1/workflows/{id}/working-copy", h.PutWorkingCopy)
	mux.HandleFunc("POST /v1/workflows/{id}/working-copy", h.PutWorkingCopy)

	mux.HandleFunc("POST /v1/workflows/{id}/validate", h.ValidateWorkflow)
	mux.HandleFunc("POST /v1/validate", h.ValidateGraph)
	mux.HandleFunc("GET /v1/workflows/{id}/edit", h.Edit)

	return mux
}

// ----- Health -----

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, proto.HealthResponse{
		Status:  "ok",
		Version: h.cfg.Version,
	})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, proto.HealthResponse{
		Status:  "ready",
		Version: h.cfg.Version,
	})
}

// ----- Workflows -----

func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req proto.CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required", nil)
		return
	}

	g := graph.Graph{}
	if req.Graph != nil {
		g = *req.Graph
	}
	graphJSON, err := json.Marshal(g)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode graph", err)
		return
	}

	rec := &store.Workflow{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Graph:       graphJSON,
	}
	if err := h.db.CreateWorkflow(rec); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create workflow", err)
		return
	}
	writeJSON(w, http.StatusCreated, workflowResponse(rec, g))
}

func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	recs, err := h.db.ListWorkflows()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list workflows", err)
		return
	}
	resp := proto.WorkflowsListResponse{Workflows: make([]*proto.WorkflowEntry, 0, len(recs))}
	for _, rec := range recs {
		resp.Workflows = append(resp.Workflows, &proto.WorkflowEntry{
			ID:          rec.ID,
			Name:        rec.Name,
			Description: rec.Description,
			Status:      rec.Status,
			Version:     rec.Version,
			CreatedAt:   rec.CreatedAt,
			UpdatedAt:   rec.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetWorkflow returns the workflow document. When the workflow is open in a
// live session the in-memory state wins; otherwise the working copy, when
// present, takes precedence over the last saved record.
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if sess, err := h.sessions.Get(id); err == nil {
		doc := sess.Store.Snapshot()
		rec, err := h.db.GetWorkflow(id)
		if err != nil {
			h.storeError(w, err)
			return
		}
		resp := workflowResponse(rec, doc.Graph)
		resp.Name = doc.Name
		resp.Description = doc.Description
		resp.UpdatedAt = doc.UpdatedAt
		writeJSON(w, http.StatusOK, resp)
		return
	}

	rec, err := h.db.GetWorkflow(id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	graphJSON := rec.Graph
	if wc, err := h.db.GetWorkingCopy(id); err == nil {
		graphJSON = wc.Graph
	}
	var g graph.Graph
	if err := json.Unmarshal(graphJSON, &g); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt graph", err)
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse(rec, g))
}

func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req proto.UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rec, err := h.db.GetWorkflow(id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	if req.Name != nil {
		rec.Name = *req.Name
	}
	if req.Description != nil {
		rec.Description = *req.Description
	}
	structural := false
	if req.Graph != nil {
		graphJSON, err := json.Marshal(req.Graph)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode graph", err)
			return
		}
		rec.Graph = graphJSON
		structural = true
	}
	if err := h.db.UpdateWorkflow(rec, structural); err != nil {
		h.storeError(w, err)
		return
	}

	// Propagate into a live session so open editors see the replacement.
	if req.Graph != nil {
		if sess, err := h.sessions.Get(id); err == nil {
			sess.Store.Replace(rec.Name, rec.Description, *req.Graph)
		}
	}

	var g graph.Graph
	if err := json.Unmarshal(rec.Graph, &g); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt graph", err)
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse(rec, g))
}

func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.sessions.Close(id)
	if err := h.db.DeleteWorkflow(id); err != nil {
		h.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DuplicateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.db.DuplicateWorkflow(id, uuid.New().String(), "")
	if err != nil {
		h.storeError(w, err)
		return
	}
	var g graph.Graph
	if err := json.Unmarshal(rec.Graph, &g); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt graph", err)
		return
	}
	writeJSON(w, http.StatusCreated, workflowResponse(rec, g))
}

var validStatuses = map[string]bool{"draft": true, "active": true, "archived": true}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req proto.StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if !validStatuses[req.Status] {
		writeError(w, http.StatusBadRequest, "invalid status", nil)
		return
	}
	if err := h.db.SetWorkflowStatus(id, req.Status); err != nil {
		h.storeError(w, err)
		return
	}
	rec, err := h.db.GetWorkflow(id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &proto.WorkflowEntry{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Status:      rec.Status,
		Version:     rec.Version,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	})
}

// ----- Versions -----

func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.db.GetWorkflow(id); err != nil {
		h.storeError(w, err)
		return
	}
	vs, err := h.db.ListVersions(id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	resp := proto.VersionsListResponse{Versions: make([]*proto.VersionEntry, 0, len(vs))}
	for _, v := range vs {
		resp.Versions = append(resp.Versions, versionEntry(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Commit cuts an explicit version. An open session has its working copy
// synced first (no version cut) so the one commit captures the latest
// edits.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req proto.CommitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	if sess, err := h.sessions.Get(id); err == nil {
		if err := sess.Autosaver.Sync(); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to flush session", err)
			return
		}
	}

	label := req.Message
	if label == "" {
		label = "manual"
	}
	v, err := h.versions.Commit(id, label)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, versionEntry(v))
}

func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.db.GetVersionOf(r.PathValue("id"), r.PathValue("versionId"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proto.VersionResponse{
		VersionEntry: *versionEntry(v),
		Snapshot:     json.RawMessage(v.Snapshot),
	})
}

// Restore replaces the live graph with a prior version's snapshot. An open
// session gets its document swapped and its history reset.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g, v, err := h.versions.Restore(id, r.PathValue("versionId"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	if sess, err := h.sessions.Get(id); err == nil {
		sess.Store.Replace(v.Name, v.Description, g)
	}
	rec, err := h.db.GetWorkflow(id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse(rec, g))
}

func (h *Handler) MaybeCommit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req proto.MaybeCommitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	opts := version.CommitOptions{
		MinIntervalSec: req.MinIntervalSec,
		Threshold:      req.Threshold,
	}
	if opts.Threshold <= 0 {
		opts.Threshold = h.cfg.CommitThreshold
	}
	if opts.MinIntervalSec <= 0 {
		opts.MinIntervalSec = int(h.cfg.CommitMinInterval.Seconds())
	}

	res, err := h.versions.MaybeCommit(id, opts)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proto.MaybeCommitResponse{
		Committed:     res.Committed,
		VersionID:     res.VersionID,
		VersionNumber: res.VersionNumber,
		Score:         res.Score,
		Summary:       res.Summary,
	})
}

// ----- Working copy -----

func (h *Handler) GetWorkingCopy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wc, err := h.db.GetWorkingCopy(id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	var g graph.Graph
	if err := json.Unmarshal(wc.Graph, &g); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt graph", err)
		return
	}
	writeJSON(w, http.StatusOK, proto.WorkingCopyResponse{
		WorkflowID: wc.WorkflowID,
		Graph:      g,
		UpdatedAt:  wc.UpdatedAt,
	})
}

func (h *Handler) PutWorkingCopy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req proto.WorkingCopyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if _, err := h.db.GetWorkflow(id); err != nil {
		h.storeError(w, err)
		return
	}
	if err := h.versions.SaveWorkingCopy(id, req.Graph); err != nil {
		h.storeError(w, err)
		return
	}
	wc, err := h.db.GetWorkingCopy(id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proto.WorkingCopyResponse{
		WorkflowID: wc.WorkflowID,
		Graph:      req.Graph,
		UpdatedAt:  wc.UpdatedAt,
	})
}

// ----- Validation -----

// ValidateWorkflow lints a workflow's current graph: the live session state
// when open, the working copy when present, the saved record otherwise.
func (h *Handler) ValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var g graph.Graph
	if sess, err := h.sessions.Get(id); err == nil {
		g = sess.Store.GraphSnapshot()
	} else {
		rec, err := h.db.GetWorkflow(id)
		if err != nil {
			h.storeError(w, err)
			return
		}
		graphJSON := rec.Graph
		if wc, err := h.db.GetWorkingCopy(id); err == nil {
			graphJSON = wc.Graph
		}
		if err := json.Unmarshal(graphJSON, &g); err != nil {
			writeError(w, http.StatusInternalServerError, "corrupt graph", err)
			return
		}
	}
	writeValidation(w, g)
}

func (h *Handler) ValidateGraph(w http.ResponseWriter, r *http.Request) {
	var g graph.Graph
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	writeValidation(w, g)
}

func writeValidation(w http.ResponseWriter, g graph.Graph) {
	issues := graph.Validate(g)
	valid := true
	for _, iss := range issues {
		if iss.Severity == graph.SeverityError {
			valid = false
			break
		}
	}
	if issues == nil {
		issues = []graph.Issue{}
	}
	writeJSON(w, http.StatusOK, proto.ValidateResponse{Valid: valid, Issues: issues})
}

// ----- Helpers -----

func workflowResponse(rec *store.Workflow, g graph.Graph) *proto.WorkflowResponse {
	return &proto.WorkflowResponse{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Status:      rec.Status,
		Graph:       g,
		Version:     rec.Version,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func versionEntry(v *store.Version) *proto.VersionEntry {
	return &proto.VersionEntry{
		ID:            v.ID,
		WorkflowID:    v.WorkflowID,
		VersionNumber: v.VersionNumber,
		Name:          v.Name,
		Label:         v.Label,
		Description:   v.Description,
		Summary:       v.Summary,
		SemanticHash:  v.SemanticHash,
		CreatedAt:     v.CreatedAt,
	}
}

// storeError maps persistence sentinels onto HTTP statuses.
func (h *Handler) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "workflow not found", nil)
	case errors.Is(err, store.ErrVersionNotFound):
		writeError(w, http.StatusNotFound, "version not found", nil)
	case errors.Is(err, store.ErrWorkingCopyNotFound):
		writeError(w, http.StatusNotFound, "working copy not found", nil)
	case errors.Is(err, store.ErrWrongWorkflow):
		writeError(w, http.StatusNotFound, "version not found for workflow", nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := proto.ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
