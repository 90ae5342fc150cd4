package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowlab/config"
	"flowlab/graph"
	"flowlab/proto"
	"flowlab/session"
	"flowlab/store"
	"flowlab/version"
)

func testRouterSessions(t *testing.T) (http.Handler, *store.DB, *session.Manager) {
	t.Helper()
	db, err := store.OpenDataDir(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	cfg := &config.Config{
		CommitThreshold:   10,
		CommitMinInterval: 5 * time.Minute,
		Version:           "test",
	}
	svc := version.NewService(db)
	sessions := session.NewManager(db, svc, time.Hour)
	t.Cleanup(func() {
		sessions.Shutdown()
		db.Close()
	})
	return NewRouter(db, sessions, svc, cfg), db, sessions
}

func testRouter(t *testing.T) (http.Handler, *store.DB) {
	t.Helper()
	h, db, _ := testRouterSessions(t)
	return h, db
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func createTestWorkflow(t *testing.T, h http.Handler) string {
	t.Helper()
	w := doJSON(t, h, "POST", "/v1/workflows", map[string]any{
		"name": "test flow",
		"graph": map[string]any{
			"nodes": []map[string]any{
				{"id": "t1", "kind": "trigger", "label": "start"},
				{"id": "a1", "kind": "action", "label": "fetch"},
			},
			"edges": []map[string]any{},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	return decode[proto.WorkflowResponse](t, w).ID
}

func TestHealth(t *testing.T) {
	h, _ := testRouter(t)
	w := doJSON(t, h, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	resp := decode[proto.HealthResponse](t, w)
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestCreateAndGetWorkflow(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	w := doJSON(t, h, "GET", "/v1/workflows/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	resp := decode[proto.WorkflowResponse](t, w)
	if resp.Name != "test flow" || resp.Status != "draft" {
		t.Errorf("got %+v", resp)
	}
	if len(resp.Graph.Nodes) != 2 {
		t.Errorf("graph has %d nodes", len(resp.Graph.Nodes))
	}
}

func TestCreateWorkflowRequiresName(t *testing.T) {
	h, _ := testRouter(t)
	w := doJSON(t, h, "POST", "/v1/workflows", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", w.Code)
	}
}

func TestGetMissingWorkflow(t *testing.T) {
	h, _ := testRouter(t)
	w := doJSON(t, h, "GET", "/v1/workflows/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", w.Code)
	}
}

func TestListWorkflows(t *testing.T) {
	h, _ := testRouter(t)
	createTestWorkflow(t, h)

	w := doJSON(t, h, "GET", "/v1/workflows", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	resp := decode[proto.WorkflowsListResponse](t, w)
	if len(resp.Workflows) != 1 {
		t.Errorf("%d workflows", len(resp.Workflows))
	}
}

func TestUpdateWorkflow(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	w := doJSON(t, h, "PUT", "/v1/workflows/"+id, map[string]any{"name": "renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	resp := decode[proto.WorkflowResponse](t, w)
	if resp.Name != "renamed" {
		t.Errorf("name = %q", resp.Name)
	}
	if resp.Version != 1 {
		t.Errorf("metadata-only update bumped version to %d", resp.Version)
	}
}

func TestSetStatus(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	w := doJSON(t, h, "POST", "/v1/workflows/"+id+"/status", map[string]any{"status": "active"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	if resp := decode[proto.WorkflowEntry](t, w); resp.Status != "active" {
		t.Errorf("status = %q", resp.Status)
	}

	w = doJSON(t, h, "POST", "/v1/workflows/"+id+"/status", map[string]any{"status": "bogus"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus status: %d, want 400", w.Code)
	}
}

func TestDuplicateWorkflow(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	w := doJSON(t, h, "POST", "/v1/workflows/"+id+"/duplicate", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("duplicate: %d %s", w.Code, w.Body.String())
	}
	resp := decode[proto.WorkflowResponse](t, w)
	if resp.ID == id {
		t.Error("duplicate kept the source id")
	}
	if resp.Name != "test flow (copy)" {
		t.Errorf("name = %q", resp.Name)
	}
}

func TestCommitAndListVersions(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	w := doJSON(t, h, "POST", "/v1/workflows/"+id+"/versions", map[string]any{"message": "first"})
	if w.Code != http.StatusCreated {
		t.Fatalf("commit: %d %s", w.Code, w.Body.String())
	}
	v := decode[proto.VersionEntry](t, w)
	if v.VersionNumber != 1 || v.Label != "first" {
		t.Errorf("got %+v", v)
	}
	if v.SemanticHash == "" {
		t.Error("semantic hash empty")
	}

	w = doJSON(t, h, "GET", "/v1/workflows/"+id+"/versions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	if resp := decode[proto.VersionsListResponse](t, w); len(resp.Versions) != 1 {
		t.Errorf("%d versions", len(resp.Versions))
	}

	w = doJSON(t, h, "GET", "/v1/workflows/"+id+"/versions/"+v.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get version: %d", w.Code)
	}
	full := decode[proto.VersionResponse](t, w)
	if len(full.Snapshot) == 0 {
		t.Error("snapshot missing")
	}
}

func TestCommitWithOpenSessionCutsOneVersion(t *testing.T) {
	h, db, sessions := testRouterSessions(t)
	id := createTestWorkflow(t, h)

	sess, err := sessions.Open(id)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	sess.Store.PushHistory("addNode")
	sess.Store.AddNode(graph.Node{ID: "a2", Kind: graph.KindAction})

	w := doJSON(t, h, "POST", "/v1/workflows/"+id+"/commit", map[string]any{"message": "milestone"})
	if w.Code != http.StatusCreated {
		t.Fatalf("commit: %d %s", w.Code, w.Body.String())
	}
	v := decode[proto.VersionEntry](t, w)
	if v.Label != "milestone" {
		t.Errorf("label = %q", v.Label)
	}

	vs, err := db.ListVersions(id)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(vs) != 1 {
		t.Fatalf("explicit commit produced %d versions, want 1", len(vs))
	}

	full, err := db.GetVersion(v.ID)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	var g graph.Graph
	if err := json.Unmarshal(full.Snapshot, &g); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if g.Node("a2") == nil {
		t.Error("commit missed the session's unsaved edit")
	}
}

func TestMaybeCommitBelowThreshold(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	// Ten points of change (two nodes) meet the threshold; raise it so the
	// request is reported but not committed.
	w := doJSON(t, h, "POST", "/v1/workflows/"+id+"/maybe-commit", map[string]any{"threshold": 50})
	if w.Code != http.StatusOK {
		t.Fatalf("maybe-commit: %d %s", w.Code, w.Body.String())
	}
	resp := decode[proto.MaybeCommitResponse](t, w)
	if resp.Committed {
		t.Error("committed below threshold")
	}
	if resp.Score != 10 {
		t.Errorf("score = %d, want 10", resp.Score)
	}
}

func TestMaybeCommitFirstVersion(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	w := doJSON(t, h, "POST", "/v1/workflows/"+id+"/maybe-commit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("maybe-commit: %d %s", w.Code, w.Body.String())
	}
	resp := decode[proto.MaybeCommitResponse](t, w)
	if !resp.Committed {
		t.Errorf("not committed: %+v", resp)
	}
}

func TestWorkingCopyRoundTrip(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	w := doJSON(t, h, "GET", "/v1/workflows/"+id+"/working-copy", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get before write: %d", w.Code)
	}

	w = doJSON(t, h, "PUT", "/v1/workflows/"+id+"/working-copy", map[string]any{
		"graph": map[string]any{
			"nodes": []map[string]any{{"id": "draft1", "kind": "action"}},
			"edges": []map[string]any{},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, "GET", "/v1/workflows/"+id+"/working-copy", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	resp := decode[proto.WorkingCopyResponse](t, w)
	if len(resp.Graph.Nodes) != 1 || resp.Graph.Nodes[0].ID != "draft1" {
		t.Errorf("graph = %+v", resp.Graph)
	}
}

func TestRestoreVersion(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	w := doJSON(t, h, "POST", "/v1/workflows/"+id+"/versions", map[string]any{"message": "base"})
	if w.Code != http.StatusCreated {
		t.Fatalf("commit: %d", w.Code)
	}
	v := decode[proto.VersionEntry](t, w)

	// Diverge the working copy, then restore.
	w = doJSON(t, h, "PUT", "/v1/workflows/"+id+"/working-copy", map[string]any{
		"graph": map[string]any{"nodes": []map[string]any{}, "edges": []map[string]any{}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put working copy: %d", w.Code)
	}

	w = doJSON(t, h, "POST", "/v1/workflows/"+id+"/versions/"+v.ID+"/restore", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restore: %d %s", w.Code, w.Body.String())
	}
	resp := decode[proto.WorkflowResponse](t, w)
	if len(resp.Graph.Nodes) != 2 {
		t.Errorf("restored graph has %d nodes, want 2", len(resp.Graph.Nodes))
	}
}

func TestRestoreKeepsDescriptionInSession(t *testing.T) {
	h, _, sessions := testRouterSessions(t)

	w := doJSON(t, h, "POST", "/v1/workflows", map[string]any{
		"name":        "orders",
		"description": "nightly order sync",
		"graph": map[string]any{
			"nodes": []map[string]any{{"id": "t1", "kind": "trigger"}},
			"edges": []map[string]any{},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	id := decode[proto.WorkflowResponse](t, w).ID

	w = doJSON(t, h, "POST", "/v1/workflows/"+id+"/versions", map[string]any{"message": "base"})
	if w.Code != http.StatusCreated {
		t.Fatalf("commit: %d", w.Code)
	}
	v := decode[proto.VersionEntry](t, w)

	if _, err := sessions.Open(id); err != nil {
		t.Fatalf("open session: %v", err)
	}

	w = doJSON(t, h, "POST", "/v1/workflows/"+id+"/versions/"+v.ID+"/restore", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restore: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, "GET", "/v1/workflows/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	resp := decode[proto.WorkflowResponse](t, w)
	if resp.Description != "nightly order sync" {
		t.Errorf("description after restore = %q, want the original text", resp.Description)
	}
}

func TestRestoreWrongWorkflow(t *testing.T) {
	h, _ := testRouter(t)
	a := createTestWorkflow(t, h)
	b := createTestWorkflow(t, h)

	w := doJSON(t, h, "POST", "/v1/workflows/"+a+"/versions", map[string]any{})
	if w.Code != http.StatusCreated {
		t.Fatalf("commit: %d", w.Code)
	}
	v := decode[proto.VersionEntry](t, w)

	w = doJSON(t, h, "POST", "/v1/workflows/"+b+"/versions/"+v.ID+"/restore", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("cross-workflow restore: %d, want 404", w.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	h, _ := testRouter(t)

	w := doJSON(t, h, "POST", "/v1/validate", map[string]any{
		"nodes": []map[string]any{{"id": "a", "kind": "action"}},
		"edges": []map[string]any{},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", w.Code, w.Body.String())
	}
	resp := decode[proto.ValidateResponse](t, w)
	if resp.Valid {
		t.Error("graph without trigger reported valid")
	}
	found := false
	for _, iss := range resp.Issues {
		if iss.Code == "missing_trigger" {
			found = true
		}
	}
	if !found {
		t.Errorf("issues = %+v", resp.Issues)
	}
}

func TestValidateWorkflowEndpoint(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	w := doJSON(t, h, "POST", "/v1/workflows/"+id+"/validate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", w.Code, w.Body.String())
	}
	resp := decode[proto.ValidateResponse](t, w)
	if !resp.Valid {
		t.Errorf("workflow with one trigger reported invalid: %+v", resp.Issues)
	}
}

func TestDeleteWorkflow(t *testing.T) {
	h, _ := testRouter(t)
	id := createTestWorkflow(t, h)

	w := doJSON(t, h, "DELETE", "/v1/workflows/"+id, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	w = doJSON(t, h, "GET", "/v1/workflows/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d", w.Code)
	}
}
