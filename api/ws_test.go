package api

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"flowlab/graph"
	"flowlab/proto"
)

var nodeFixture = graph.Node{Label: "step", Kind: graph.KindAction}

func dialEdit(t *testing.T, handler *httptest.Server, workflowID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(handler.URL, "http") + "/v1/workflows/" + workflowID + "/edit"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, op proto.EditOp) proto.EditResult {
	t.Helper()
	if err := conn.WriteJSON(op); err != nil {
		t.Fatalf("write %s: %v", op.Op, err)
	}
	var res proto.EditResult
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read %s ack: %v", op.Op, err)
	}
	return res
}

func TestEditChannel(t *testing.T) {
	h, _ := testRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	id := createTestWorkflow(t, h)
	conn := dialEdit(t, srv, id)

	res := roundTrip(t, conn, proto.EditOp{Op: "addNode", Node: &nodeFixture})
	if !res.OK || res.ID == "" {
		t.Fatalf("addNode ack = %+v", res)
	}
	if res.Undo != 1 {
		t.Errorf("undo depth = %d, want 1", res.Undo)
	}
	added := res.ID

	res = roundTrip(t, conn, proto.EditOp{Op: "undo"})
	if !res.OK {
		t.Fatalf("undo ack = %+v", res)
	}
	if res.Undo != 0 || res.Redo != 1 {
		t.Errorf("depths after undo = %d/%d", res.Undo, res.Redo)
	}

	res = roundTrip(t, conn, proto.EditOp{Op: "redo"})
	if !res.OK {
		t.Fatalf("redo ack = %+v", res)
	}

	res = roundTrip(t, conn, proto.EditOp{Op: "removeNodes", NodeIDs: []string{added}})
	if !res.OK {
		t.Fatalf("removeNodes ack = %+v", res)
	}
}

func TestEditChannelRejectsUnknownOp(t *testing.T) {
	h, _ := testRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	id := createTestWorkflow(t, h)
	conn := dialEdit(t, srv, id)

	res := roundTrip(t, conn, proto.EditOp{Op: "explode"})
	if res.OK {
		t.Error("unknown op accepted")
	}
}

func TestEditChannelMissingWorkflow(t *testing.T) {
	h, _ := testRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/workflows/ghost/edit"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("dial for missing workflow succeeded")
	}
}

func TestEditChannelSave(t *testing.T) {
	h, db := testRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	id := createTestWorkflow(t, h)
	conn := dialEdit(t, srv, id)

	res := roundTrip(t, conn, proto.EditOp{Op: "addNode", Node: &nodeFixture})
	if !res.OK {
		t.Fatalf("addNode ack = %+v", res)
	}
	res = roundTrip(t, conn, proto.EditOp{Op: "save"})
	if !res.OK {
		t.Fatalf("save ack = %+v", res)
	}

	if _, err := db.GetWorkingCopy(id); err != nil {
		t.Errorf("working copy after save: %v", err)
	}
	if _, err := db.LatestVersion(id); err != nil {
		t.Errorf("version after save: %v", err)
	}
}
