package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"flowlab/graph"
	"flowlab/proto"
	"flowlab/session"
	"flowlab/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // editor runs on a different origin in development
	},
}

// Edit handles the WebSocket editing channel. Each message is one EditOp
// applied to the workflow's live session; every op is acknowledged with an
// EditResult carrying the history depths. Mutating ops push an undo entry
// before applying, so each message is one undo step.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := h.sessions.Open(id)
	if err != nil {
		if errors.Is(err, store.ErrWorkflowNotFound) {
			http.Error(w, "workflow not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var op proto.EditOp
		if err := conn.ReadJSON(&op); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("websocket read for %s: %v", id, err)
			}
			return
		}

		res := applyOp(sess, &op)
		res.Undo, res.Redo = sess.Store.HistoryDepths()
		if err := conn.WriteJSON(res); err != nil {
			return
		}
	}
}

// applyOp dispatches one editing operation. Ops that can fail are checked
// against a snapshot before the undo entry is pushed, so a rejected op
// never pollutes the history.
func applyOp(sess *session.Session, op *proto.EditOp) *proto.EditResult {
	st := sess.Store
	res := &proto.EditResult{Op: op.Op, OK: true}
	fail := func(msg string) *proto.EditResult {
		res.OK = false
		res.Error = msg
		return res
	}

	switch op.Op {
	case "addNode":
		if op.Node == nil {
			return fail("node required")
		}
		st.PushHistory(op.Op)
		res.ID = st.AddNode(*op.Node)

	case "updateNode":
		if op.NodeID == "" || op.Patch == nil {
			return fail("nodeId and patch required")
		}
		g := st.GraphSnapshot()
		if g.Node(op.NodeID) == nil {
			return fail("node not found")
		}
		st.PushHistory(op.Op)
		st.UpdateNode(op.NodeID, *op.Patch)

	case "moveNodes":
		if len(op.NodeIDs) == 0 {
			return fail("nodeIds required")
		}
		st.PushHistory(op.Op)
		st.MoveNodes(op.NodeIDs, op.DX, op.DY)

	case "removeNodes":
		if len(op.NodeIDs) == 0 {
			return fail("nodeIds required")
		}
		st.PushHistory(op.Op)
		st.RemoveNodes(op.NodeIDs)

	case "groupNodes":
		g := st.GraphSnapshot()
		eligible := 0
		for _, id := range op.NodeIDs {
			if n := g.Node(id); n != nil && !graph.IsGroup(n) {
				eligible++
			}
		}
		if eligible < 2 {
			return fail("at least two groupable nodes required")
		}
		st.PushHistory(op.Op)
		res.ID = st.GroupNodes(op.NodeIDs, graph.GroupOptions{Label: op.Label})

	case "ungroupNodes":
		g := st.GraphSnapshot()
		n := g.Node(op.GroupID)
		if n == nil || !graph.IsGroup(n) {
			return fail("group not found")
		}
		st.PushHistory(op.Op)
		st.UngroupNodes(op.GroupID)

	case "addEdge":
		if op.Edge == nil {
			return fail("edge required")
		}
		st.PushHistory(op.Op)
		res.ID = st.AddEdge(*op.Edge)

	case "removeEdges":
		if len(op.EdgeIDs) == 0 {
			return fail("edgeIds required")
		}
		st.PushHistory(op.Op)
		st.RemoveEdges(op.EdgeIDs)

	case "select":
		st.SelectNodes(op.NodeIDs, op.Additive)
		if len(op.EdgeIDs) > 0 {
			st.SelectEdges(op.EdgeIDs, true)
		}

	case "setViewport":
		if op.Viewport == nil {
			return fail("viewport required")
		}
		st.SetViewport(*op.Viewport)

	case "undo":
		if !st.Undo() {
			return fail("nothing to undo")
		}

	case "redo":
		if !st.Redo() {
			return fail("nothing to redo")
		}

	case "save":
		if err := sess.Autosaver.SaveNow(); err != nil {
			return fail("save failed: " + err.Error())
		}

	default:
		return fail("unknown op: " + op.Op)
	}
	return res
}
