package graph

// MaxHistory bounds the undo stack; the oldest entries are dropped silently.
const MaxHistory = 50

// historyEntry is a full snapshot of the session: document, viewport, and
// selection. Entries are immutable once pushed.
type historyEntry struct {
	Time     int64
	Action   string
	Doc      Workflow
	Viewport Viewport
	SelNodes []string
	SelEdges []string
}

// PushHistory records the current state under an action label. Pushing
// clears the redo stack: once a new edit lands after an undo, the undone
// branch is gone.
func (s *Store) PushHistory(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.undo = append(s.undo, s.captureLocked(action))
	if len(s.undo) > MaxHistory {
		s.undo = s.undo[len(s.undo)-MaxHistory:]
	}
	s.redo = nil
}

// Undo restores the most recent history entry, moving the current live
// state onto the redo stack first. Returns false (a benign no-op) when the
// undo stack is empty.
func (s *Store) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.undo) == 0 {
		return false
	}
	s.redo = append(s.redo, s.captureLocked("undo"))
	entry := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.restoreLocked(entry)
	return true
}

// Redo is the mirror of Undo.
func (s *Store) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.redo) == 0 {
		return false
	}
	s.undo = append(s.undo, s.captureLocked("redo"))
	entry := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.restoreLocked(entry)
	return true
}

// HistoryDepths reports the undo and redo stack sizes.
func (s *Store) HistoryDepths() (undo, redo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo), len(s.redo)
}

// Replace swaps in a restored document state: name, description, and graph
// come from the snapshot, history and selection are reset so that undo
// cannot cross the restore boundary.
func (s *Store) Replace(name, description string, g Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Name = name
	s.doc.Description = description
	s.doc.Graph = g.Clone()
	s.undo = nil
	s.redo = nil
	s.selNodes = make(map[string]struct{})
	s.selEdges = make(map[string]struct{})
	s.touch()
}

func (s *Store) captureLocked(action string) historyEntry {
	return historyEntry{
		Time:     NowMs(),
		Action:   action,
		Doc:      s.doc.Clone(),
		Viewport: s.viewport,
		SelNodes: sortedKeys(s.selNodes),
		SelEdges: sortedKeys(s.selEdges),
	}
}

func (s *Store) restoreLocked(entry historyEntry) {
	restored := entry.Doc.Clone()
	s.doc = &restored
	s.viewport = entry.Viewport
	s.selNodes = make(map[string]struct{}, len(entry.SelNodes))
	for _, id := range entry.SelNodes {
		s.selNodes[id] = struct{}{}
	}
	s.selEdges = make(map[string]struct{}, len(entry.SelEdges))
	for _, id := range entry.SelEdges {
		s.selEdges[id] = struct{}{}
	}
	if s.onMutate != nil {
		s.onMutate()
	}
}
