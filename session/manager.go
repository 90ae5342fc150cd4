// Package session keeps one live editing session per open workflow: the
// in-memory document store, its undo history, and the autosaver bound to
// it. Sessions are created on first touch and reaped after idling.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"flowlab/graph"
	"flowlab/store"
	"flowlab/version"
)

// ErrSessionNotFound is returned when an operation names a workflow with no
// open session and the workflow does not exist either.
var ErrSessionNotFound = errors.New("session not found")

const (
	defaultIdleTimeout     = 30 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

// Session is one workflow being edited.
type Session struct {
	WorkflowID string
	Store      *graph.Store
	Autosaver  *version.Autosaver

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Manager owns all live sessions.
type Manager struct {
	db  *store.DB
	svc *version.Service

	autosaveInterval time.Duration
	idleTimeout      time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a session manager and starts its idle reaper.
func NewManager(db *store.DB, svc *version.Service, autosaveInterval time.Duration) *Manager {
	m := &Manager{
		db:               db,
		svc:              svc,
		autosaveInterval: autosaveInterval,
		idleTimeout:      defaultIdleTimeout,
		sessions:         make(map[string]*Session),
		stop:             make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Open returns the live session for a workflow, creating one if needed.
// A new session loads the working copy when one exists, so an editor picks
// up exactly where the last one left off, committed or not.
func (m *Manager) Open(workflowID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[workflowID]; ok {
		m.mu.Unlock()
		s.touch()
		return s, nil
	}
	m.mu.Unlock()

	w, err := m.loadWorkflow(workflowID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[workflowID]; ok {
		s.touch()
		return s, nil
	}

	st := graph.NewStore(w)
	sav := version.NewAutosaver(m.svc, st, m.autosaveInterval)
	sav.Start()
	s := &Session{
		WorkflowID: workflowID,
		Store:      st,
		Autosaver:  sav,
		lastUsed:   time.Now(),
	}
	m.sessions[workflowID] = s
	return s, nil
}

// Get returns the live session for a workflow, or ErrSessionNotFound.
func (m *Manager) Get(workflowID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[workflowID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch()
	return s, nil
}

// Close flushes and tears down one session. No-op when none is open.
func (m *Manager) Close(workflowID string) {
	m.mu.Lock()
	s, ok := m.sessions[workflowID]
	if ok {
		delete(m.sessions, workflowID)
	}
	m.mu.Unlock()
	if ok {
		s.Autosaver.Stop()
	}
}

// Shutdown stops the reaper and closes every session, flushing each.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Autosaver.Stop()
	}
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().Add(-m.idleTimeout)
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range idle {
		log.Printf("session: closing idle session for %s", s.WorkflowID)
		s.Autosaver.Stop()
	}
}

// loadWorkflow assembles the in-memory document from the record store,
// preferring the working copy's graph over the workflow record's.
func (m *Manager) loadWorkflow(workflowID string) (*graph.Workflow, error) {
	rec, err := m.db.GetWorkflow(workflowID)
	if err != nil {
		return nil, err
	}

	graphJSON := rec.Graph
	if wc, err := m.db.GetWorkingCopy(workflowID); err == nil {
		graphJSON = wc.Graph
	} else if !errors.Is(err, store.ErrWorkingCopyNotFound) {
		return nil, err
	}

	var g graph.Graph
	if err := json.Unmarshal(graphJSON, &g); err != nil {
		return nil, fmt.Errorf("decoding graph for %s: %w", workflowID, err)
	}

	return &graph.Workflow{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Status:      rec.Status,
		Graph:       g,
		Version:     rec.Version,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}
