// Package store provides SQLite-backed persistence for workflows, their
// append-only version records, and the per-workflow working-copy slot.
package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"flowlab/graph"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

var (
	ErrWorkflowNotFound    = errors.New("workflow not found")
	ErrVersionNotFound     = errors.New("version not found")
	ErrWorkingCopyNotFound = errors.New("working copy not found")
	// ErrWrongWorkflow is returned when a version is addressed through a
	// workflow that does not own it.
	ErrWrongWorkflow = errors.New("version belongs to a different workflow")
)

// Version snapshots are stored zstd-compressed; canonical graph JSON
// compresses well and old versions are rarely read.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// DB wraps a SQLite connection for flowlab storage.
type DB struct {
	conn *sql.DB
	path string
}

// OpenDataDir opens or creates the database under the given data directory.
func OpenDataDir(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return Open(filepath.Join(dir, "flowlab.db"))
}

// Open opens a database at the given path, applying pragmas and schema.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	db := &DB{conn: conn, path: dbPath}

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// ----- Workflows -----

// Workflow is the persisted workflow record. Graph holds the raw graph
// JSON; the storage layer treats it as opaque.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Status      string
	Graph       []byte
	Version     int
	CreatedAt   int64
	UpdatedAt   int64
}

// CreateWorkflow inserts a new workflow record. ID must be set by the
// caller; zero timestamps are filled in.
func (db *DB) CreateWorkflow(w *Workflow) error {
	now := graph.NowMs()
	if w.CreatedAt == 0 {
		w.CreatedAt = now
	}
	if w.UpdatedAt == 0 {
		w.UpdatedAt = now
	}
	if w.Status == "" {
		w.Status = "draft"
	}
	if w.Version == 0 {
		w.Version = 1
	}
	_, err := db.conn.Exec(
		`INSERT INTO workflows (id, name, description, status, graph, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Description, w.Status, string(w.Graph), w.Version, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by id.
func (db *DB) GetWorkflow(id string) (*Workflow, error) {
	var w Workflow
	var graphJSON string
	err := db.conn.QueryRow(
		`SELECT id, name, description, status, graph, version, created_at, updated_at
		 FROM workflows WHERE id = ?`, id,
	).Scan(&w.ID, &w.Name, &w.Description, &w.Status, &graphJSON, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying workflow: %w", err)
	}
	w.Graph = []byte(graphJSON)
	return &w, nil
}

// UpdateWorkflow replaces a workflow's mutable fields. When structural is
// true the version counter is bumped.
func (db *DB) UpdateWorkflow(w *Workflow, structural bool) error {
	bump := 0
	if structural {
		bump = 1
	}
	res, err := db.conn.Exec(
		`UPDATE workflows
		 SET name = ?, description = ?, status = ?, graph = ?, version = version + ?, updated_at = ?
		 WHERE id = ?`,
		w.Name, w.Description, w.Status, string(w.Graph), bump, graph.NowMs(), w.ID,
	)
	if err != nil {
		return fmt.Errorf("updating workflow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating workflow: %w", err)
	}
	if n == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// TouchWorkflow bumps only updated_at, for restore and working-copy writes.
func (db *DB) TouchWorkflow(id string) error {
	res, err := db.conn.Exec(
		`UPDATE workflows SET updated_at = ? WHERE id = ?`, graph.NowMs(), id,
	)
	if err != nil {
		return fmt.Errorf("touching workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// SetWorkflowStatus updates only the status field.
func (db *DB) SetWorkflowStatus(id, status string) error {
	res, err := db.conn.Exec(
		`UPDATE workflows SET status = ?, updated_at = ? WHERE id = ?`,
		status, graph.NowMs(), id,
	)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// DuplicateWorkflow copies a workflow record under a new id and name. The
// copy starts with a fresh version counter and no versions or working copy.
func (db *DB) DuplicateWorkflow(srcID, newID, name string) (*Workflow, error) {
	src, err := db.GetWorkflow(srcID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = src.Name + " (copy)"
	}
	dup := &Workflow{
		ID:          newID,
		Name:        name,
		Description: src.Description,
		Status:      "draft",
		Graph:       src.Graph,
	}
	if err := db.CreateWorkflow(dup); err != nil {
		return nil, err
	}
	return dup, nil
}

// ListWorkflows returns all workflow records, newest first, without graphs.
func (db *DB) ListWorkflows() ([]*Workflow, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, description, status, version, created_at, updated_at
		 FROM workflows ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying workflows: %w", err)
	}
	defer rows.Close()

	var out []*Workflow
	for rows.Next() {
		var w Workflow
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.Status, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning workflow: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes a workflow and, via foreign keys, its versions and
// working copy.
func (db *DB) DeleteWorkflow(id string) error {
	res, err := db.conn.Exec(`DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// ----- Versions -----

// Version is an immutable snapshot record. Snapshot holds the canonical
// graph JSON (decompressed in memory, zstd at rest). Name and Description
// capture the workflow's own metadata at cut time; Summary is the change
// summary against the previous version.
type Version struct {
	ID            string
	WorkflowID    string
	VersionNumber int
	Name          string
	Label         string
	Description   string
	Summary       string
	Snapshot      []byte
	SemanticHash  string
	CreatedAt     int64
}

// InsertVersion appends a version record, assigning the next version number
// for the workflow inside a transaction. The record is never mutated after
// this call.
func (db *DB) InsertVersion(v *Version) error {
	if v.CreatedAt == 0 {
		v.CreatedAt = graph.NowMs()
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM workflows WHERE id = ?`, v.WorkflowID).Scan(&exists); err != nil {
		return fmt.Errorf("checking workflow: %w", err)
	}
	if exists == 0 {
		return ErrWorkflowNotFound
	}

	var next int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM versions WHERE workflow_id = ?`,
		v.WorkflowID,
	).Scan(&next); err != nil {
		return fmt.Errorf("assigning version number: %w", err)
	}
	v.VersionNumber = next

	_, err = tx.Exec(
		`INSERT INTO versions (id, workflow_id, version_number, name, label, description, summary, snapshot, semantic_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.WorkflowID, v.VersionNumber, v.Name, v.Label, v.Description, v.Summary,
		zstdEncoder.EncodeAll(v.Snapshot, nil), v.SemanticHash, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}

	return tx.Commit()
}

// GetVersion retrieves a version by id, decompressing its snapshot.
func (db *DB) GetVersion(id string) (*Version, error) {
	var v Version
	var blob []byte
	err := db.conn.QueryRow(
		`SELECT id, workflow_id, version_number, name, label, description, summary, snapshot, semantic_hash, created_at
		 FROM versions WHERE id = ?`, id,
	).Scan(&v.ID, &v.WorkflowID, &v.VersionNumber, &v.Name, &v.Label, &v.Description, &v.Summary, &blob, &v.SemanticHash, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying version: %w", err)
	}
	snapshot, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	v.Snapshot = snapshot
	return &v, nil
}

// GetVersionOf retrieves a version and verifies it belongs to the given
// workflow, returning ErrWrongWorkflow otherwise.
func (db *DB) GetVersionOf(workflowID, versionID string) (*Version, error) {
	v, err := db.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	if v.WorkflowID != workflowID {
		return nil, ErrWrongWorkflow
	}
	return v, nil
}

// LatestVersion returns the most recent version for a workflow, or
// ErrVersionNotFound when none exists yet.
func (db *DB) LatestVersion(workflowID string) (*Version, error) {
	var id string
	err := db.conn.QueryRow(
		`SELECT id FROM versions WHERE workflow_id = ? ORDER BY version_number DESC LIMIT 1`,
		workflowID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest version: %w", err)
	}
	return db.GetVersion(id)
}

// ListVersions returns version metadata for a workflow, newest first.
// Snapshots are omitted; fetch individual versions to read them.
func (db *DB) ListVersions(workflowID string) ([]*Version, error) {
	rows, err := db.conn.Query(
		`SELECT id, workflow_id, version_number, name, label, description, summary, semantic_hash, created_at
		 FROM versions WHERE workflow_id = ? ORDER BY version_number DESC`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	var out []*Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.WorkflowID, &v.VersionNumber, &v.Name, &v.Label, &v.Description, &v.Summary, &v.SemanticHash, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// ----- Working copies -----

// WorkingCopy is the single mutable "latest state" slot per workflow.
type WorkingCopy struct {
	WorkflowID string
	Graph      []byte
	UpdatedAt  int64
}

// UpsertWorkingCopy writes the working-copy slot. The write is idempotent:
// replaying the same snapshot is harmless.
func (db *DB) UpsertWorkingCopy(workflowID string, graphJSON []byte) error {
	_, err := db.conn.Exec(
		`INSERT INTO working_copies (workflow_id, graph, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET graph = excluded.graph, updated_at = excluded.updated_at`,
		workflowID, string(graphJSON), graph.NowMs(),
	)
	if err != nil {
		return fmt.Errorf("upserting working copy: %w", err)
	}
	return nil
}

// GetWorkingCopy retrieves the working copy for a workflow.
func (db *DB) GetWorkingCopy(workflowID string) (*WorkingCopy, error) {
	var wc WorkingCopy
	var graphJSON string
	err := db.conn.QueryRow(
		`SELECT workflow_id, graph, updated_at FROM working_copies WHERE workflow_id = ?`,
		workflowID,
	).Scan(&wc.WorkflowID, &graphJSON, &wc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWorkingCopyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying working copy: %w", err)
	}
	wc.Graph = []byte(graphJSON)
	return &wc, nil
}
