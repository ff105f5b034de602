// Package store persists session metadata to SQLite. Writes are
// append-only and flow through a buffered queue drained by a single
// goroutine, so recording never blocks the execution path.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"webforge/internal/logging"
	"webforge/internal/types"
)

// record is one queued write.
type record struct {
	kind    string
	session *types.SessionRecord
	conv    *types.ConversationEntry
	step    *stepRecord
	tool    *types.ToolExecution
	flushed chan struct{}
}

type stepRecord struct {
	sessionID string
	result    types.StepResult
}

// SQLiteStore implements types.MetadataSink on a local SQLite file.
type SQLiteStore struct {
	db    *sql.DB
	queue chan record
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	dropped int
}

// NewSQLiteStore opens (or creates) the database at path and starts the
// drain goroutine.
func NewSQLiteStore(path string, queueSize int) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &SQLiteStore{
		db:    db,
		queue: make(chan record, queueSize),
		done:  make(chan struct{}),
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	go s.drain()
	logging.Store("metadata store ready at %s (queue %d)", path, queueSize)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		workspace TEXT NOT NULL,
		framework TEXT NOT NULL,
		phase TEXT NOT NULL,
		description TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_session ON sessions(session_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tokens_used INTEGER DEFAULT 0,
		model TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);

	CREATE TABLE IF NOT EXISTS step_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		path TEXT NOT NULL,
		action TEXT NOT NULL,
		bytes INTEGER DEFAULT 0,
		reason TEXT,
		turn_id TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_step_results_session ON step_results(session_id);

	CREATE TABLE IF NOT EXISTS tool_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		target TEXT,
		success INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_executions_session ON tool_executions(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// RecordSession queues a session lifecycle row. Never blocks: when the
// queue is full the record is dropped and counted.
func (s *SQLiteStore) RecordSession(rec types.SessionRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.enqueue(record{kind: "session", session: &rec})
}

// RecordConversation queues one LLM exchange row.
func (s *SQLiteStore) RecordConversation(entry types.ConversationEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.enqueue(record{kind: "conversation", conv: &entry})
}

// RecordStepResult queues one step outcome row.
func (s *SQLiteStore) RecordStepResult(sessionID string, result types.StepResult) {
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	s.enqueue(record{kind: "step", step: &stepRecord{sessionID: sessionID, result: result}})
}

// RecordToolExecution queues one tool invocation row.
func (s *SQLiteStore) RecordToolExecution(exec types.ToolExecution) {
	if exec.Timestamp.IsZero() {
		exec.Timestamp = time.Now().UTC()
	}
	s.enqueue(record{kind: "tool", tool: &exec})
}

func (s *SQLiteStore) enqueue(r record) {
	select {
	case s.queue <- r:
	default:
		s.mu.Lock()
		s.dropped++
		n := s.dropped
		s.mu.Unlock()
		logging.StoreError("metadata queue full, dropped %s record (%d total)", r.kind, n)
	}
}

// Dropped reports how many records were discarded because the queue
// was full.
func (s *SQLiteStore) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Flush blocks until every record queued before the call has been
// written. Intended for tests and shutdown paths.
func (s *SQLiteStore) Flush() {
	ack := make(chan struct{})
	s.queue <- record{kind: "flush", flushed: ack}
	<-ack
}

func (s *SQLiteStore) drain() {
	for r := range s.queue {
		if r.kind == "flush" {
			close(r.flushed)
			continue
		}
		if err := s.write(r); err != nil {
			logging.StoreError("failed to persist %s record: %v", r.kind, err)
		}
	}
	close(s.done)
}

func (s *SQLiteStore) write(r record) error {
	switch r.kind {
	case "session":
		_, err := s.db.Exec(
			`INSERT INTO sessions (session_id, project_id, workspace, framework, phase, description, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.session.SessionID, r.session.ProjectID, r.session.Workspace,
			string(r.session.Framework), string(r.session.Phase), r.session.Description, r.session.Timestamp)
		return err
	case "conversation":
		_, err := s.db.Exec(
			`INSERT INTO conversations (session_id, role, content, tokens_used, model, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.conv.SessionID, string(r.conv.Role), r.conv.Content, r.conv.TokensUsed, r.conv.Model, r.conv.Timestamp)
		return err
	case "step":
		_, err := s.db.Exec(
			`INSERT INTO step_results (session_id, path, action, bytes, reason, turn_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.step.sessionID, r.step.result.Path, string(r.step.result.Action),
			r.step.result.Bytes, r.step.result.Reason, r.step.result.TurnID, r.step.result.Timestamp)
		return err
	case "tool":
		_, err := s.db.Exec(
			`INSERT INTO tool_executions (session_id, tool, target, success, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			r.tool.SessionID, r.tool.Tool, r.tool.Target, r.tool.Success, r.tool.Timestamp)
		return err
	}
	return fmt.Errorf("unknown record kind %q", r.kind)
}

// SessionPhases returns the recorded phase history for a session,
// oldest first. Read path for diagnostics and tests.
func (s *SQLiteStore) SessionPhases(sessionID string) ([]types.Phase, error) {
	rows, err := s.db.Query(
		`SELECT phase FROM sessions WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phases []types.Phase
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		phases = append(phases, types.Phase(p))
	}
	return phases, rows.Err()
}

// StepResults returns the recorded step outcomes for a session in
// insertion order.
func (s *SQLiteStore) StepResults(sessionID string) ([]types.StepResult, error) {
	rows, err := s.db.Query(
		`SELECT path, action, bytes, reason, turn_id, created_at
		 FROM step_results WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.StepResult
	for rows.Next() {
		var r types.StepResult
		var action string
		if err := rows.Scan(&r.Path, &action, &r.Bytes, &r.Reason, &r.TurnID, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Action = types.StepAction(action)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close drains pending writes and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		close(s.queue)
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			logging.StoreError("timed out waiting for metadata queue to drain")
		}
		err = s.db.Close()
	})
	return err
}
