package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"webforge/internal/logging"
	"webforge/internal/workspace"
)

// Errors the HTTP layer maps to status codes.
var (
	ErrNotFound       = errors.New("session not found")
	ErrAlreadyRunning = errors.New("session already running")
)

// Manager is the registry of live sessions, indexed by session id and
// by project id.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	byProject map[string]string // projectID -> sessionID (latest)
	ttl       time.Duration
}

// NewManager creates a Manager. ttl bounds how long a terminal session
// is retained after its last activity.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		byProject: make(map[string]string),
		ttl:       ttl,
	}
}

// Create registers a fresh session over ws owned by userID (opaque,
// may be empty). cont marks a continuation run on an existing project.
func (m *Manager) Create(description, userID string, ws *workspace.Workspace, cont bool) (*Session, error) {
	projectID := workspace.ProjectID(ws.Root())

	m.mu.Lock()
	defer m.mu.Unlock()

	if prevID, ok := m.byProject[projectID]; ok {
		if prev, ok := m.sessions[prevID]; ok && !prev.Phase().Terminal() {
			return nil, fmt.Errorf("%w: project %s has active session %s", ErrAlreadyRunning, projectID, prevID)
		}
	}

	sess := newSession(uuid.NewString(), projectID, description, ws, cont)
	sess.UserID = userID
	m.sessions[sess.ID] = sess
	m.byProject[projectID] = sess.ID

	logging.Session("created session %s for project %s (continue=%v)", sess.ID, projectID, cont)
	return sess, nil
}

// Get returns the session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// GetByProject returns the most recent session for a project id.
func (m *Manager) GetByProject(projectID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sid, ok := m.byProject[projectID]; ok {
		if sess, ok := m.sessions[sid]; ok {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
}

// Resolve accepts either a session id or a project id.
func (m *Manager) Resolve(id string) (*Session, error) {
	if sess, err := m.Get(id); err == nil {
		return sess, nil
	}
	return m.GetByProject(id)
}

// List returns snapshots of every registered session, newest first.
func (m *Manager) List() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Cancel requests cancellation of a session. Idempotent: cancelling a
// terminal or already-cancelled session succeeds without effect.
func (m *Manager) Cancel(id string) error {
	sess, err := m.Resolve(id)
	if err != nil {
		return err
	}
	sess.Cancel()
	logging.Session("cancel requested for session %s", sess.ID)
	return nil
}

// Cleanup removes terminal sessions idle longer than olderThan and
// returns how many were removed. olderThan 0 falls back to the ttl.
func (m *Manager) Cleanup(olderThan time.Duration) int {
	if olderThan <= 0 {
		olderThan = m.ttl
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sess := range m.sessions {
		if !sess.Phase().Terminal() || sess.idleSince().After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		if m.byProject[sess.ProjectID] == id {
			delete(m.byProject, sess.ProjectID)
		}
		removed++
	}
	if removed > 0 {
		logging.Session("cleanup removed %d sessions older than %v", removed, olderThan)
	}
	return removed
}

// StartGC runs Cleanup periodically until ctx is done.
func (m *Manager) StartGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Cleanup(0)
			}
		}
	}()
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
