package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webforge/internal/types"
	"webforge/internal/workspace"
)

func TestManagerCreateAndResolve(t *testing.T) {
	m := NewManager(0)
	ws, err := workspace.Create(t.TempDir())
	require.NoError(t, err)

	sess, err := m.Create("landing page", "", ws, false)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCreated, sess.Phase())

	got, err := m.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	got, err = m.GetByProject(sess.ProjectID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	got, err = m.Resolve(sess.ProjectID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerRejectsSecondActiveSessionPerProject(t *testing.T) {
	m := NewManager(0)
	ws, err := workspace.Create(t.TempDir())
	require.NoError(t, err)

	first, err := m.Create("landing page", "", ws, false)
	require.NoError(t, err)

	_, err = m.Create("landing page again", "", ws, false)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// Once the first session is terminal a new one is allowed.
	first.setPhase(types.PhaseCompleted)
	second, err := m.Create("continue the project", "", ws, true)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// The project index now points at the newest session.
	got, err := m.GetByProject(first.ProjectID)
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestManagerCancelIdempotent(t *testing.T) {
	m := NewManager(0)
	ws, err := workspace.Create(t.TempDir())
	require.NoError(t, err)
	sess, err := m.Create("x", "", ws, false)
	require.NoError(t, err)

	require.NoError(t, m.Cancel(sess.ID))
	require.NoError(t, m.Cancel(sess.ID))
	assert.True(t, sess.Cancelled())

	assert.ErrorIs(t, m.Cancel("missing"), ErrNotFound)
}

func TestManagerCleanup(t *testing.T) {
	m := NewManager(time.Hour)
	ws1, err := workspace.Create(t.TempDir())
	require.NoError(t, err)
	ws2, err := workspace.Create(t.TempDir())
	require.NoError(t, err)

	done, err := m.Create("done", "", ws1, false)
	require.NoError(t, err)
	active, err := m.Create("active", "", ws2, false)
	require.NoError(t, err)

	done.setPhase(types.PhaseCompleted)
	done.mu.Lock()
	done.updatedAt = time.Now().UTC().Add(-2 * time.Hour)
	done.mu.Unlock()

	// Active and recently-touched sessions survive.
	removed := m.Cleanup(time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Count())

	_, err = m.Get(done.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(active.ID)
	assert.NoError(t, err)

	// A terminal session younger than the cutoff is kept.
	active.setPhase(types.PhaseFailed)
	assert.Equal(t, 0, m.Cleanup(time.Hour))
	assert.Equal(t, 1, m.Count())
}

func TestManagerListNewestFirst(t *testing.T) {
	m := NewManager(0)
	ws1, err := workspace.Create(t.TempDir())
	require.NoError(t, err)
	ws2, err := workspace.Create(t.TempDir())
	require.NoError(t, err)

	a, err := m.Create("first", "", ws1, false)
	require.NoError(t, err)
	a.mu.Lock()
	a.createdAt = a.createdAt.Add(-time.Minute)
	a.mu.Unlock()

	b, err := m.Create("second", "", ws2, false)
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].SessionID)
	assert.Equal(t, a.ID, list[1].SessionID)
}

func TestManagerDistinctProjectsUnderSharedBase(t *testing.T) {
	m := NewManager(0)
	base := t.TempDir()
	ws1, err := workspace.Create(filepath.Join(base, "landing-page-1700000000-a1b2c3"))
	require.NoError(t, err)
	ws2, err := workspace.Create(filepath.Join(base, "todo-app-1700000001-d4e5f6"))
	require.NoError(t, err)

	first, err := m.Create("landing page", "", ws1, false)
	require.NoError(t, err)

	// An unrelated project under the same base directory is not blocked
	// by the first one still being active.
	second, err := m.Create("todo app", "", ws2, false)
	require.NoError(t, err)
	assert.NotEqual(t, first.ProjectID, second.ProjectID)

	got, err := m.Resolve(first.ProjectID)
	require.NoError(t, err)
	assert.Same(t, first, got)
	got, err = m.Resolve(second.ProjectID)
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestManagerCarriesUserID(t *testing.T) {
	m := NewManager(0)
	ws, err := workspace.Create(t.TempDir())
	require.NoError(t, err)

	sess, err := m.Create("landing page", "user-42", ws, false)
	require.NoError(t, err)
	assert.Equal(t, "user-42", sess.UserID)
	assert.Equal(t, "user-42", sess.Snapshot().UserID)
}

func TestConversationLogBounded(t *testing.T) {
	sess := newSession("s", "p", "x", nil, false)
	for i := 0; i < conversationLogLimit+50; i++ {
		sess.appendConversation(types.ConversationEntry{
			SessionID: "s",
			Role:      types.RoleAssistant,
			Content:   string(rune('a' + i%26)),
		})
	}
	log := sess.Conversation()
	require.Len(t, log, conversationLogLimit)
	// The oldest 50 entries were discarded.
	assert.Equal(t, string(rune('a'+50%26)), log[0].Content)
}

func TestSnapshotCarriesState(t *testing.T) {
	m := NewManager(0)
	ws, err := workspace.Create(t.TempDir())
	require.NoError(t, err)
	sess, err := m.Create("todo app", "", ws, false)
	require.NoError(t, err)

	sess.setFramework(types.FrameworkReact)
	sess.appendResult(types.StepResult{Path: "src/App.js", Action: types.ActionCreated, Bytes: 42})

	snap := sess.Snapshot()
	assert.Equal(t, sess.ID, snap.SessionID)
	assert.Equal(t, types.ModeAct, snap.Mode)
	assert.Equal(t, types.FrameworkReact, snap.Framework)
	assert.Equal(t, ws.Root(), snap.Workspace)
	require.Len(t, snap.Results, 1)
	assert.Equal(t, "src/App.js", snap.Results[0].Path)
}
