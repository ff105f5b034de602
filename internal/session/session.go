// Package session owns the per-project generation lifecycle: the
// Session object, the Manager registry, and the Executor state machine
// that drives a session from created through planning and executing to
// a terminal phase.
package session

import (
	"context"
	"sync"
	"time"

	"webforge/internal/types"
	"webforge/internal/workspace"
)

// conversationLogLimit bounds the per-session conversation ring; older
// entries are discarded once it fills.
const conversationLogLimit = 200

// Session is one generation run over one workspace.
type Session struct {
	ID          string
	ProjectID   string
	UserID      string
	Description string
	Workspace   *workspace.Workspace

	// Continue marks a continuation run over an existing project.
	Continue bool

	mu           sync.Mutex
	mode         types.Mode
	phase        types.Phase
	framework    types.Framework
	plan         *types.Plan
	results      []types.StepResult
	conversation []types.ConversationEntry
	summary      *types.Summary
	failKind     string
	failReason   string
	createdAt    time.Time
	updatedAt    time.Time
	started      bool
	cancelled    bool
	cancel       context.CancelFunc
}

// newSession builds a Session in the created phase.
func newSession(id, projectID, description string, ws *workspace.Workspace, cont bool) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          id,
		ProjectID:   projectID,
		Description: description,
		Workspace:   ws,
		Continue:    cont,
		mode:        types.ModeAct,
		phase:       types.PhaseCreated,
		createdAt:   now,
		updatedAt:   now,
	}
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() types.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// setPhase transitions the session. Transitions out of a terminal phase
// are ignored.
func (s *Session) setPhase(p types.Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return false
	}
	s.phase = p
	s.updatedAt = time.Now().UTC()
	return true
}

// Mode returns the session mode.
func (s *Session) Mode() types.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode flips between PLAN and ACT. Rejected once a run has started.
func (s *Session) SetMode(m types.Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.mode = m
	s.updatedAt = time.Now().UTC()
	return true
}

// markStarted claims the run slot. Returns false when a run already
// started, making re-entrant starts a no-op for the second caller.
func (s *Session) markStarted(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	s.cancel = cancel
	s.updatedAt = time.Now().UTC()
	return true
}

// Cancel requests cancellation. Idempotent; a terminal session stays
// terminal.
func (s *Session) Cancel() {
	s.mu.Lock()
	already := s.cancelled || s.phase.Terminal()
	s.cancelled = true
	cancel := s.cancel
	s.mu.Unlock()
	if already {
		return
	}
	if cancel != nil {
		cancel()
	}
}

// Cancelled reports whether cancellation was requested.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// setFramework records the framework resolved during planning.
func (s *Session) setFramework(fw types.Framework) {
	s.mu.Lock()
	s.framework = fw
	s.mu.Unlock()
}

// Framework returns the resolved framework, empty before planning.
func (s *Session) Framework() types.Framework {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framework
}

// setPlan records the plan produced during the planning phase.
func (s *Session) setPlan(p *types.Plan) {
	s.mu.Lock()
	s.plan = p
	s.mu.Unlock()
}

// Plan returns the plan, nil before planning finished.
func (s *Session) Plan() *types.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// appendResult records one step outcome.
func (s *Session) appendResult(r types.StepResult) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

// Results returns a copy of the step outcomes so far.
func (s *Session) Results() []types.StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.StepResult, len(s.results))
	copy(out, s.results)
	return out
}

// appendConversation adds one entry to the bounded conversation log.
func (s *Session) appendConversation(e types.ConversationEntry) {
	s.mu.Lock()
	s.conversation = append(s.conversation, e)
	if len(s.conversation) > conversationLogLimit {
		s.conversation = s.conversation[len(s.conversation)-conversationLogLimit:]
	}
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

// Conversation returns a copy of the accumulated conversation log.
func (s *Session) Conversation() []types.ConversationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ConversationEntry, len(s.conversation))
	copy(out, s.conversation)
	return out
}

// setSummary records the terminal run summary.
func (s *Session) setSummary(sum *types.Summary) {
	s.mu.Lock()
	s.summary = sum
	s.mu.Unlock()
}

// Summary returns the run summary, nil until the run completed.
func (s *Session) Summary() *types.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// setFailure records why a run transitioned to failed.
func (s *Session) setFailure(reason, kind string) {
	s.mu.Lock()
	s.failReason = reason
	s.failKind = kind
	s.mu.Unlock()
}

// Failure returns the failure reason and kind, empty unless failed.
func (s *Session) Failure() (reason, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failReason, s.failKind
}

// idleSince reports the last state change.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Status is the JSON-facing snapshot of a session.
type Status struct {
	SessionID    string                    `json:"session_id"`
	ProjectID    string                    `json:"project_id"`
	UserID       string                    `json:"user_id,omitempty"`
	Phase        types.Phase               `json:"phase"`
	Mode         types.Mode                `json:"mode"`
	Framework    types.Framework           `json:"framework,omitempty"`
	Description  string                    `json:"description,omitempty"`
	Workspace    string                    `json:"workspace"`
	Plan         *types.Plan               `json:"plan,omitempty"`
	Results      []types.StepResult        `json:"results,omitempty"`
	Conversation []types.ConversationEntry `json:"conversation,omitempty"`
	Summary      *types.Summary            `json:"summary,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// Snapshot captures the session state for API responses.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]types.StepResult, len(s.results))
	copy(results, s.results)
	conversation := make([]types.ConversationEntry, len(s.conversation))
	copy(conversation, s.conversation)
	return Status{
		SessionID:    s.ID,
		ProjectID:    s.ProjectID,
		UserID:       s.UserID,
		Phase:        s.phase,
		Mode:         s.mode,
		Framework:    s.framework,
		Description:  s.Description,
		Workspace:    s.Workspace.Root(),
		Plan:         s.plan,
		Results:      results,
		Conversation: conversation,
		Summary:      s.summary,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}
