// Package types holds the shared data model for WebForge: sessions,
// plans, step results, conversation entries, and stream events.
package types

import (
	"time"
)

// Phase is the lifecycle phase of a session.
type Phase string

const (
	PhaseCreated   Phase = "created"
	PhasePlanning  Phase = "planning"
	PhaseExecuting Phase = "executing"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
	PhaseFailed    Phase = "failed"
)

// Terminal reports whether the phase admits no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseFailed
}

// Mode selects planning-only or full execution for a session.
type Mode string

const (
	ModePlan Mode = "PLAN"
	ModeAct  Mode = "ACT"
)

// FileType is the semantic role of a planned file.
type FileType string

const (
	FileTypeHTML          FileType = "html"
	FileTypeStylesheet    FileType = "stylesheet"
	FileTypeScript        FileType = "script"
	FileTypeReactComp     FileType = "react-component"
	FileTypeReactEntry    FileType = "react-entry"
	FileTypePackageConfig FileType = "package-config"
	FileTypeServer        FileType = "server"
	FileTypeModel         FileType = "model"
	FileTypeConfig        FileType = "config"
	FileTypeTemplate      FileType = "template"
)

// Framework is the detected or requested project framework.
type Framework string

const (
	FrameworkReact   Framework = "React"
	FrameworkVue     Framework = "Vue"
	FrameworkExpress Framework = "Express"
	FrameworkNode    Framework = "Node"
	FrameworkPython  Framework = "Python"
	FrameworkWeb     Framework = "Web (HTML/CSS/JS)"
)

// FileSpec describes a single file the executor will generate.
type FileSpec struct {
	Path        string   `json:"path"`
	Type        FileType `json:"type"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"` // lower = earlier
	DependsOn   []string `json:"depends_on,omitempty"`
}

// Plan is the ordered list of FileSpecs for one run. Immutable once built.
type Plan struct {
	Files      []FileSpec `json:"files"`
	Framework  Framework  `json:"framework"`
	TotalSteps int        `json:"total_steps"`
}

// StepAction is the outcome class of one executed step.
type StepAction string

const (
	ActionCreated  StepAction = "created"
	ActionModified StepAction = "modified"
	ActionFailed   StepAction = "failed"
)

// StepResult records the outcome of one FileSpec execution.
type StepResult struct {
	Path      string     `json:"path"`
	Action    StepAction `json:"action"`
	Bytes     int        `json:"bytes"`
	Reason    string     `json:"reason,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	// Conversation turn that produced this step, for audit.
	TurnID string `json:"turn_id,omitempty"`
}

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message sent to or received from an LLM provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionRecord is written to the metadata sink when a session reaches
// a notable lifecycle point.
type SessionRecord struct {
	SessionID   string    `json:"session_id"`
	ProjectID   string    `json:"project_id"`
	Workspace   string    `json:"workspace"`
	Framework   Framework `json:"framework"`
	Phase       Phase     `json:"phase"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ConversationEntry records one LLM call for the metadata sink.
type ConversationEntry struct {
	SessionID  string    `json:"session_id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	TokensUsed int       `json:"tokens_used"`
	Model      string    `json:"model"`
}

// ToolExecution records one abstract tool invocation for the sink.
type ToolExecution struct {
	SessionID string    `json:"session_id"`
	Tool      string    `json:"tool"`
	Target    string    `json:"target"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is returned when a run reaches a terminal phase.
type Summary struct {
	SessionID    string    `json:"session_id"`
	Workspace    string    `json:"workspace"`
	Framework    Framework `json:"framework"`
	CreatedFiles []string  `json:"created_files"`
	FailedSteps  int       `json:"failed_steps"`
	WallTime     string    `json:"wall_time"`
}
