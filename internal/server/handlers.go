package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"webforge/internal/logging"
	"webforge/internal/planner"
	"webforge/internal/session"
	"webforge/internal/types"
	"webforge/internal/workspace"
)

// apiError is the only error shape the API returns.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerError("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: code, Message: message})
}

// mapSessionError converts manager errors to status codes.
func mapSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, session.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// writeRunFailure maps a failed run's error kind onto the HTTP status.
func writeRunFailure(w http.ResponseWriter, sess *session.Session) {
	reason, kind := sess.Failure()
	switch kind {
	case "auth", "upstream":
		writeError(w, http.StatusBadGateway, kind, reason)
	case "quota":
		writeError(w, http.StatusTooManyRequests, kind, reason)
	default:
		writeError(w, http.StatusInternalServerError, kind, reason)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": s.manager.List(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Resolve(r.PathValue("id"))
	if err != nil {
		mapSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Resolve(r.PathValue("id"))
	if err != nil {
		mapSessionError(w, err)
		return
	}
	var req modeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var mode types.Mode
	switch req.Mode {
	case string(types.ModePlan):
		mode = types.ModePlan
	case string(types.ModeAct):
		mode = types.ModeAct
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "mode must be PLAN or ACT")
		return
	}
	if !sess.SetMode(mode) {
		writeError(w, http.StatusConflict, "conflict", "session already started")
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type projectPreferences struct {
	Framework string `json:"framework,omitempty"`
}

type createProjectRequest struct {
	Description string             `json:"description"`
	Preferences projectPreferences `json:"preferences,omitempty"`
	UserID      string             `json:"userId,omitempty"`
	Name        string             `json:"name,omitempty"`
	Streaming   bool               `json:"streaming,omitempty"`
}

// createProjectResponse is the synchronous completion shape; Summary is
// absent on the streaming path, which answers before the run finishes.
type createProjectResponse struct {
	ProjectID string         `json:"projectId"`
	SessionID string         `json:"sessionId"`
	Workspace string         `json:"workspace"`
	Phase     types.Phase    `json:"phase"`
	Summary   *types.Summary `json:"summary,omitempty"`
	StreamURL string         `json:"streamUrl,omitempty"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "description is required")
		return
	}

	sess, ok := s.newProjectSession(w, req)
	if !ok {
		return
	}
	prefs := planner.Preferences{Framework: req.Preferences.Framework}

	if req.Streaming {
		// The run outlives the request: detach it from the request
		// context and let the client follow the event stream.
		if err := s.executor.Start(context.Background(), sess, prefs); err != nil {
			mapSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, createProjectResponse{
			ProjectID: sess.ProjectID,
			SessionID: sess.ID,
			Workspace: sess.Workspace.Root(),
			Phase:     sess.Phase(),
			StreamURL: "/api/agent/sessions/" + sess.ID + "/events",
		})
		return
	}

	s.executor.Run(r.Context(), sess, prefs)
	if sess.Phase() == types.PhaseFailed {
		writeRunFailure(w, sess)
		return
	}
	writeJSON(w, http.StatusOK, createProjectResponse{
		ProjectID: sess.ProjectID,
		SessionID: sess.ID,
		Workspace: sess.Workspace.Root(),
		Phase:     sess.Phase(),
		Summary:   sess.Summary(),
	})
}

// newProjectSession allocates a workspace and registers the session.
func (s *Server) newProjectSession(w http.ResponseWriter, req createProjectRequest) (*session.Session, bool) {
	name := req.Name
	if name == "" {
		name = req.Description
	}
	ws, err := workspace.Create(workspace.AllocateRoot(s.wsCfg.Root, name))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to create workspace")
		logging.ServerError("workspace create failed: %v", err)
		return nil, false
	}
	sess, err := s.manager.Create(req.Description, req.UserID, ws, false)
	if err != nil {
		mapSessionError(w, err)
		return nil, false
	}
	return sess, true
}

type continueProjectRequest struct {
	ProjectID   string `json:"projectId"`
	Workspace   string `json:"workspace,omitempty"`
	Instruction string `json:"instruction"`
}

type continueProjectResponse struct {
	ProjectID string             `json:"projectId"`
	SessionID string             `json:"sessionId"`
	Phase     types.Phase        `json:"phase"`
	Results   []types.StepResult `json:"results"`
}

func (s *Server) handleContinueProject(w http.ResponseWriter, r *http.Request) {
	var req continueProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProjectID == "" || req.Instruction == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "projectId and instruction are required")
		return
	}

	var ws *workspace.Workspace
	var userID string
	prev, err := s.manager.Resolve(req.ProjectID)
	switch {
	case err == nil:
		ws = prev.Workspace
		userID = prev.UserID
	case req.Workspace != "":
		// Unknown to this process but the caller knows the directory:
		// reopen it.
		ws, err = workspace.Create(req.Workspace)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "failed to open workspace: "+err.Error())
			return
		}
	default:
		mapSessionError(w, err)
		return
	}

	sess, err := s.manager.Create(req.Instruction, userID, ws, true)
	if err != nil {
		mapSessionError(w, err)
		return
	}

	s.executor.Run(r.Context(), sess, planner.Preferences{})
	if sess.Phase() == types.PhaseFailed {
		writeRunFailure(w, sess)
		return
	}
	writeJSON(w, http.StatusOK, continueProjectResponse{
		ProjectID: sess.ProjectID,
		SessionID: sess.ID,
		Phase:     sess.Phase(),
		Results:   sess.Results(),
	})
}

func (s *Server) handleProjectFiles(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Resolve(r.PathValue("id"))
	if err != nil {
		mapSessionError(w, err)
		return
	}

	if path := r.URL.Query().Get("filePath"); path != "" {
		data, err := sess.Workspace.Read(path)
		if err != nil {
			if errors.Is(err, workspace.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", err.Error())
			} else {
				writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"filePath": path,
			"content":  string(data),
			"size":     len(data),
		})
		return
	}

	files, err := sess.Workspace.List("", true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projectId": sess.ProjectID,
		"workspace": sess.Workspace.Root(),
		"files":     files,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Cancel(r.PathValue("id")); err != nil {
		mapSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

type cleanupRequest struct {
	OlderThanHours int `json:"olderThanHours,omitempty"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	cleaned := s.manager.Cleanup(time.Duration(req.OlderThanHours) * time.Hour)
	writeJSON(w, http.StatusOK, map[string]int{
		"cleaned":   cleaned,
		"remaining": s.manager.Count(),
	})
}

// handleStreamGenerate creates a project and streams its events on the
// same connection as SSE.
func (s *Server) handleStreamGenerate(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "description is required")
		return
	}

	sess, ok := s.newProjectSession(w, req)
	if !ok {
		return
	}
	// Detach the run from the request context so a dropped SSE client
	// does not cancel generation.
	if err := s.executor.Start(context.Background(), sess, planner.Preferences{Framework: req.Preferences.Framework}); err != nil {
		mapSessionError(w, err)
		return
	}

	s.sse.Serve(w, r, sess.ID, 0)
}

// handleSessionEvents attaches an SSE stream to an existing session.
// ?from_seq resumes after the given sequence number.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Resolve(r.PathValue("id"))
	if err != nil {
		mapSessionError(w, err)
		return
	}
	var fromSeq uint64
	if v := r.URL.Query().Get("from_seq"); v != "" {
		fromSeq, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "from_seq must be a non-negative integer")
			return
		}
	}
	s.sse.Serve(w, r, sess.ID, fromSeq)
}
