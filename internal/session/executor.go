package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"webforge/internal/gitutil"
	"webforge/internal/logging"
	"webforge/internal/parser"
	"webforge/internal/planner"
	"webforge/internal/prompt"
	"webforge/internal/provider"
	"webforge/internal/stream"
	"webforge/internal/types"
)

// mistakeBudget is how many consecutive step failures abort the run.
const mistakeBudget = 3

// ExecutorConfig tunes one Executor.
type ExecutorConfig struct {
	// Budget bounds the wall time of one run. Zero means 30 minutes.
	Budget time.Duration
	// MinFileBytes rejects generated bodies below this size unless the
	// file is a config type. Zero means 16.
	MinFileBytes int
	// EnableGit commits the workspace after a completed run.
	EnableGit bool
}

// Executor drives sessions through the state machine. One Executor is
// shared across sessions; each run gets its own goroutine.
type Executor struct {
	client   provider.Client
	composer *prompt.Composer
	planner  *planner.Planner
	bus      *stream.Bus
	sink     types.MetadataSink
	cfg      ExecutorConfig
}

// NewExecutor wires an Executor.
func NewExecutor(client provider.Client, bus *stream.Bus, sink types.MetadataSink, cfg ExecutorConfig) *Executor {
	if cfg.Budget <= 0 {
		cfg.Budget = 30 * time.Minute
	}
	if cfg.MinFileBytes <= 0 {
		cfg.MinFileBytes = 16
	}
	return &Executor{
		client:   client,
		composer: prompt.NewComposer(),
		planner:  planner.New(),
		bus:      bus,
		sink:     sink,
		cfg:      cfg,
	}
}

// Start launches the run goroutine for sess. A second Start on the same
// session is reported as ErrAlreadyRunning.
func (e *Executor) Start(ctx context.Context, sess *Session, prefs planner.Preferences) error {
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Budget)
	if !sess.markStarted(cancel) {
		cancel()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, sess.ID)
	}
	go func() {
		defer cancel()
		e.run(runCtx, sess, prefs)
	}()
	return nil
}

// Run executes the session synchronously. Used by tests and by the
// synchronous stream-generate path.
func (e *Executor) Run(ctx context.Context, sess *Session, prefs planner.Preferences) {
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Budget)
	defer cancel()
	if !sess.markStarted(cancel) {
		return
	}
	e.run(runCtx, sess, prefs)
}

func (e *Executor) run(ctx context.Context, sess *Session, prefs planner.Preferences) {
	timer := logging.StartTimer(logging.CategoryExecutor, "run "+sess.ID)
	defer timer.Stop()
	startedAt := time.Now()

	sess.setPhase(types.PhasePlanning)
	e.bus.Publish(types.StreamEvent{Type: types.EventTaskStarted, SessionID: sess.ID})
	e.recordPhase(sess, types.PhasePlanning)

	plan := e.buildPlan(sess, prefs)
	sess.setFramework(plan.Framework)
	sess.setPlan(plan)
	e.bus.Publish(types.StreamEvent{Type: types.EventPlanReady, SessionID: sess.ID, Plan: plan})

	if sess.Mode() == types.ModePlan {
		// PLAN mode stops after planning: the plan is the deliverable.
		e.finish(sess, startedAt)
		return
	}

	sess.setPhase(types.PhaseExecuting)
	e.recordPhase(sess, types.PhaseExecuting)

	prior := make(map[string]string)
	mistakes := 0

	for i, fileSpec := range plan.Files {
		if e.checkStop(ctx, sess) {
			return
		}

		e.bus.Publish(types.StreamEvent{
			Type:      types.EventStepStarted,
			SessionID: sess.ID,
			Step:      i + 1,
			Path:      fileSpec.Path,
		})

		body, err := e.generate(ctx, sess, fileSpec, prior)
		if e.checkStop(ctx, sess) {
			return
		}
		if err != nil {
			var pe *provider.Error
			if errors.As(err, &pe) && pe.Kind == provider.KindAuth {
				e.fail(sess, "provider authentication failed", string(provider.KindAuth))
				return
			}
			mistakes++
			e.stepFailed(sess, fileSpec.Path, err.Error(), mistakes)
			if mistakes >= mistakeBudget {
				e.fail(sess, "too many consecutive step failures", "mistake-budget")
				return
			}
			continue
		}

		if reason := e.validate(fileSpec, body); reason != "" {
			mistakes++
			e.stepFailed(sess, fileSpec.Path, reason, mistakes)
			if mistakes >= mistakeBudget {
				e.fail(sess, "too many consecutive step failures", "mistake-budget")
				return
			}
			continue
		}

		action := types.ActionCreated
		if sess.Workspace.Exists(fileSpec.Path) {
			action = types.ActionModified
		}
		if err := sess.Workspace.Write(fileSpec.Path, []byte(body)); err != nil {
			mistakes++
			e.stepFailed(sess, fileSpec.Path, err.Error(), mistakes)
			if mistakes >= mistakeBudget {
				e.fail(sess, "too many consecutive step failures", "mistake-budget")
				return
			}
			continue
		}
		mistakes = 0
		prior[fileSpec.Path] = body

		result := types.StepResult{
			Path:      fileSpec.Path,
			Action:    action,
			Bytes:     len(body),
			Timestamp: time.Now().UTC(),
		}
		sess.appendResult(result)
		e.sink.RecordStepResult(sess.ID, result)
		e.sink.RecordToolExecution(types.ToolExecution{
			SessionID: sess.ID, Tool: "write_file", Target: fileSpec.Path, Success: true,
		})
		e.bus.Publish(types.StreamEvent{
			Type:      types.EventStepCompleted,
			SessionID: sess.ID,
			Path:      fileSpec.Path,
			Result:    &result,
		})
		logging.Executor("session %s step %d/%d wrote %s (%d bytes)",
			sess.ID, i+1, plan.TotalSteps, fileSpec.Path, len(body))
	}

	if e.cfg.EnableGit {
		if err := gitutil.AutoCommit(ctx, sess.Workspace.Root(), "Generated by WebForge: "+sess.Description); err != nil {
			logging.ExecutorWarn("auto-commit failed for session %s: %v", sess.ID, err)
		}
	}

	e.finish(sess, startedAt)
}

// buildPlan runs the planning phase for a fresh or continuation run.
func (e *Executor) buildPlan(sess *Session, prefs planner.Preferences) *types.Plan {
	if sess.Continue {
		fw := sess.Workspace.DetectProjectType()
		return e.planner.PlanContinuation(fw, sess.Workspace.Tracked())
	}
	return e.planner.Plan(sess.Description, prefs)
}

// generate calls the provider for one step and parses the reply into a
// file body. Continuation steps edit the current file contents.
func (e *Executor) generate(ctx context.Context, sess *Session, fileSpec types.FileSpec, prior map[string]string) (string, error) {
	var msgs []types.Message
	var current string
	if sess.Continue {
		if data, err := sess.Workspace.Read(fileSpec.Path); err == nil {
			current = string(data)
		}
		msgs = e.composer.ForEdit(sess.Description, sess.Framework(), fileSpec.Path, current)
	} else {
		msgs = e.composer.ForStep(prompt.StepContext{
			Description: sess.Description,
			Framework:   sess.Framework(),
			Spec:        fileSpec,
			Prior:       prior,
		})
	}

	reply, err := e.complete(ctx, sess, fileSpec.Path, msgs)
	if err != nil {
		return "", err
	}

	entry := types.ConversationEntry{
		SessionID: sess.ID,
		Role:      types.RoleAssistant,
		Content:   reply,
		Model:     e.client.Model(),
		Timestamp: time.Now().UTC(),
	}
	sess.appendConversation(entry)
	e.sink.RecordConversation(entry)

	if sess.Continue && current != "" {
		return parser.CleanEdit(reply, current), nil
	}

	blocks := parser.Parse(reply)
	block, ok := parser.Select(blocks, fileSpec.Path)
	if !ok {
		return "", errors.New("empty-response")
	}
	return block.Body, nil
}

// complete runs one provider call. Streaming is used only when someone
// is subscribed to the session feed; the plain Complete path keeps the
// provider's classified retry loop in play.
func (e *Executor) complete(ctx context.Context, sess *Session, path string, msgs []types.Message) (string, error) {
	if e.bus.Subscribers(sess.ID) == 0 {
		comp, err := e.client.Complete(ctx, msgs, provider.Options{})
		if err != nil {
			return "", err
		}
		return comp.Content, nil
	}
	return e.streamCompletion(ctx, sess, path, msgs)
}

// streamCompletion runs one streaming provider call, forwarding each
// delta as a content-chunk event and returning the assembled reply.
func (e *Executor) streamCompletion(ctx context.Context, sess *Session, path string, msgs []types.Message) (string, error) {
	chunks, errs := e.client.CompleteStream(ctx, msgs, provider.Options{})

	var b strings.Builder
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				// A client may report the error and close in one step.
				select {
				case err := <-errs:
					if err != nil {
						return b.String(), err
					}
				default:
				}
				return b.String(), nil
			}
			b.WriteString(chunk)
			if chunk != "" {
				e.bus.Publish(types.StreamEvent{
					Type:      types.EventContentChunk,
					SessionID: sess.ID,
					Path:      path,
					Chunk:     chunk,
				})
			}
		case err := <-errs:
			if err != nil {
				return b.String(), err
			}
		case <-ctx.Done():
			return b.String(), ctx.Err()
		}
	}
}

// validate applies the step acceptance rules.
func (e *Executor) validate(fileSpec types.FileSpec, body string) string {
	if strings.TrimSpace(body) == "" {
		return "empty-response"
	}
	if len(body) < e.cfg.MinFileBytes && fileSpec.Type != types.FileTypePackageConfig && fileSpec.Type != types.FileTypeConfig {
		return "too-short"
	}
	return ""
}

// checkStop handles cancellation and budget expiry. Returns true when
// the run must stop.
func (e *Executor) checkStop(ctx context.Context, sess *Session) bool {
	if sess.Cancelled() {
		sess.setPhase(types.PhaseCancelled)
		e.recordPhase(sess, types.PhaseCancelled)
		e.bus.Publish(types.StreamEvent{Type: types.EventTaskCancelled, SessionID: sess.ID})
		logging.Executor("session %s cancelled", sess.ID)
		return true
	}
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.fail(sess, "session budget exhausted", "timeout")
		} else {
			sess.setPhase(types.PhaseCancelled)
			e.recordPhase(sess, types.PhaseCancelled)
			e.bus.Publish(types.StreamEvent{Type: types.EventTaskCancelled, SessionID: sess.ID})
		}
		return true
	default:
		return false
	}
}

func (e *Executor) stepFailed(sess *Session, path, reason string, mistakes int) {
	result := types.StepResult{
		Path:      path,
		Action:    types.ActionFailed,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	sess.appendResult(result)
	e.sink.RecordStepResult(sess.ID, result)
	e.bus.Publish(types.StreamEvent{
		Type:      types.EventStepFailed,
		SessionID: sess.ID,
		Path:      path,
		Reason:    reason,
	})
	logging.ExecutorWarn("session %s step %s failed (%d/%d): %s",
		sess.ID, path, mistakes, mistakeBudget, reason)
}

func (e *Executor) fail(sess *Session, reason, kind string) {
	sess.setFailure(reason, kind)
	sess.setPhase(types.PhaseFailed)
	e.recordPhase(sess, types.PhaseFailed)
	e.bus.Publish(types.StreamEvent{
		Type:      types.EventTaskError,
		SessionID: sess.ID,
		Reason:    reason,
		Kind:      kind,
	})
	logging.ExecutorError("session %s failed: %s (%s)", sess.ID, reason, kind)
}

func (e *Executor) finish(sess *Session, startedAt time.Time) {
	var created []string
	failed := 0
	for _, r := range sess.Results() {
		if r.Action == types.ActionFailed {
			failed++
			continue
		}
		created = append(created, r.Path)
	}
	summary := &types.Summary{
		SessionID:    sess.ID,
		Workspace:    sess.Workspace.Root(),
		Framework:    sess.Framework(),
		CreatedFiles: created,
		FailedSteps:  failed,
		WallTime:     time.Since(startedAt).Round(time.Millisecond).String(),
	}
	sess.setSummary(summary)
	sess.setPhase(types.PhaseCompleted)
	e.recordPhase(sess, types.PhaseCompleted)
	e.bus.Publish(types.StreamEvent{
		Type:      types.EventTaskCompleted,
		SessionID: sess.ID,
		Summary:   summary,
	})
	logging.Executor("session %s completed: %d files, %d failed, %s",
		sess.ID, len(created), failed, summary.WallTime)
}

func (e *Executor) recordPhase(sess *Session, phase types.Phase) {
	e.sink.RecordSession(types.SessionRecord{
		SessionID:   sess.ID,
		ProjectID:   sess.ProjectID,
		Workspace:   sess.Workspace.Root(),
		Framework:   sess.Framework(),
		Phase:       phase,
		Description: sess.Description,
	})
}
