// Package gateway is TITAN's Gateway Runtime: the single entry point that
// turns an inbound chat event into either a slash-command reply or a
// planned-and-executed goal. It is grounded on the teacher's
// handleMessage/runEventTurn turn pipeline (internal/gitai/app/app.go) —
// policy/allowlist gate, trace-ID mint, store write, reply — generalised
// from an LLM tool-call loop to the spec's planner+broker pipeline, and on
// internal/gitai/policy/engine.go's IsRoomAllowed/IsSenderAllowed pair for
// the allowlist/activation gate. The runtime holds no mutable state of its
// own beyond the store handle and the process's static config/registries;
// every per-event state (session, queue depth, risk mode) lives in the
// store.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/titan/internal/titan/approvals"
	"github.com/antigravity-dev/titan/internal/titan/broker"
	"github.com/antigravity-dev/titan/internal/titan/config"
	"github.com/antigravity-dev/titan/internal/titan/observability"
	"github.com/antigravity-dev/titan/internal/titan/planner"
	"github.com/antigravity-dev/titan/internal/titan/policy"
	"github.com/antigravity-dev/titan/internal/titan/store"
	"github.com/antigravity-dev/titan/internal/titan/tools"
	"github.com/antigravity-dev/titan/internal/titan/trace"
)

// Event is one inbound chat-channel message, already normalised to a
// (channel, peer) pair by the calling channel bridge.
type Event struct {
	Channel string
	PeerID  string
	ActorID string
	Text    string
}

// Runtime is the gateway's single entry point.
type Runtime struct {
	st            *store.Store
	cfg           *config.Config
	engine        *policy.Engine
	riskCtrl      *policy.RiskController
	approvalsCtrl *approvals.Controller
	registry      *tools.Registry

	mu sync.Mutex
}

// New returns a Runtime wired to st, the loaded config, and the tool
// registry the broker executes plan steps against.
func New(st *store.Store, cfg *config.Config, registry *tools.Registry) *Runtime {
	return &Runtime{
		st:            st,
		cfg:           cfg,
		engine:        policy.New(),
		riskCtrl:      policy.NewRiskController(st),
		approvalsCtrl: approvals.New(st),
		registry:      registry,
	}
}

// ProcessChatInput implements process_chat_input: a leading "/" or
// "/titan " prefixed message routes to the slash-command handler, else
// the event is handed to ProcessEvent.
func (r *Runtime) ProcessChatInput(ctx context.Context, ev Event) (string, error) {
	ctx = trace.WithID(ctx, trace.GenerateID())
	if cmd, ok := parseCommand(ev.Text); ok {
		return r.dispatchCommand(ctx, cmd, ev)
	}
	return r.ProcessEvent(ctx, ev)
}

// ProcessEvent implements process_event: sweep yolo expiry, resolve the
// session, apply activation/allowlist filtering, plan and execute the
// goal, persist the whole run atomically, and reply with the reflection.
func (r *Runtime) ProcessEvent(ctx context.Context, ev Event) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := observability.WithTrace(ctx)

	if err := r.riskCtrl.SweepExpired(); err != nil {
		return "", fmt.Errorf("gateway: sweep yolo expiry: %w", err)
	}

	sess, err := r.st.GetOrCreateSession(ev.Channel, ev.PeerID)
	if err != nil {
		return "", fmt.Errorf("gateway: resolve session: %w", err)
	}

	riskState, err := r.riskCtrl.Current()
	if err != nil {
		return "", fmt.Errorf("gateway: read risk state: %w", err)
	}

	goal := &store.Goal{
		ID:          uuid.NewString(),
		Description: ev.Text,
		SessionID:   sess.ID,
	}

	if reason := r.dropReason(sess, ev); reason != "" {
		log.Info("gateway: dropping event", "reason", reason, "channel", ev.Channel, "actor", ev.ActorID)
		bundle := &store.RunBundle{
			Goal:        goal,
			FinalStatus: store.GoalCancelled,
			TraceEvents: []store.TraceEventInput{{EventType: "command_invoked", Detail: reason}},
			RiskMode:    riskState.RiskMode,
		}
		if err := r.st.PersistRunBundle(bundle); err != nil {
			return "", fmt.Errorf("gateway: persist dropped event: %w", err)
		}
		return "", nil
	}

	sess.QueueDepth++
	if err := r.st.UpdateSession(sess); err != nil {
		return "", fmt.Errorf("gateway: increment queue depth: %w", err)
	}
	if err := r.st.AppendMessage(sess.ID, store.RoleUser, ev.Text); err != nil {
		return "", fmt.Errorf("gateway: record user message: %w", err)
	}

	intent, candidate, plannerEvents := planner.Select(ev.Text)

	mode := r.effectiveMode(sess)
	evalStep := func(toolName string, capability store.Permission) policy.Result {
		return r.engine.Evaluate(policy.Request{
			Mode:       mode,
			RiskMode:   riskState.RiskMode,
			Capability: capability,
			ToolName:   toolName,
		})
	}
	ectx := tools.ExecutionContext{
		WorkspaceRoot:   r.cfg.WorkspaceDir,
		BypassPathGuard: riskState.RiskMode == store.RiskYolo && riskState.YoloBypassPathGuard,
	}
	result := broker.RunPlan(ctx, r.registry, evalStep, candidate, ectx)

	traceEvents := make([]store.TraceEventInput, 0, len(plannerEvents)+len(result.TraceEvents)+2)
	traceEvents = append(traceEvents,
		store.TraceEventInput{EventType: "goal_submitted", Detail: goal.Description},
		store.TraceEventInput{EventType: "event_received", Detail: ev.ActorID},
	)
	for _, e := range plannerEvents {
		traceEvents = append(traceEvents, store.TraceEventInput{EventType: e})
	}
	for _, e := range result.TraceEvents {
		traceEvents = append(traceEvents, store.TraceEventInput{EventType: e})
	}

	bundle := &store.RunBundle{
		Goal:        goal,
		FinalStatus: result.GoalStatus,
		Plan: &store.Plan{
			ID:                  uuid.NewString(),
			GoalID:              goal.ID,
			IntentTag:           string(intent),
			SelectedCandidateID: candidate.ID,
			SelectedScore:       candidate.Score,
		},
		Steps:       result.Steps,
		TraceEvents: traceEvents,
		RiskMode:    riskState.RiskMode,
	}

	var reflection string
	if result.PendingApproval != nil {
		pending := result.PendingApproval
		approvalID := uuid.NewString()
		bundle.PendingApproval = &store.PendingApproval{
			ID:          approvalID,
			Nonce:       uuid.NewString(),
			ToolName:    pending.ToolName,
			Capability:  string(pending.Capability),
			Input:       pending.Input,
			RequestedBy: ev.ActorID,
			ExpiresAtMS: time.Now().Add(approvals.DefaultTTL).UnixMilli(),
		}
		reflection = fmt.Sprintf("queued approval %s for %s, awaiting /approve or /deny", approvalID, pending.ToolName)
	} else if result.GoalStatus == store.GoalCompleted {
		reflection = summariseSteps(result.Steps)
	} else {
		reflection = "run failed: " + lastOutput(result.Steps)
	}
	bundle.EpisodicSummary = reflection

	if err := r.st.PersistRunBundle(bundle); err != nil {
		return "", fmt.Errorf("gateway: persist run bundle: %w", err)
	}

	sess.QueueDepth = 0
	if err := r.st.UpdateSession(sess); err != nil {
		return "", fmt.Errorf("gateway: reset queue depth: %w", err)
	}
	if err := r.st.AppendMessage(sess.ID, store.RoleAssistant, reflection); err != nil {
		return "", fmt.Errorf("gateway: record assistant reflection: %w", err)
	}

	return reflection, nil
}

func summariseSteps(steps []store.ExecutedStep) string {
	if len(steps) == 0 {
		return "completed with no steps"
	}
	last := steps[len(steps)-1]
	return fmt.Sprintf("completed %d step(s); last: %s -> %s", len(steps), last.ToolName, truncateForReply(last.Output))
}

func lastOutput(steps []store.ExecutedStep) string {
	if len(steps) == 0 {
		return "no steps attempted"
	}
	return truncateForReply(steps[len(steps)-1].Output)
}

func truncateForReply(s string) string {
	const maxLen = 400
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...(truncated)"
}
