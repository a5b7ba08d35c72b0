package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/antigravity-dev/titan/internal/titan/approvals"
	"github.com/antigravity-dev/titan/internal/titan/config"
	"github.com/antigravity-dev/titan/internal/titan/guard"
	"github.com/antigravity-dev/titan/internal/titan/policy"
	"github.com/antigravity-dev/titan/internal/titan/store"
	"github.com/antigravity-dev/titan/internal/titan/tools"
	"github.com/google/uuid"
)

// ErrEntrypointUnimplemented is returned for every entrypoint type other
// than prompt — reserved in the manifest grammar but not runnable yet.
var ErrEntrypointUnimplemented = fmt.Errorf("skills: entrypoint type unimplemented")

// execGrantInput is what a skill_exec_grant approval's Input field holds.
type execGrantInput struct {
	Slug string `json:"slug"`
}

// RunOutcome is what RunSkill produces.
type RunOutcome struct {
	GoalID          string
	TraceEvents     []string
	GoalStatus      store.GoalStatus
	PendingApproval *PendingSkillApproval
	Output          string
}

// PendingSkillApproval is queued when any declared scope requires
// approval, or when an EXEC-scoped skill has no prior grant.
type PendingSkillApproval struct {
	ApprovalID string
	Kind       string // "skill_run" or "skill_exec_grant"
}

// RunSkill implements run_skill_v1: create a per-run goal, evaluate every
// declared scope against evalStep, queue a single skill_run approval if
// any scope requires one, require an additional skill_exec_grant approval
// for EXEC-scoped skills unless a prior approved grant exists, then
// execute the prompt entrypoint.
func RunSkill(
	ctx context.Context,
	st *store.Store,
	registry *tools.Registry,
	evalStep func(toolName string, capability store.Permission) policy.Result,
	mode config.Mode,
	riskMode store.RiskMode,
	actor string,
	installed *store.InstalledSkill,
	manifest *Manifest,
	input string,
	ectx tools.ExecutionContext,
	sandbox *Sandbox,
) (*RunOutcome, error) {
	goalID := uuid.NewString()
	if err := st.CreateGoal(&store.Goal{
		ID:          goalID,
		Description: fmt.Sprintf("run skill %s", installed.Slug),
		Status:      store.GoalExecuting,
	}); err != nil {
		return nil, fmt.Errorf("skills: create run goal: %w", err)
	}

	out := &RunOutcome{GoalID: goalID}
	trace := func(eventType, detail string) {
		out.TraceEvents = append(out.TraceEvents, eventType)
		_, _ = st.AppendTrace(goalID, eventType, detail, riskMode)
	}
	trace("skill_run_started", installed.Slug)

	requiresApproval := false
	syntheticToolName := "skill:" + installed.Slug
	for _, scope := range installed.Scopes {
		capability := scopeToPermission(scope)
		decision := evalStep(syntheticToolName, capability)
		if decision.Decision == policy.DecisionDeny {
			trace("execution_failed", fmt.Sprintf("scope %s denied: %s", scope, decision.MatchedRule))
			out.GoalStatus = store.GoalFailed
			_ = st.SetGoalStatus(goalID, store.GoalFailed)
			return out, nil
		}
		if decision.Decision == policy.DecisionRequireApproval {
			requiresApproval = true
		}
	}

	if requiresApproval {
		approval, err := queueSkillApproval(st, goalID, actor, "skill_run", installed.Slug, installed.Scopes)
		if err != nil {
			return nil, err
		}
		trace("approval_queued", approval.ID)
		out.GoalStatus = store.GoalPending
		out.PendingApproval = &PendingSkillApproval{ApprovalID: approval.ID, Kind: "skill_run"}
		_ = st.SetGoalStatus(goalID, store.GoalPending)
		return out, nil
	}

	if hasScope(installed.Scopes, "EXEC") {
		granted, err := hasApprovedExecGrant(st, installed.Slug)
		if err != nil {
			return nil, err
		}
		if !granted {
			approval, err := queueSkillApproval(st, goalID, actor, "skill_exec_grant", installed.Slug, installed.Scopes)
			if err != nil {
				return nil, err
			}
			trace("approval_queued", approval.ID)
			out.GoalStatus = store.GoalPending
			out.PendingApproval = &PendingSkillApproval{ApprovalID: approval.ID, Kind: "skill_exec_grant"}
			_ = st.SetGoalStatus(goalID, store.GoalPending)
			return out, nil
		}
	}

	output, err := executeEntrypoint(ctx, registry, manifest, input, ectx, sandbox)
	if err != nil {
		trace("execution_failed", err.Error())
		out.GoalStatus = store.GoalFailed
		_ = st.SetGoalStatus(goalID, store.GoalFailed)
		return out, nil
	}

	trace("skill_tool_result", output)
	trace("execution_completed", installed.Slug)
	out.GoalStatus = store.GoalCompleted
	out.Output = output
	_ = st.SetGoalStatus(goalID, store.GoalCompleted)
	_ = st.SetSkillLastRunGoal(installed.Slug, goalID)
	return out, nil
}

func scopeToPermission(scope string) store.Permission {
	switch scope {
	case "READ":
		return store.PermissionRead
	case "WRITE":
		return store.PermissionWrite
	case "EXEC":
		return store.PermissionExec
	case "NET":
		return store.PermissionNet
	default:
		return store.PermissionExec
	}
}

func hasScope(scopes []string, target string) bool {
	for _, s := range scopes {
		if s == target {
			return true
		}
	}
	return false
}

func queueSkillApproval(st *store.Store, goalID, actor, toolName, slug string, scopes []string) (*store.Approval, error) {
	input, err := json.Marshal(execGrantInput{Slug: slug})
	if err != nil {
		return nil, err
	}
	a := &store.Approval{
		ID:          uuid.NewString(),
		Nonce:       uuid.NewString(),
		GoalID:      goalID,
		ToolName:    toolName,
		Capability:  string(store.PermissionExec),
		Input:       string(input),
		RequestedBy: actor,
		ExpiresAtMS: time.Now().Add(approvals.DefaultTTL).UnixMilli(),
	}
	if err := st.CreateApproval(a); err != nil {
		return nil, err
	}
	return a, nil
}

// hasApprovedExecGrant reports whether a previously approved
// skill_exec_grant exists for slug.
func hasApprovedExecGrant(st *store.Store, slug string) (bool, error) {
	approvals, err := st.ListApprovals(store.ApprovalApproved)
	if err != nil {
		return false, err
	}
	for _, a := range approvals {
		if a.ToolName != "skill_exec_grant" {
			continue
		}
		var in execGrantInput
		if err := json.Unmarshal([]byte(a.Input), &in); err != nil {
			continue
		}
		if in.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// executeEntrypoint runs manifest's entrypoint against input. Only the
// prompt entrypoint is implemented; http, wasm, and script_stub are
// declared in the manifest grammar but reserved per the run path's
// open question — they error explicitly rather than attempt execution.
func executeEntrypoint(ctx context.Context, registry *tools.Registry, manifest *Manifest, input string, ectx tools.ExecutionContext, sandbox *Sandbox) (string, error) {
	if manifest.EntrypointType != EntrypointPrompt {
		return "", fmt.Errorf("%w: entrypoint_type %q", ErrEntrypointUnimplemented, manifest.EntrypointType)
	}

	toolName, template, err := parsePromptEntrypoint(manifest.Entrypoint)
	if err != nil {
		return "", err
	}
	if err := enforceScopeOnInput(manifest, input); err != nil {
		return "", err
	}

	rendered := strings.ReplaceAll(template, "{{input}}", input)

	if sandbox != nil && toolName == "run_command" && hasScope(manifest.Permissions.Scopes, "EXEC") {
		output, err := sandbox.RunOnce(ctx, strings.Fields(rendered))
		if err != nil {
			return "", fmt.Errorf("skills: sandboxed entrypoint: %w", err)
		}
		return output, nil
	}

	result := registry.Execute(ctx, ectx, toolName, rendered)
	if result.Error != nil {
		return "", fmt.Errorf("skills: entrypoint tool %q: %w", toolName, result.Error)
	}
	return result.Output, nil
}

// parsePromptEntrypoint splits the manifest grammar's "tool:<name> <template>"
// format.
func parsePromptEntrypoint(entrypoint string) (toolName, template string, err error) {
	rest := strings.TrimPrefix(entrypoint, "tool:")
	if rest == entrypoint {
		return "", "", fmt.Errorf("skills: prompt entrypoint must start with %q, got %q", "tool:", entrypoint)
	}
	name, tmpl, ok := strings.Cut(rest, " ")
	if !ok {
		return "", "", fmt.Errorf("skills: prompt entrypoint %q missing template", entrypoint)
	}
	return name, tmpl, nil
}

// enforceScopeOnInput rejects input that references a path outside the
// skill's allowed_paths, or a host outside its allowed_hosts — a "*"
// wildcard in either list is honoured only because it was explicitly
// declared in the manifest. Only whitespace-separated tokens containing
// "/" are checked as paths, and an empty allowed_paths list applies no
// path check; an empty allowed_hosts list rejects every URL in input.
func enforceScopeOnInput(manifest *Manifest, input string) error {
	if hasScope(manifest.Permissions.Scopes, "NET") {
		if err := enforceHostAllowlist(manifest.Permissions.AllowedHosts, input); err != nil {
			return err
		}
	}
	if hasScope(manifest.Permissions.Scopes, "READ") || hasScope(manifest.Permissions.Scopes, "WRITE") {
		if err := enforcePathAllowlist(manifest.Permissions.AllowedPaths, input); err != nil {
			return err
		}
	}
	return nil
}

func enforceHostAllowlist(allowedHosts []string, input string) error {
	if len(allowedHosts) == 1 && allowedHosts[0] == "*" {
		return nil
	}
	for _, token := range strings.Fields(input) {
		if !strings.Contains(token, "://") {
			continue
		}
		if err := guard.CheckURL(token); err != nil {
			return fmt.Errorf("skills: entrypoint input host check: %w", err)
		}
		host := hostOf(token)
		if !hostAllowed(allowedHosts, host) {
			return fmt.Errorf("skills: host %q not in skill's allowed_hosts", host)
		}
	}
	return nil
}

func hostOf(rawURL string) string {
	_, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		return rawURL
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}

func hostAllowed(allowedHosts []string, host string) bool {
	for _, h := range allowedHosts {
		if h == "*" || h == host {
			return true
		}
	}
	return false
}

func enforcePathAllowlist(allowedPaths []string, input string) error {
	if len(allowedPaths) == 1 && allowedPaths[0] == "*" {
		return nil
	}
	if len(allowedPaths) == 0 {
		return nil
	}
	for _, token := range strings.Fields(input) {
		if !strings.Contains(token, "/") || strings.Contains(token, "://") {
			continue
		}
		allowed := false
		for _, p := range allowedPaths {
			if p == token || strings.HasPrefix(token, strings.TrimSuffix(p, "/")+"/") {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("skills: path %q not in skill's allowed_paths", token)
		}
	}
	return nil
}
