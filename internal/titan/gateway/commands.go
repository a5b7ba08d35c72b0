package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/antigravity-dev/titan/internal/titan/approvals"
	"github.com/antigravity-dev/titan/internal/titan/broker"
	"github.com/antigravity-dev/titan/internal/titan/config"
	"github.com/antigravity-dev/titan/internal/titan/skills"
	"github.com/antigravity-dev/titan/internal/titan/store"
	"github.com/antigravity-dev/titan/internal/titan/tools"
)

// command is a parsed slash command — name plus whitespace-split
// arguments. Grounded on the shape of the teacher's commands.Command
// (internal/ruriko/commands/router.go), trimmed down: TITAN's table has
// no --flag syntax, only a name and positional args.
type command struct {
	Name string
	Args []string
}

// parseCommand recognises a leading "/" or "/titan " prefix and splits
// the remainder into a command name and its arguments. Anything without
// a leading slash is not a command.
func parseCommand(text string) (*command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, false
	}
	text = strings.TrimPrefix(text, "/")
	text = strings.TrimPrefix(text, "titan ")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, false
	}
	return &command{Name: strings.ToLower(fields[0]), Args: fields[1:]}, true
}

// dispatchCommand runs cmd against ev's session and records both the
// invoking text and the reply in the session transcript, the same way
// ProcessEvent records a goal's user/assistant turn.
func (r *Runtime) dispatchCommand(ctx context.Context, cmd *command, ev Event) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.st.GetOrCreateSession(ev.Channel, ev.PeerID)
	if err != nil {
		return "", fmt.Errorf("gateway: resolve session for command: %w", err)
	}
	if err := r.st.AppendMessage(sess.ID, store.RoleUser, ev.Text); err != nil {
		return "", fmt.Errorf("gateway: record command text: %w", err)
	}

	var reply string
	switch cmd.Name {
	case "status":
		reply, err = r.cmdStatus(sess)
	case "mode":
		reply, err = r.cmdMode(sess, cmd.Args)
	case "new", "reset":
		reply, err = r.cmdNewSession(sess, cmd.Args)
	case "compact":
		reply, err = r.cmdCompact(sess, cmd.Args)
	case "stop":
		reply, err = r.cmdStop(sess)
	case "approve":
		reply, err = r.cmdResolveApproval(ctx, cmd.Args, true, ev.ActorID)
	case "deny":
		reply, err = r.cmdResolveApproval(ctx, cmd.Args, false, ev.ActorID)
	case "model":
		reply, err = r.cmdModel(sess, cmd.Args)
	case "usage":
		reply, err = r.cmdUsage(sess, cmd.Args)
	case "allowlist":
		reply, err = r.cmdAllowlist(cmd.Args)
	case "activation":
		reply, err = r.cmdActivation(sess, cmd.Args)
	case "skill":
		reply, err = r.cmdSkill(ctx, sess, cmd.Args, ev.ActorID)
	case "yolo":
		reply, err = r.cmdYolo()
	default:
		reply, err = "", fmt.Errorf("gateway: unknown command /%s", cmd.Name)
	}
	if err != nil {
		reply = "error: " + err.Error()
	}

	if appendErr := r.st.AppendMessage(sess.ID, store.RoleAssistant, reply); appendErr != nil {
		return "", fmt.Errorf("gateway: record command reply: %w", appendErr)
	}
	return reply, nil
}

func (r *Runtime) cmdStatus(sess *store.Session) (string, error) {
	risk, err := r.riskCtrl.Current()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"mode=%s activation=%s risk=%s usage=%s model=%s compactions=%d queue_depth=%d stopped=%t",
		r.effectiveMode(sess), r.effectiveActivation(sess), risk.RiskMode, sess.UsageMode,
		r.effectiveModelID(sess), sess.CompactionsCount, sess.QueueDepth, sess.StopRequested,
	), nil
}

func (r *Runtime) cmdMode(sess *store.Session, args []string) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf("mode=%s", r.effectiveMode(sess)), nil
	}
	mode, err := parseModeAlias(args[0])
	if err != nil {
		return "", err
	}
	sess.ModeOverride = string(mode)
	if err := r.st.UpdateSession(sess); err != nil {
		return "", fmt.Errorf("gateway: persist mode override: %w", err)
	}
	return fmt.Sprintf("mode set to %s", mode), nil
}

func parseModeAlias(s string) (config.Mode, error) {
	switch strings.ToLower(s) {
	case "supervised", "sup":
		return config.ModeSupervised, nil
	case "collaborative", "collab":
		return config.ModeCollaborative, nil
	case "autonomous", "auto":
		return config.ModeAutonomous, nil
	default:
		return "", fmt.Errorf("gateway: %q is not one of supervised|collaborative|autonomous", s)
	}
}

func (r *Runtime) cmdNewSession(sess *store.Session, args []string) (string, error) {
	messages, err := r.st.ListVisibleMessages(sess.ID, 0)
	if err != nil {
		return "", err
	}
	if len(messages) > 0 {
		lastID := messages[len(messages)-1].ID
		if err := r.st.CompactMessages(sess.ID, lastID+1, "session reset via /new or /reset"); err != nil {
			return "", err
		}
	}

	sess.ModeOverride = ""
	sess.QueueDepth = 0
	sess.StopRequested = false
	if len(args) > 0 {
		sess.ModelOverride = args[0]
	} else {
		sess.ModelOverride = ""
	}
	if err := r.st.UpdateSession(sess); err != nil {
		return "", fmt.Errorf("gateway: persist session reset: %w", err)
	}
	return "session reset", nil
}

func (r *Runtime) cmdCompact(sess *store.Session, args []string) (string, error) {
	messages, err := r.st.ListVisibleMessages(sess.ID, 0)
	if err != nil {
		return "", err
	}
	if len(messages) <= 2 {
		return "nothing to compact", nil
	}
	keepAfter := messages[len(messages)-2].ID
	summary := "conversation compacted"
	if len(args) > 0 {
		summary += ": " + strings.Join(args, " ")
	}
	if err := r.st.CompactMessages(sess.ID, keepAfter, summary); err != nil {
		return "", err
	}
	return "compacted", nil
}

func (r *Runtime) cmdStop(sess *store.Session) (string, error) {
	sess.StopRequested = true
	if err := r.st.UpdateSession(sess); err != nil {
		return "", fmt.Errorf("gateway: persist stop request: %w", err)
	}
	return "stopped, send /new to resume", nil
}

// cmdResolveApproval parses /approve and /deny's positional args and
// hands off to ResolveApproval.
func (r *Runtime) cmdResolveApproval(ctx context.Context, args []string, approve bool, actorID string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("gateway: usage /%s <approval-id> [reason]", map[bool]string{true: "approve", false: "deny"}[approve])
	}
	approvalID := args[0]
	reason := strings.Join(args[1:], " ")
	return r.ResolveApproval(ctx, approvalID, approve, actorID, reason)
}

// ResolveApproval implements /approve and /deny, and is also the path the
// HTTP API's POST /api/approvals/{id}/approve|deny takes — both surfaces
// resolve an approval and, on approve, dispatch to the same execution
// path, so there is exactly one place an approval ever gets carried out.
//
// Approval uses the bare Resolve (not ResolveWithSideEffects)
// specifically so the approval_executed trace is appended only after the
// gated action has actually run, not at the moment of approval; denial
// uses ResolveWithSideEffects because its side effects (goal
// cancellation, approval_denied trace, episodic note) are exactly what a
// denial needs and nothing more happens afterward.
func (r *Runtime) ResolveApproval(ctx context.Context, approvalID string, approve bool, actorID, reason string) (string, error) {
	if !approve {
		outcome, err := r.approvalsCtrl.ResolveWithSideEffects(approvalID, false, actorID, reason)
		if err != nil {
			return "", err
		}
		if outcome.NotPending {
			return fmt.Sprintf("approval %s is not pending", approvalID), nil
		}
		return fmt.Sprintf("denied %s", approvalID), nil
	}

	outcome, err := r.approvalsCtrl.Resolve(approvalID, true, actorID, reason)
	if err != nil {
		return "", err
	}
	if outcome.ReplayBlocked {
		return fmt.Sprintf("approval %s already executed", approvalID), nil
	}
	if outcome.NotPending {
		return fmt.Sprintf("approval %s is not pending", approvalID), nil
	}

	return r.executeApprovedAction(ctx, outcome.Approval)
}

// executeApprovedAction dispatches a freshly approved approval to the
// concern that requested it: a skill install finalisation, or a single
// plan step run through the broker's approved-step path.
func (r *Runtime) executeApprovedAction(ctx context.Context, a *store.Approval) (string, error) {
	if a.ToolName == "skill_install" {
		return r.finalizeSkillInstall(a)
	}
	return r.executeApprovedToolStep(ctx, a)
}

func (r *Runtime) executeApprovedToolStep(ctx context.Context, a *store.Approval) (string, error) {
	risk, err := r.riskCtrl.Current()
	if err != nil {
		return "", err
	}
	ectx := tools.ExecutionContext{
		WorkspaceRoot:   r.cfg.WorkspaceDir,
		BypassPathGuard: risk.RiskMode == store.RiskYolo && risk.YoloBypassPathGuard,
	}
	pending := broker.PendingApprovalAction{
		ToolName:   a.ToolName,
		Capability: store.Permission(a.Capability),
		Input:      a.Input,
	}
	step := broker.RunApprovedStep(ctx, r.registry, pending, ectx)

	runErr := r.st.RecordToolRun(&store.ToolRun{
		ID: uuid.NewString(), ApprovalID: a.ID, ToolName: a.ToolName,
		Status: string(step.Status), Output: step.Output,
	})
	if runErr != nil && runErr != store.ErrApprovalAlreadyConsumed {
		return "", fmt.Errorf("gateway: record approved tool run: %w", runErr)
	}

	if a.GoalID != "" {
		if _, err := r.st.AppendTrace(a.GoalID, "approval_executed", a.ID, store.RiskSecure); err != nil {
			return "", err
		}
		status := store.GoalCompleted
		if step.Status == store.StepSkipped {
			status = store.GoalFailed
		}
		if err := r.st.SetGoalStatus(a.GoalID, status); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("approved, %s -> %s", a.ToolName, truncateForReply(step.Output)), nil
}

// finalizeSkillInstall reconstructs a *skills.StagedInstall from the
// approval's JSON input (the manifest itself is reloaded from the
// staging directory rather than serialised into the approval) and calls
// skills.Finalize, matching the spec's "approved installed=<slug>@<version>"
// acceptance reply.
func (r *Runtime) finalizeSkillInstall(a *store.Approval) (string, error) {
	var payload skills.ApprovalPayload
	if err := json.Unmarshal([]byte(a.Input), &payload); err != nil {
		return "", fmt.Errorf("gateway: decode skill approval payload: %w", err)
	}
	manifest, err := skills.LoadManifest(payload.StagingDir)
	if err != nil {
		return "", err
	}
	staged := &skills.StagedInstall{
		Manifest:        manifest,
		Entry:           &skills.IndexEntry{Slug: payload.Slug, Version: payload.Version, Source: payload.Source, SHA256: payload.Hash},
		Hash:            payload.Hash,
		SignatureStatus: payload.SignatureStatus,
		StagingDir:      payload.StagingDir,
		TargetDir:       payload.TargetDir,
		LockPath:        payload.LockPath,
	}
	installed, err := skills.Finalize(staged)
	if err != nil {
		return "", err
	}
	if err := r.st.UpsertInstalledSkill(installed); err != nil {
		return "", fmt.Errorf("gateway: persist installed skill: %w", err)
	}
	if a.GoalID != "" {
		if _, err := r.st.AppendTrace(a.GoalID, "approval_executed", a.ID, store.RiskSecure); err != nil {
			return "", err
		}
		if err := r.st.SetGoalStatus(a.GoalID, store.GoalCompleted); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("approved installed=%s@%s", installed.Slug, installed.Version), nil
}

func (r *Runtime) cmdModel(sess *store.Session, args []string) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf("model=%s", r.effectiveModelID(sess)), nil
	}
	sess.ModelOverride = args[0]
	if err := r.st.UpdateSession(sess); err != nil {
		return "", fmt.Errorf("gateway: persist model override: %w", err)
	}
	return fmt.Sprintf("model set to %s", sess.ModelOverride), nil
}

func (r *Runtime) effectiveModelID(sess *store.Session) string {
	if sess.ModelOverride != "" {
		return sess.ModelOverride
	}
	return r.cfg.Model.ModelID
}

func (r *Runtime) cmdUsage(sess *store.Session, args []string) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf("usage=%s", sess.UsageMode), nil
	}
	mode := store.UsageMode(strings.ToLower(args[0]))
	switch mode {
	case store.UsageOff, store.UsageTokens, store.UsageFull:
	default:
		return "", fmt.Errorf("gateway: usage mode %q is not one of off|tokens|full", args[0])
	}
	sess.UsageMode = mode
	if err := r.st.UpdateSession(sess); err != nil {
		return "", fmt.Errorf("gateway: persist usage mode: %w", err)
	}
	return fmt.Sprintf("usage set to %s", mode), nil
}

// cmdAllowlist mutates process-wide config rather than a session row: the
// allowlist is an operator setting, not a per-peer override like /mode or
// /model. cmdActivation, by contrast, sets and persists the session's own
// activation mode.
func (r *Runtime) cmdAllowlist(args []string) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf("allowlist=%s", strings.Join(r.cfg.Chat.Allowlist, ",")), nil
	}
	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 2 {
			return "", fmt.Errorf("gateway: usage /allowlist add <actor>")
		}
		r.cfg.Chat.Allowlist = append(r.cfg.Chat.Allowlist, args[1])
		return fmt.Sprintf("added %s to allowlist", args[1]), nil
	case "remove":
		if len(args) < 2 {
			return "", fmt.Errorf("gateway: usage /allowlist remove <actor>")
		}
		r.cfg.Chat.Allowlist = removeFromList(r.cfg.Chat.Allowlist, args[1])
		return fmt.Sprintf("removed %s from allowlist", args[1]), nil
	default:
		return "", fmt.Errorf("gateway: usage /allowlist [add|remove] <actor>")
	}
}

func removeFromList(list []string, value string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !strings.EqualFold(v, value) {
			out = append(out, v)
		}
	}
	return out
}

func (r *Runtime) cmdActivation(sess *store.Session, args []string) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf("activation=%s", r.effectiveActivation(sess)), nil
	}
	switch strings.ToLower(args[0]) {
	case "always":
		sess.ActivationMode = store.ActivationAlways
	case "mention":
		sess.ActivationMode = store.ActivationMention
	default:
		return "", fmt.Errorf("gateway: activation mode %q is not one of always|mention", args[0])
	}
	if err := r.st.UpdateSession(sess); err != nil {
		return "", fmt.Errorf("gateway: persist activation mode: %w", err)
	}
	return fmt.Sprintf("activation set to %s", sess.ActivationMode), nil
}

// cmdSkill implements "/skill install <slug>[@version] [--force]". A
// staged install that passes default-deny with a verified signature
// installs immediately; anything else is queued as a pending approval,
// matching the spec's signed/verified-fast-path vs everything-else-gated
// split.
func (r *Runtime) cmdSkill(ctx context.Context, sess *store.Session, args []string, actorID string) (string, error) {
	if len(args) < 2 || args[0] != "install" {
		return "", fmt.Errorf("gateway: usage /skill install <slug>[@version]")
	}
	slug, version := splitSlugVersion(args[1])
	force := false
	for _, a := range args[2:] {
		if a == "--force" {
			force = true
		}
	}

	adapter := &skills.LocalAdapter{RegistryRoot: r.cfg.Skills.RegistryRoot}
	staged, err := skills.StageInstall(ctx, adapter, r.cfg.WorkspaceDir, slug, version, force, r.cfg.Skills.TrustRoot)
	if err != nil {
		return "", err
	}

	if staged.SignatureStatus == store.SignatureVerified {
		installed, err := skills.Finalize(staged)
		if err != nil {
			return "", err
		}
		if err := r.st.UpsertInstalledSkill(installed); err != nil {
			return "", fmt.Errorf("gateway: persist installed skill: %w", err)
		}
		return fmt.Sprintf("installed=%s@%s", installed.Slug, installed.Version), nil
	}

	payload, err := json.Marshal(staged.ToApprovalPayload())
	if err != nil {
		return "", fmt.Errorf("gateway: encode skill approval payload: %w", err)
	}
	approval, err := r.approvalsCtrl.Request(approvals.RequestParams{
		ToolName:    "skill_install",
		Capability:  string(store.PermissionExec),
		Input:       string(payload),
		RequestedBy: actorID,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("queued approval %s for installing %s@%s (signature=%s)", approval.ID, staged.Manifest.Slug, staged.Manifest.Version, staged.SignatureStatus), nil
}

func splitSlugVersion(s string) (slug, version string) {
	if idx := strings.LastIndex(s, "@"); idx > 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

// cmdYolo always refuses: policy.RiskController.ArmYolo/EnableYolo are
// documented as reachable only from the CLI operator path ("the gateway
// has no path to this method"), so any /yolo that reaches the chat
// gateway is by construction not that path.
func (r *Runtime) cmdYolo() (string, error) {
	return "", fmt.Errorf("gateway: /yolo is not available from a chat channel, use the titan CLI")
}
