// Package broker is TITAN's step executor: a plain loop over a selected
// plan's steps with early return on policy denial or execution failure,
// and no internal retries. Grounded on the spec's own description of the
// broker as "a plain loop... there is no hidden async state machine in
// the core" — the teacher's equivalent is app.go's runTurn/executeToolCall
// sequence, generalised here from an LLM tool-call loop to a
// pre-scored-plan loop.
package broker

import (
	"context"
	"fmt"

	"github.com/antigravity-dev/titan/internal/titan/planner"
	"github.com/antigravity-dev/titan/internal/titan/policy"
	"github.com/antigravity-dev/titan/internal/titan/store"
	"github.com/antigravity-dev/titan/internal/titan/tools"
)

// PendingApprovalAction is what the broker records when a step's
// decision is require_approval.
type PendingApprovalAction struct {
	StepID     string
	ToolName   string
	Capability store.Permission
	Input      string
}

// Result is everything RunPlan produces: the steps actually attempted,
// the trace event sequence, the goal's resulting status, and an optional
// pending approval when the run stalled.
type Result struct {
	Steps           []store.ExecutedStep
	TraceEvents     []string
	GoalStatus      store.GoalStatus
	PendingApproval *PendingApprovalAction
}

// RunPlan executes candidate's steps in order against registry, stopping
// at the first step requiring approval or failing outright. evalStep
// decides the policy outcome for a single step — callers pass a closure
// bound to the loaded config mode and current risk mode so this package
// never imports config directly.
func RunPlan(
	ctx context.Context,
	registry *tools.Registry,
	evalStep func(toolName string, capability store.Permission) policy.Result,
	candidate planner.Candidate,
	ectx tools.ExecutionContext,
) Result {
	res := Result{TraceEvents: []string{"execution_started"}}

	for _, st := range candidate.Steps {
		capability := registry.PermissionFor(st.ToolName, st.Permission)
		decision := evalStep(st.ToolName, capability)

		if decision.Decision == policy.DecisionRequireApproval {
			res.TraceEvents = append(res.TraceEvents, "approval_required")
			res.GoalStatus = store.GoalPending
			res.PendingApproval = &PendingApprovalAction{
				StepID:     st.StepID,
				ToolName:   st.ToolName,
				Capability: capability,
				Input:      st.Input,
			}
			res.Steps = append(res.Steps, store.ExecutedStep{
				StepID: st.StepID, ToolName: st.ToolName, Permission: capability,
				Input: st.Input, Status: store.StepBlockedPendingApproval,
			})
			return res
		}

		if decision.Decision == policy.DecisionDeny {
			res.TraceEvents = append(res.TraceEvents, "execution_failed", "reflection_recorded")
			res.GoalStatus = store.GoalFailed
			res.Steps = append(res.Steps, store.ExecutedStep{
				StepID: st.StepID, ToolName: st.ToolName, Permission: capability,
				Input: st.Input, Status: store.StepSkipped,
				Output: policyDenialMessage(decision),
			})
			return res
		}

		result := registry.Execute(ctx, ectx, st.ToolName, st.Input)
		if result.Error != nil {
			res.TraceEvents = append(res.TraceEvents, "execution_failed", "reflection_recorded")
			res.GoalStatus = store.GoalFailed
			res.Steps = append(res.Steps, store.ExecutedStep{
				StepID: st.StepID, ToolName: st.ToolName, Permission: capability,
				Input: st.Input, Status: store.StepSkipped, Output: result.Error.Error(),
			})
			return res
		}

		res.TraceEvents = append(res.TraceEvents, "tool_executed")
		res.Steps = append(res.Steps, store.ExecutedStep{
			StepID: st.StepID, ToolName: st.ToolName, Permission: capability,
			Input: st.Input, Status: store.StepExecuted, Output: result.Output,
		})
	}

	res.TraceEvents = append(res.TraceEvents, "execution_completed", "reflection_recorded")
	res.GoalStatus = store.GoalCompleted
	return res
}

// RunApprovedStep executes a single step that has just been approved,
// used by the approval-resolution path rather than a fresh RunPlan call.
// It never re-evaluates policy — an approval having been granted is
// itself the authorisation.
func RunApprovedStep(ctx context.Context, registry *tools.Registry, pending PendingApprovalAction, ectx tools.ExecutionContext) store.ExecutedStep {
	result := registry.Execute(ctx, ectx, pending.ToolName, pending.Input)
	if result.Error != nil {
		return store.ExecutedStep{
			StepID: pending.StepID, ToolName: pending.ToolName, Permission: pending.Capability,
			Input: pending.Input, Status: store.StepSkipped, Output: result.Error.Error(),
		}
	}
	return store.ExecutedStep{
		StepID: pending.StepID, ToolName: pending.ToolName, Permission: pending.Capability,
		Input: pending.Input, Status: store.StepExecutedAfterApproval, Output: result.Output,
	}
}

func policyDenialMessage(decision policy.Result) string {
	if decision.Violation != nil {
		return decision.Violation.Error()
	}
	return fmt.Sprintf("denied by rule %s", decision.MatchedRule)
}
