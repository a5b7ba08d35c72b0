package connectors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/antigravity-dev/titan/internal/titan/approvals"
	"github.com/antigravity-dev/titan/internal/titan/policy"
	"github.com/antigravity-dev/titan/internal/titan/redact"
	"github.com/antigravity-dev/titan/internal/titan/store"
)

// toolRequestPayload is a connector_tool approval's JSON input, and the
// payload execute_connector_tool_after_approval re-executes verbatim.
type toolRequestPayload struct {
	ConnectorID string `json:"connector_id"`
	ToolName    string `json:"tool_name"`
	Input       string `json:"input"`
}

// Outcome is what a mediated (or post-approval) connector call produces.
type Outcome struct {
	GoalID          string
	Output          string
	GoalStatus      store.GoalStatus
	PendingApproval *store.Approval
}

// ExecuteConnectorToolMediated implements execute_connector_tool_mediated:
// it creates a per-action goal, evaluates policy for the tool's
// risk_class, and either executes immediately or files one connector_tool
// approval whose payload the caller resolves later via
// ExecuteConnectorToolAfterApproval. input is expected to be a JSON object
// string; redact.Map sanitises it before it is written into the
// connector_tool_requested trace so secret-shaped keys never reach the
// timeline in plaintext.
func ExecuteConnectorToolMediated(
	ctx context.Context,
	st *store.Store,
	registry *Registry,
	engine *policy.Engine,
	evalReq policy.Request,
	riskMode store.RiskMode,
	actor, connectorID, toolName, input string,
	secrets SecretResolver,
) (*Outcome, error) {
	connector, err := st.GetConnector(connectorID)
	if err != nil {
		return nil, err
	}
	connType := registry.Get(connector.Type)
	if connType == nil {
		return nil, fmt.Errorf("connectors: unknown connector type %q for connector %q", connector.Type, connectorID)
	}
	descriptor, err := registry.Descriptor(connector.Type, toolName)
	if err != nil {
		return nil, err
	}

	goal := &store.Goal{ID: uuid.NewString(), Description: fmt.Sprintf("connector tool %s.%s", connector.Type, toolName), Status: store.GoalPending}
	if err := st.CreateGoal(goal); err != nil {
		return nil, err
	}

	if _, err := st.AppendTrace(goal.ID, "connector_tool_requested", requestedDetail(connectorID, toolName, input), riskMode); err != nil {
		return nil, err
	}

	evalReq.ToolName = toolName
	evalReq.Capability = descriptor.RiskClass
	decision := engine.Evaluate(evalReq)

	if decision.Decision == policy.DecisionDeny {
		if err := st.SetGoalStatus(goal.ID, store.GoalFailed); err != nil {
			return nil, err
		}
		if _, err := st.AppendTrace(goal.ID, "execution_failed", policyDenialMessage(decision), riskMode); err != nil {
			return nil, err
		}
		return &Outcome{GoalID: goal.ID, GoalStatus: store.GoalFailed}, nil
	}

	if decision.Decision == policy.DecisionRequireApproval {
		payload, err := json.Marshal(toolRequestPayload{ConnectorID: connectorID, ToolName: toolName, Input: input})
		if err != nil {
			return nil, err
		}
		approval, err := approvals.New(st).Request(approvals.RequestParams{
			GoalID:      goal.ID,
			ToolName:    "connector_tool",
			Capability:  string(descriptor.RiskClass),
			Input:       string(payload),
			RequestedBy: actor,
		})
		if err != nil {
			return nil, err
		}
		if _, err := st.AppendTrace(goal.ID, "approval_queued", approval.ID, riskMode); err != nil {
			return nil, err
		}
		return &Outcome{GoalID: goal.ID, GoalStatus: store.GoalPending, PendingApproval: approval}, nil
	}

	output, execErr := executeAndRecord(ctx, st, connType, connector, toolName, input, secrets, goal.ID, "", riskMode)
	if execErr != nil {
		return &Outcome{GoalID: goal.ID, Output: output, GoalStatus: store.GoalFailed}, nil
	}
	return &Outcome{GoalID: goal.ID, Output: output, GoalStatus: store.GoalCompleted}, nil
}

// ExecuteConnectorToolAfterApproval re-executes an approved connector_tool
// approval's original payload exactly once — HasToolRunForApproval (via
// RecordToolRun) enforces the at-most-once contract, the same guarantee
// the broker's approved-step path relies on.
func ExecuteConnectorToolAfterApproval(
	ctx context.Context,
	st *store.Store,
	registry *Registry,
	secrets SecretResolver,
	approval *store.Approval,
	riskMode store.RiskMode,
) (*Outcome, error) {
	var payload toolRequestPayload
	if err := json.Unmarshal([]byte(approval.Input), &payload); err != nil {
		return nil, fmt.Errorf("connectors: decode approved connector_tool payload: %w", err)
	}

	connector, err := st.GetConnector(payload.ConnectorID)
	if err != nil {
		return nil, err
	}
	connType := registry.Get(connector.Type)
	if connType == nil {
		return nil, fmt.Errorf("connectors: unknown connector type %q for connector %q", connector.Type, payload.ConnectorID)
	}

	output, execErr := executeAndRecord(ctx, st, connType, connector, payload.ToolName, payload.Input, secrets, approval.GoalID, approval.ID, riskMode)
	status := store.GoalCompleted
	if execErr != nil {
		status = store.GoalFailed
	}
	return &Outcome{GoalID: approval.GoalID, Output: output, GoalStatus: status}, nil
}

func executeAndRecord(
	ctx context.Context,
	st *store.Store,
	connType Type,
	connector *store.Connector,
	toolName, input string,
	secrets SecretResolver,
	goalID, approvalID string,
	riskMode store.RiskMode,
) (string, error) {
	output, err := connType.Execute(ctx, connector, toolName, input, secrets)
	if err != nil {
		if goalID != "" {
			_, _ = st.AppendTrace(goalID, "execution_failed", err.Error(), riskMode)
			_ = st.SetGoalStatus(goalID, store.GoalFailed)
		}
		return "", err
	}

	runID := uuid.NewString()
	if err := st.RecordToolRun(&store.ToolRun{ID: runID, ApprovalID: approvalID, ToolName: toolName, Status: "executed", Output: output}); err != nil {
		return output, err
	}
	if err := st.RecordConnectorToolUsage(connector.ID, toolName, goalID); err != nil {
		return output, err
	}
	if goalID != "" {
		eventType := "execution_completed"
		if approvalID != "" {
			eventType = "approval_executed"
		}
		if _, err := st.AppendTrace(goalID, eventType, output, riskMode); err != nil {
			return output, err
		}
		if err := st.SetGoalStatus(goalID, store.GoalCompleted); err != nil {
			return output, err
		}
	}
	return output, nil
}

func requestedDetail(connectorID, toolName, input string) string {
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(input), &decoded); err != nil {
		return fmt.Sprintf("connector=%s tool=%s input=%s", connectorID, toolName, input)
	}
	sanitised := redact.Map(decoded)
	out, err := json.Marshal(sanitised)
	if err != nil {
		return fmt.Sprintf("connector=%s tool=%s", connectorID, toolName)
	}
	return fmt.Sprintf("connector=%s tool=%s input=%s", connectorID, toolName, string(out))
}

func policyDenialMessage(decision policy.Result) string {
	if decision.Violation != nil {
		return decision.Violation.Error()
	}
	return fmt.Sprintf("denied by rule %s", decision.MatchedRule)
}
