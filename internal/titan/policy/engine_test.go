package policy_test

import (
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/config"
	"github.com/antigravity-dev/titan/internal/titan/policy"
	"github.com/antigravity-dev/titan/internal/titan/store"
)

func TestEvaluate_SupervisedSecure(t *testing.T) {
	e := policy.New()

	cases := []struct {
		cap  store.Permission
		want policy.Decision
	}{
		{store.PermissionRead, policy.DecisionRequireApproval},
		{store.PermissionWrite, policy.DecisionRequireApproval},
		{store.PermissionExec, policy.DecisionRequireApproval},
		{store.PermissionNet, policy.DecisionRequireApproval},
	}
	for _, tc := range cases {
		got := e.Evaluate(policy.Request{Mode: config.ModeSupervised, RiskMode: store.RiskSecure, Capability: tc.cap, ToolName: "t"})
		if got.Decision != tc.want {
			t.Errorf("capability %s: got %s, want %s", tc.cap, got.Decision, tc.want)
		}
	}
}

func TestEvaluate_SupervisedYolo_AllowsEverything(t *testing.T) {
	e := policy.New()
	got := e.Evaluate(policy.Request{Mode: config.ModeSupervised, RiskMode: store.RiskYolo, Capability: store.PermissionExec, ToolName: "t"})
	if got.Decision != policy.DecisionAllow {
		t.Errorf("got %s, want allow", got.Decision)
	}
}

func TestEvaluate_CollaborativeSecure_ReadAutoWriteNeedsApproval(t *testing.T) {
	e := policy.New()
	if got := e.Evaluate(policy.Request{Mode: config.ModeCollaborative, RiskMode: store.RiskSecure, Capability: store.PermissionRead, ToolName: "t"}); got.Decision != policy.DecisionAllow {
		t.Errorf("read: got %s, want allow", got.Decision)
	}
	if got := e.Evaluate(policy.Request{Mode: config.ModeCollaborative, RiskMode: store.RiskSecure, Capability: store.PermissionWrite, ToolName: "t"}); got.Decision != policy.DecisionRequireApproval {
		t.Errorf("write: got %s, want require_approval", got.Decision)
	}
}

func TestEvaluate_AutonomousSecure_AllowsEverything(t *testing.T) {
	e := policy.New()
	for _, cap := range []store.Permission{store.PermissionRead, store.PermissionWrite, store.PermissionExec, store.PermissionNet} {
		got := e.Evaluate(policy.Request{Mode: config.ModeAutonomous, RiskMode: store.RiskSecure, Capability: cap, ToolName: "t"})
		if got.Decision != policy.DecisionAllow {
			t.Errorf("capability %s: got %s, want allow", cap, got.Decision)
		}
	}
}

func TestEvaluate_AutonomousYolo_AllowsEverything(t *testing.T) {
	e := policy.New()
	for _, cap := range []store.Permission{store.PermissionRead, store.PermissionWrite, store.PermissionExec, store.PermissionNet} {
		got := e.Evaluate(policy.Request{Mode: config.ModeAutonomous, RiskMode: store.RiskYolo, Capability: cap, ToolName: "t"})
		if got.Decision != policy.DecisionAllow {
			t.Errorf("capability %s: got %s, want allow", cap, got.Decision)
		}
	}
}

func TestEvaluate_ExplicitDenyWinsOverMatrix(t *testing.T) {
	e := policy.New()
	got := e.Evaluate(policy.Request{
		Mode: config.ModeAutonomous, RiskMode: store.RiskYolo, Capability: store.PermissionRead,
		ToolName: "dangerous_tool", DeniedTools: []string{"dangerous_tool"},
	})
	if got.Decision != policy.DecisionDeny {
		t.Errorf("got %s, want deny", got.Decision)
	}
	if got.Violation == nil {
		t.Error("expected a violation explaining the deny")
	}
}

func TestEvaluate_UnrecognisedModeDefaultsDeny(t *testing.T) {
	e := policy.New()
	got := e.Evaluate(policy.Request{Mode: "bogus", RiskMode: store.RiskSecure, Capability: store.PermissionRead, ToolName: "t"})
	if got.Decision != policy.DecisionDeny {
		t.Errorf("got %s, want deny", got.Decision)
	}
}
