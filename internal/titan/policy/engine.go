// Package policy is TITAN's policy and risk engine: a deterministic,
// side-effect-free decision function over (autonomy mode, risk mode,
// capability class) plus a small set of named override rules, in the
// same first-match-wins shape as the teacher's Gosuto capability engine.
package policy

import (
	"fmt"

	"github.com/antigravity-dev/titan/internal/titan/config"
	"github.com/antigravity-dev/titan/internal/titan/store"
)

// Decision is the outcome of policy evaluation.
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionRequireApproval
	DecisionDeny
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionRequireApproval:
		return "require_approval"
	case DecisionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// Violation explains why a call was denied.
type Violation struct {
	Rule    string
	Message string
}

func (v Violation) Error() string {
	return fmt.Sprintf("[%s] %s", v.Rule, v.Message)
}

// Result is the full output of a policy evaluation.
type Result struct {
	Decision    Decision
	MatchedRule string
	Violation   *Violation
}

// Request is everything Evaluate needs to reach a decision.
type Request struct {
	Mode       config.Mode
	RiskMode   store.RiskMode
	Capability store.Permission
	ToolName   string

	// DeniedTools is an explicit per-installation denylist (e.g. a skill
	// manifest that never gets exec regardless of mode/risk).
	DeniedTools []string
}

// Engine evaluates policy against the (mode, risk mode, capability)
// matrix below, consulting no other state — callers decide mode and risk
// mode before calling Evaluate.
type Engine struct{}

// New returns a new policy Engine. It is stateless; evaluation depends
// only on its Request argument.
func New() *Engine { return &Engine{} }

// matrix[mode][riskMode][capability] is the base decision before any
// named override is applied: under risk=yolo every mode allows every
// capability class outright; under risk=secure, supervised gates
// everything, collaborative gates everything but Read, and autonomous
// gates nothing.
var matrix = map[config.Mode]map[store.RiskMode]map[store.Permission]Decision{
	config.ModeSupervised: {
		store.RiskSecure: {
			store.PermissionRead:  DecisionRequireApproval,
			store.PermissionWrite: DecisionRequireApproval,
			store.PermissionExec:  DecisionRequireApproval,
			store.PermissionNet:   DecisionRequireApproval,
		},
		store.RiskYolo: {
			store.PermissionRead:  DecisionAllow,
			store.PermissionWrite: DecisionAllow,
			store.PermissionExec:  DecisionAllow,
			store.PermissionNet:   DecisionAllow,
		},
	},
	config.ModeCollaborative: {
		store.RiskSecure: {
			store.PermissionRead:  DecisionAllow,
			store.PermissionWrite: DecisionRequireApproval,
			store.PermissionExec:  DecisionRequireApproval,
			store.PermissionNet:   DecisionRequireApproval,
		},
		store.RiskYolo: {
			store.PermissionRead:  DecisionAllow,
			store.PermissionWrite: DecisionAllow,
			store.PermissionExec:  DecisionAllow,
			store.PermissionNet:   DecisionAllow,
		},
	},
	config.ModeAutonomous: {
		store.RiskSecure: {
			store.PermissionRead:  DecisionAllow,
			store.PermissionWrite: DecisionAllow,
			store.PermissionExec:  DecisionAllow,
			store.PermissionNet:   DecisionAllow,
		},
		store.RiskYolo: {
			store.PermissionRead:  DecisionAllow,
			store.PermissionWrite: DecisionAllow,
			store.PermissionExec:  DecisionAllow,
			store.PermissionNet:   DecisionAllow,
		},
	},
}

// Evaluate returns the policy decision for req. Rules, in order: an
// explicit per-installation deny always wins; otherwise the
// (mode, risk mode, capability) matrix applies; an unrecognised mode or
// capability defaults to deny, never to allow.
func (e *Engine) Evaluate(req Request) Result {
	for _, denied := range req.DeniedTools {
		if denied == req.ToolName {
			return Result{
				Decision:    DecisionDeny,
				MatchedRule: "explicit_deny",
				Violation: &Violation{
					Rule:    "explicit_deny",
					Message: fmt.Sprintf("tool %q is explicitly denied for this installation", req.ToolName),
				},
			}
		}
	}

	byRisk, ok := matrix[req.Mode]
	if !ok {
		return defaultDeny(req, "mode")
	}
	byCap, ok := byRisk[req.RiskMode]
	if !ok {
		return defaultDeny(req, "risk_mode")
	}
	decision, ok := byCap[req.Capability]
	if !ok {
		return defaultDeny(req, "capability")
	}

	rule := fmt.Sprintf("%s/%s/%s", req.Mode, req.RiskMode, req.Capability)
	if decision == DecisionDeny {
		return Result{
			Decision:    DecisionDeny,
			MatchedRule: rule,
			Violation: &Violation{
				Rule:    rule,
				Message: fmt.Sprintf("%s denies %s capability calls", req.Mode, req.Capability),
			},
		}
	}
	return Result{Decision: decision, MatchedRule: rule}
}

func defaultDeny(req Request, axis string) Result {
	rule := "<default>"
	return Result{
		Decision:    DecisionDeny,
		MatchedRule: rule,
		Violation: &Violation{
			Rule:    rule,
			Message: fmt.Sprintf("unrecognised %s; default deny for tool %q", axis, req.ToolName),
		},
	}
}
