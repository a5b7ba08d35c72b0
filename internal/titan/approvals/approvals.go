// Package approvals is TITAN's Approval State Machine: the business layer
// atop store.Store's approval CRUD. It is grounded directly on
// internal/ruriko/approvals/store.go and gate.go — the idempotent
// status='pending' resolve, the TTL sweep before every read, and a
// Request/Resolve pair that wraps the raw store operations with the side
// effects the spec attaches to a decision (denial cancels the linked goal,
// approval execution is at-most-once via tool_runs).
package approvals

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/titan/internal/titan/store"
)

// ErrReplayBlocked is returned by Resolve when an approval has already
// backed a tool run — approving it again must not execute the tool twice.
var ErrReplayBlocked = fmt.Errorf("approvals: replay blocked, tool already ran for this approval")

// DefaultTTL is the approval lifetime used when a caller passes TTLMs <= 0,
// grounded on internal/ruriko/approvals/types.go's own DefaultTTL/"pass 0
// to use DefaultTTL" contract.
const DefaultTTL = 24 * time.Hour

// Controller wraps a store.Store with the approval lifecycle's business
// rules: request creation, idempotent resolution, replay prevention, and
// the denial side effects (goal cancellation, trace, episodic memory).
type Controller struct {
	st *store.Store
}

// New returns a Controller backed by st.
func New(st *store.Store) *Controller {
	return &Controller{st: st}
}

// RequestParams is everything needed to file a new pending approval.
type RequestParams struct {
	GoalID      string
	ToolName    string
	Capability  string
	Input       string
	RequestedBy string
	TTLMs       int64
}

// Request creates a new pending approval with a fresh id and nonce, both
// random UUIDs per the spec's create_approval_request_for_goal contract.
func (c *Controller) Request(p RequestParams) (*store.Approval, error) {
	ttlMs := p.TTLMs
	if ttlMs <= 0 {
		ttlMs = DefaultTTL.Milliseconds()
	}
	a := &store.Approval{
		ID:          uuid.NewString(),
		Nonce:       uuid.NewString(),
		GoalID:      p.GoalID,
		ToolName:    p.ToolName,
		Capability:  p.Capability,
		Input:       p.Input,
		RequestedBy: p.RequestedBy,
		ExpiresAtMS: nowMS() + ttlMs,
	}
	if err := c.st.CreateApproval(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns the approval, first sweeping it to expired if its TTL has
// elapsed — never observes a stale pending status.
func (c *Controller) Get(id string) (*store.Approval, error) {
	return c.st.GetApproval(id)
}

// ListPending returns every approval currently pending, after sweeping
// expirations.
func (c *Controller) ListPending() ([]*store.Approval, error) {
	return c.st.ListApprovals(store.ApprovalPending)
}

// ResolveOutcome reports what Resolve actually did, for the gateway layer
// to turn into a trace sequence and a user-facing reply.
type ResolveOutcome struct {
	Approval     *store.Approval
	ReplayBlocked bool
	NotPending   bool
}

// Resolve transitions a pending approval to approved or denied. On
// approve, it checks tool_runs for a prior execution under this approval
// id first — a second approve call for an already-consumed approval
// returns ReplayBlocked without touching the approval's status. On deny,
// the caller is expected to additionally cancel the linked goal; Resolve
// itself only flips the approval status (goal cancellation lives in
// ResolveWithSideEffects, which needs the store's goal operations too).
func (c *Controller) Resolve(id string, approve bool, resolvedBy, reason string) (*ResolveOutcome, error) {
	if approve {
		consumed, err := c.st.HasToolRunForApproval(id)
		if err != nil {
			return nil, err
		}
		if consumed {
			a, getErr := c.st.GetApproval(id)
			if getErr != nil {
				return nil, getErr
			}
			return &ResolveOutcome{Approval: a, ReplayBlocked: true}, nil
		}
	}

	a, err := c.st.ResolveApproval(id, approve, resolvedBy, reason)
	if err == store.ErrApprovalNotPending {
		return &ResolveOutcome{Approval: a, NotPending: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ResolveOutcome{Approval: a}, nil
}

// ResolveWithSideEffects wraps Resolve with the spec's denial side
// effects: cancelling the linked goal (when present), appending an
// approval_denied trace, and recording an episodic memory note. On
// approve it appends an approval_executed trace to the linked goal at
// resolution time, before anything has run; executing the pending tool
// action and recording the tool run belong to the broker/runtime layer,
// which has the tool registry this package does not depend on.
func (c *Controller) ResolveWithSideEffects(id string, approve bool, resolvedBy, reason string) (*ResolveOutcome, error) {
	outcome, err := c.Resolve(id, approve, resolvedBy, reason)
	if err != nil {
		return nil, err
	}
	if outcome.ReplayBlocked || outcome.NotPending {
		return outcome, nil
	}
	if approve {
		if outcome.Approval.GoalID != "" {
			if _, traceErr := c.st.AppendTrace(outcome.Approval.GoalID, "approval_executed", outcome.Approval.ID, store.RiskSecure); traceErr != nil {
				return nil, traceErr
			}
		}
		return outcome, nil
	}

	a := outcome.Approval
	if a.GoalID != "" {
		if err := c.st.SetGoalStatus(a.GoalID, store.GoalCancelled); err != nil {
			return nil, err
		}
		if _, err := c.st.AppendTrace(a.GoalID, "approval_denied", a.DecisionReason, store.RiskSecure); err != nil {
			return nil, err
		}
		summary := fmt.Sprintf("approval %s denied: %s", a.ID, a.DecisionReason)
		if err := c.st.AppendEpisodic(a.GoalID, summary, ""); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// SweepExpired runs the bulk TTL sweep — the background ticker's entry
// point, in addition to the implicit per-read sweep every Get/ListPending
// call already performs.
func (c *Controller) SweepExpired() error {
	return c.st.ExpirePendingApprovals()
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
