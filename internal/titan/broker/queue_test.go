package broker_test

import (
	"context"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/broker"
	"github.com/antigravity-dev/titan/internal/titan/planner"
	"github.com/antigravity-dev/titan/internal/titan/policy"
	"github.com/antigravity-dev/titan/internal/titan/store"
	"github.com/antigravity-dev/titan/internal/titan/tools"
)

func classifyViaPlanner(description string) (planner.Intent, planner.Candidate) {
	intent, candidate, _ := planner.Select(description)
	return intent, candidate
}

func TestQueue_SubmitDedupesOnKey(t *testing.T) {
	q := broker.NewQueue()
	first := q.Submit(&broker.GoalJob{GoalID: "g1", Description: "scan the workspace", DedupeKey: "dk1"})
	second := q.Submit(&broker.GoalJob{GoalID: "g2", Description: "scan the workspace", DedupeKey: "dk1"})

	if !first {
		t.Error("first submit with a fresh dedupe key should succeed")
	}
	if second {
		t.Error("second submit with the same dedupe key should be a no-op")
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestQueue_SubmitWithoutDedupeKeyAlwaysEnqueues(t *testing.T) {
	q := broker.NewQueue()
	q.Submit(&broker.GoalJob{GoalID: "g1", Description: "scan the workspace"})
	q.Submit(&broker.GoalJob{GoalID: "g2", Description: "scan the workspace"})

	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func TestRunNextFromQueue_CancelledJobIsConsumedNotExecuted(t *testing.T) {
	q := broker.NewQueue()
	q.Submit(&broker.GoalJob{GoalID: "g1", Description: "scan the workspace"})
	q.Cancel("g1")

	dir := t.TempDir()
	cfg := broker.RunConfig{
		Registry: tools.NewDefaultRegistry(),
		EvalStep: func(string, store.Permission) policy.Result { return policy.Result{Decision: policy.DecisionAllow} },
		ExecCtx:  tools.ExecutionContext{WorkspaceRoot: dir, MaxOutputBytes: 1 << 16},
	}

	outcome := broker.RunNextFromQueue(context.Background(), q, cfg, classifyViaPlanner)

	if outcome == nil {
		t.Fatal("expected a non-nil outcome for a cancelled job")
	}
	if !outcome.Cancelled {
		t.Error("expected Cancelled=true")
	}
	if len(outcome.TraceEvents) != 1 || outcome.TraceEvents[0] != "goal_cancelled" {
		t.Errorf("TraceEvents = %v, want [goal_cancelled]", outcome.TraceEvents)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after dequeue", q.Len())
	}
}

func TestRunNextFromQueue_CompletesOnFirstAttempt(t *testing.T) {
	q := broker.NewQueue()
	q.Submit(&broker.GoalJob{GoalID: "g1", Description: "scan the workspace", MaxRetries: 2})

	dir := t.TempDir()
	cfg := broker.RunConfig{
		Registry: tools.NewDefaultRegistry(),
		EvalStep: func(string, store.Permission) policy.Result { return policy.Result{Decision: policy.DecisionAllow} },
		ExecCtx:  tools.ExecutionContext{WorkspaceRoot: dir, MaxOutputBytes: 1 << 16},
	}

	outcome := broker.RunNextFromQueue(context.Background(), q, cfg, classifyViaPlanner)

	if outcome == nil {
		t.Fatal("expected a non-nil outcome")
	}
	if outcome.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", outcome.Attempts)
	}
	if outcome.Result.GoalStatus != store.GoalCompleted {
		t.Errorf("GoalStatus = %v, want GoalCompleted", outcome.Result.GoalStatus)
	}
}

func TestRunNextFromQueue_RetriesUpToMaxRetriesThenGivesUp(t *testing.T) {
	q := broker.NewQueue()
	q.Submit(&broker.GoalJob{GoalID: "g1", Description: "update the readme", MaxRetries: 2})

	// Missing workspace root makes canonicalRoot fail for every step, so
	// every attempt fails deterministically through the retry ladder.
	cfg := broker.RunConfig{
		Registry: tools.NewDefaultRegistry(),
		EvalStep: func(string, store.Permission) policy.Result { return policy.Result{Decision: policy.DecisionAllow} },
		ExecCtx:  tools.ExecutionContext{WorkspaceRoot: "/nonexistent/root/path", MaxOutputBytes: 1 << 16},
	}

	outcome := broker.RunNextFromQueue(context.Background(), q, cfg, classifyViaPlanner)

	if outcome == nil {
		t.Fatal("expected a non-nil outcome")
	}
	if outcome.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3 (MaxRetries=2 => 3 total attempts)", outcome.Attempts)
	}
	if outcome.Result.GoalStatus != store.GoalFailed {
		t.Errorf("GoalStatus = %v, want GoalFailed", outcome.Result.GoalStatus)
	}
}

func TestRunNextFromQueue_EmptyQueueReturnsNil(t *testing.T) {
	q := broker.NewQueue()
	dir := t.TempDir()
	cfg := broker.RunConfig{
		Registry: tools.NewDefaultRegistry(),
		EvalStep: func(string, store.Permission) policy.Result { return policy.Result{Decision: policy.DecisionAllow} },
		ExecCtx:  tools.ExecutionContext{WorkspaceRoot: dir},
	}

	outcome := broker.RunNextFromQueue(context.Background(), q, cfg, classifyViaPlanner)

	if outcome != nil {
		t.Errorf("expected nil outcome for an empty queue, got %+v", outcome)
	}
}
