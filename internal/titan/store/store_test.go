package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/antigravity-dev/titan/internal/titan/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "titan.db")
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateGoal_RejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	g := &store.Goal{ID: "g1", Description: "scan workspace", Status: store.GoalPending}
	if err := s.CreateGoal(g); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if err := s.CreateGoal(&store.Goal{ID: "g1", Description: "again", Status: store.GoalPending}); err != store.ErrDuplicateGoal {
		t.Errorf("CreateGoal duplicate = %v, want ErrDuplicateGoal", err)
	}
}

func TestFindGoalByDedupeKey_ReturnsNilNilWhenMissing(t *testing.T) {
	s := newTestStore(t)
	g, err := s.FindGoalByDedupeKey("nonexistent")
	if err != nil {
		t.Fatalf("FindGoalByDedupeKey: %v", err)
	}
	if g != nil {
		t.Errorf("expected nil goal, got %+v", g)
	}
}

func TestAppendTrace_PreservesInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	g := &store.Goal{ID: "g1", Description: "d", Status: store.GoalPending}
	if err := s.CreateGoal(g); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	for _, evt := range []string{"goal_submitted", "event_received", "planning_started"} {
		if _, err := s.AppendTrace("g1", evt, "", store.RiskSecure); err != nil {
			t.Fatalf("AppendTrace(%s): %v", evt, err)
		}
	}
	traces, err := s.ListTraces("g1")
	if err != nil {
		t.Fatalf("ListTraces: %v", err)
	}
	want := []string{"goal_submitted", "event_received", "planning_started"}
	if len(traces) != len(want) {
		t.Fatalf("got %d traces, want %d", len(traces), len(want))
	}
	for i, evt := range want {
		if traces[i].EventType != evt {
			t.Errorf("trace[%d] = %q, want %q", i, traces[i].EventType, evt)
		}
	}
}

func TestResolveApproval_IdempotentSecondCallNoOps(t *testing.T) {
	s := newTestStore(t)
	a := &store.Approval{
		ID: "a1", Nonce: "n1", ToolName: "write_file", Capability: "write",
		ExpiresAtMS: time.Now().Add(time.Hour).UnixMilli(),
	}
	if err := s.CreateApproval(a); err != nil {
		t.Fatalf("CreateApproval: %v", err)
	}

	resolved, err := s.ResolveApproval("a1", true, "alice", "")
	if err != nil {
		t.Fatalf("first ResolveApproval: %v", err)
	}
	if resolved.Status != store.ApprovalApproved {
		t.Fatalf("Status = %v, want ApprovalApproved", resolved.Status)
	}

	again, err := s.ResolveApproval("a1", false, "bob", "changed my mind")
	if err != store.ErrApprovalNotPending {
		t.Fatalf("second ResolveApproval err = %v, want ErrApprovalNotPending", err)
	}
	if again.Status != store.ApprovalApproved {
		t.Errorf("second resolve flipped status to %v, want it to remain ApprovalApproved", again.Status)
	}
}

func TestGetApproval_SweepsExpiredBeforeRead(t *testing.T) {
	s := newTestStore(t)
	a := &store.Approval{
		ID: "a1", Nonce: "n1", ToolName: "write_file", Capability: "write",
		ExpiresAtMS: time.Now().Add(-time.Hour).UnixMilli(),
	}
	if err := s.CreateApproval(a); err != nil {
		t.Fatalf("CreateApproval: %v", err)
	}

	got, err := s.GetApproval("a1")
	if err != nil {
		t.Fatalf("GetApproval: %v", err)
	}
	if got.Status != store.ApprovalExpired {
		t.Errorf("Status = %v, want ApprovalExpired", got.Status)
	}
}

func TestRecordToolRun_EnforcesAtMostOncePerApproval(t *testing.T) {
	s := newTestStore(t)
	a := &store.Approval{
		ID: "a1", Nonce: "n1", ToolName: "write_file", Capability: "write",
		ExpiresAtMS: time.Now().Add(time.Hour).UnixMilli(),
	}
	if err := s.CreateApproval(a); err != nil {
		t.Fatalf("CreateApproval: %v", err)
	}

	if err := s.RecordToolRun(&store.ToolRun{ID: "tr1", ApprovalID: "a1", ToolName: "write_file", Status: "executed"}); err != nil {
		t.Fatalf("first RecordToolRun: %v", err)
	}
	err := s.RecordToolRun(&store.ToolRun{ID: "tr2", ApprovalID: "a1", ToolName: "write_file", Status: "executed"})
	if err != store.ErrApprovalAlreadyConsumed {
		t.Fatalf("second RecordToolRun err = %v, want ErrApprovalAlreadyConsumed", err)
	}

	used, err := s.HasToolRunForApproval("a1")
	if err != nil {
		t.Fatalf("HasToolRunForApproval: %v", err)
	}
	if !used {
		t.Error("expected HasToolRunForApproval to report true")
	}
}

func TestPersistRunBundle_AtomicWriteAcrossTables(t *testing.T) {
	s := newTestStore(t)
	bundle := &store.RunBundle{
		Goal:        &store.Goal{ID: "g1", Description: "scan workspace"},
		FinalStatus: store.GoalCompleted,
		Plan: &store.Plan{
			ID: "p1", GoalID: "g1", IntentTag: "ScanWorkspace",
			SelectedCandidateID: "list_only", SelectedScore: 0.75,
		},
		Steps: []store.ExecutedStep{
			{StepID: "s1", ToolName: "list_dir", Permission: store.PermissionRead, Status: store.StepExecuted, Output: "README.md"},
		},
		TraceEvents: []store.TraceEventInput{
			{EventType: "planning_started"},
			{EventType: "execution_completed"},
		},
		EpisodicSummary: "listed workspace contents",
		RiskMode:        store.RiskSecure,
	}

	if err := s.PersistRunBundle(bundle); err != nil {
		t.Fatalf("PersistRunBundle: %v", err)
	}

	g, err := s.GetGoal("g1")
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if g.Status != store.GoalCompleted {
		t.Errorf("goal status = %v, want GoalCompleted", g.Status)
	}

	steps, err := s.ListSteps("p1")
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 1 || steps[0].ToolName != "list_dir" {
		t.Fatalf("unexpected steps: %+v", steps)
	}

	traces, err := s.ListTraces("g1")
	if err != nil {
		t.Fatalf("ListTraces: %v", err)
	}
	if len(traces) != 2 {
		t.Fatalf("got %d traces, want 2", len(traces))
	}

	episodic, err := s.ListEpisodic("g1")
	if err != nil {
		t.Fatalf("ListEpisodic: %v", err)
	}
	if len(episodic) != 1 {
		t.Fatalf("got %d episodic rows, want 1", len(episodic))
	}
}

func TestPersistRunBundle_CreatesPendingApprovalAndSyntheticTrace(t *testing.T) {
	s := newTestStore(t)
	bundle := &store.RunBundle{
		Goal:        &store.Goal{ID: "g1", Description: "update readme"},
		FinalStatus: store.GoalPending,
		TraceEvents: []store.TraceEventInput{
			{EventType: "approval_required"},
		},
		PendingApproval: &store.PendingApproval{
			ID: "a1", Nonce: "n1", ToolName: "write_file", Capability: "write",
			ExpiresAtMS: time.Now().Add(time.Hour).UnixMilli(),
		},
		RiskMode: store.RiskSecure,
	}

	if err := s.PersistRunBundle(bundle); err != nil {
		t.Fatalf("PersistRunBundle: %v", err)
	}

	a, err := s.GetApproval("a1")
	if err != nil {
		t.Fatalf("GetApproval: %v", err)
	}
	if a.Status != store.ApprovalPending {
		t.Errorf("approval status = %v, want ApprovalPending", a.Status)
	}

	traces, err := s.ListTraces("g1")
	if err != nil {
		t.Fatalf("ListTraces: %v", err)
	}
	found := false
	for _, tr := range traces {
		if tr.EventType == "approval_queued" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a synthetic approval_queued trace, got %+v", traces)
	}
}
