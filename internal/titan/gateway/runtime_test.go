package gateway_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/config"
	"github.com/antigravity-dev/titan/internal/titan/gateway"
	"github.com/antigravity-dev/titan/internal/titan/store"
	"github.com/antigravity-dev/titan/internal/titan/tools"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "titan.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRuntime(t *testing.T, mode config.Mode) (*gateway.Runtime, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	cfg := &config.Config{
		WorkspaceDir: t.TempDir(),
		Mode:         mode,
		Chat:         config.ChatConfig{ActivationMode: config.ActivationAlways},
		Model:        config.ModelConfig{ModelID: "test-model"},
	}
	return gateway.New(s, cfg, tools.NewDefaultRegistry()), s
}

func TestProcessEvent_AutonomousReadGoal_Completes(t *testing.T) {
	rt, _ := newTestRuntime(t, config.ModeAutonomous)
	reply, err := rt.ProcessEvent(context.Background(), gateway.Event{
		Channel: "cli", PeerID: "alice", ActorID: "alice", Text: "please scan the workspace",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if !strings.Contains(reply, "completed") {
		t.Errorf("reply = %q, want a completed summary", reply)
	}
}

func TestProcessEvent_CollaborativeWriteGoal_QueuesApprovalThenExecutesOnApprove(t *testing.T) {
	rt, st := newTestRuntime(t, config.ModeCollaborative)
	ctx := context.Background()

	reply, err := rt.ProcessEvent(ctx, gateway.Event{
		Channel: "cli", PeerID: "bob", ActorID: "bob", Text: "update the readme",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if !strings.Contains(reply, "queued approval") {
		t.Fatalf("reply = %q, want a queued-approval message", reply)
	}

	pending, err := st.ListApprovals(store.ApprovalPending)
	if err != nil {
		t.Fatalf("ListApprovals: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending approvals = %d, want 1", len(pending))
	}
	approvalID := pending[0].ID

	approveReply, err := rt.ProcessChatInput(ctx, gateway.Event{
		Channel: "cli", PeerID: "bob", ActorID: "bob", Text: "/approve " + approvalID,
	})
	if err != nil {
		t.Fatalf("ProcessChatInput /approve: %v", err)
	}
	if !strings.Contains(approveReply, "approved") {
		t.Errorf("approve reply = %q, want an approved confirmation", approveReply)
	}

	again, err := rt.ProcessChatInput(ctx, gateway.Event{
		Channel: "cli", PeerID: "bob", ActorID: "bob", Text: "/approve " + approvalID,
	})
	if err != nil {
		t.Fatalf("ProcessChatInput second /approve: %v", err)
	}
	if !strings.Contains(again, "already executed") {
		t.Errorf("second approve reply = %q, want replay-blocked message", again)
	}
}

func TestProcessEvent_SupervisedDenyThenApprove(t *testing.T) {
	rt, st := newTestRuntime(t, config.ModeSupervised)
	ctx := context.Background()

	reply, err := rt.ProcessEvent(ctx, gateway.Event{
		Channel: "cli", PeerID: "carol", ActorID: "carol", Text: "list the workspace",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if !strings.Contains(reply, "queued approval") {
		t.Fatalf("reply = %q, want a queued-approval message (supervised gates even reads)", reply)
	}

	pending, err := st.ListApprovals(store.ApprovalPending)
	if err != nil {
		t.Fatalf("ListApprovals: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending approvals = %d, want 1", len(pending))
	}

	denyReply, err := rt.ProcessChatInput(ctx, gateway.Event{
		Channel: "cli", PeerID: "carol", ActorID: "carol", Text: "/deny " + pending[0].ID + " not needed",
	})
	if err != nil {
		t.Fatalf("ProcessChatInput /deny: %v", err)
	}
	if !strings.Contains(denyReply, "denied") {
		t.Errorf("deny reply = %q, want a denied confirmation", denyReply)
	}
}
