package gateway_test

import (
	"context"
	"strings"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/config"
	"github.com/antigravity-dev/titan/internal/titan/gateway"
)

func TestDispatchCommand_StatusAndMode(t *testing.T) {
	rt, _ := newTestRuntime(t, config.ModeCollaborative)
	ctx := context.Background()
	ev := gateway.Event{Channel: "cli", PeerID: "gina", ActorID: "gina"}

	ev.Text = "/status"
	reply, err := rt.ProcessChatInput(ctx, ev)
	if err != nil {
		t.Fatalf("/status: %v", err)
	}
	if !strings.Contains(reply, "mode=collaborative") {
		t.Errorf("/status reply = %q, want mode=collaborative", reply)
	}

	ev.Text = "/mode autonomous"
	reply, err = rt.ProcessChatInput(ctx, ev)
	if err != nil {
		t.Fatalf("/mode autonomous: %v", err)
	}
	if !strings.Contains(reply, "autonomous") {
		t.Errorf("/mode reply = %q, want autonomous", reply)
	}

	ev.Text = "/status"
	reply, err = rt.ProcessChatInput(ctx, ev)
	if err != nil {
		t.Fatalf("/status after override: %v", err)
	}
	if !strings.Contains(reply, "mode=autonomous") {
		t.Errorf("/status reply after override = %q, want mode=autonomous", reply)
	}
}

func TestDispatchCommand_Yolo_AlwaysRefused(t *testing.T) {
	rt, _ := newTestRuntime(t, config.ModeCollaborative)
	reply, err := rt.ProcessChatInput(context.Background(), gateway.Event{
		Channel: "cli", PeerID: "hank", ActorID: "hank", Text: "/yolo",
	})
	if err != nil {
		t.Fatalf("/yolo: %v", err)
	}
	if !strings.Contains(reply, "not available") {
		t.Errorf("/yolo reply = %q, want a refusal", reply)
	}
}

func TestDispatchCommand_NewResetsSession(t *testing.T) {
	rt, st := newTestRuntime(t, config.ModeCollaborative)
	ctx := context.Background()
	ev := gateway.Event{Channel: "cli", PeerID: "ivy", ActorID: "ivy"}

	ev.Text = "/mode autonomous"
	if _, err := rt.ProcessChatInput(ctx, ev); err != nil {
		t.Fatalf("/mode: %v", err)
	}
	ev.Text = "/new"
	if _, err := rt.ProcessChatInput(ctx, ev); err != nil {
		t.Fatalf("/new: %v", err)
	}

	sess, err := st.GetOrCreateSession("cli", "ivy")
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	if sess.ModeOverride != "" {
		t.Errorf("ModeOverride = %q after /new, want cleared", sess.ModeOverride)
	}
}

func TestDispatchCommand_AllowlistAddAndRemove(t *testing.T) {
	rt, _ := newTestRuntime(t, config.ModeAutonomous)
	ctx := context.Background()
	ev := gateway.Event{Channel: "cli", PeerID: "jim", ActorID: "jim"}

	ev.Text = "/allowlist add jim"
	reply, err := rt.ProcessChatInput(ctx, ev)
	if err != nil {
		t.Fatalf("/allowlist add: %v", err)
	}
	if !strings.Contains(reply, "added jim") {
		t.Errorf("/allowlist add reply = %q", reply)
	}

	ev.Text = "/allowlist"
	reply, err = rt.ProcessChatInput(ctx, ev)
	if err != nil {
		t.Fatalf("/allowlist list: %v", err)
	}
	if !strings.Contains(reply, "jim") {
		t.Errorf("/allowlist list reply = %q, want jim", reply)
	}

	ev.Text = "/allowlist remove jim"
	if _, err := rt.ProcessChatInput(ctx, ev); err != nil {
		t.Fatalf("/allowlist remove: %v", err)
	}
}
