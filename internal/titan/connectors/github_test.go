package connectors_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/connectors"
	"github.com/antigravity-dev/titan/internal/titan/store"
)

type staticResolver struct{ token string }

func (s staticResolver) Resolve(connectorID, suffix string) (string, error) { return s.token, nil }

func TestGitHub_ListIssuesReturnsSummaries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/repos/octo/widgets/issues") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"number":1,"title":"bug","state":"open","html_url":"https://github.com/octo/widgets/issues/1"}]`))
	}))
	defer server.Close()

	gh := connectors.GitHub{BaseURL: server.URL + "/"}
	connector := &store.Connector{ID: "gh-1", Type: "github"}

	out, err := gh.Execute(context.Background(), connector, "list_issues", `{"owner":"octo","repo":"widgets"}`, staticResolver{token: "t"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var summaries []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &summaries); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(summaries) != 1 || summaries[0]["title"] != "bug" {
		t.Errorf("unexpected summaries: %v", summaries)
	}
}

func TestGitHub_CreateIssueReturnsConfirmation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"number":42,"html_url":"https://github.com/octo/widgets/issues/42"}`))
	}))
	defer server.Close()

	gh := connectors.GitHub{BaseURL: server.URL + "/"}
	connector := &store.Connector{ID: "gh-1", Type: "github"}

	out, err := gh.Execute(context.Background(), connector, "create_issue", `{"owner":"octo","repo":"widgets","title":"t","body":"b"}`, staticResolver{token: "t"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "#42") || !strings.Contains(out, "issues/42") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestGitHub_UnknownToolNameErrors(t *testing.T) {
	gh := connectors.GitHub{}
	connector := &store.Connector{ID: "gh-1", Type: "github"}

	if _, err := gh.Execute(context.Background(), connector, "delete_repo", "{}", staticResolver{token: "t"}); err == nil {
		t.Fatal("expected error for unknown tool name")
	}
}

func TestGitHub_DescriptorsExposeReadAndWriteRiskClasses(t *testing.T) {
	gh := connectors.GitHub{}
	descs := gh.Descriptors()
	if len(descs) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(descs))
	}
	byName := map[string]connectors.ConnectorToolDescriptor{}
	for _, d := range descs {
		byName[d.Name] = d
	}
	if byName["list_issues"].RiskClass != store.PermissionRead {
		t.Errorf("list_issues RiskClass = %v, want read", byName["list_issues"].RiskClass)
	}
	if byName["create_issue"].RiskClass != store.PermissionWrite {
		t.Errorf("create_issue RiskClass = %v, want write", byName["create_issue"].RiskClass)
	}
}
