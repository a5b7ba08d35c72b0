package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/go-github/v68/github"

	"github.com/antigravity-dev/titan/internal/titan/retry"
	"github.com/antigravity-dev/titan/internal/titan/store"
)

// GitHub is the connector type for github.com's REST API, the spec's own
// worked example (github.list_issues read, github.create_issue write).
// Grounded on the other_examples manifests that pull in
// github.com/google/go-github for exactly this purpose
// (nickmisasi-mattermost-plugin-cursor, randalmurphal-orc).
//
// BaseURL and HTTPClient are both optional; leaving them zero talks to
// the real api.github.com, and tests point BaseURL at an httptest server.
type GitHub struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (g GitHub) newClient(token string) (*github.Client, error) {
	client := github.NewClient(g.HTTPClient).WithAuthToken(token)
	if g.BaseURL == "" {
		return client, nil
	}
	parsed, err := url.Parse(g.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectors: github: parse base url: %w", err)
	}
	client.BaseURL = parsed
	return client, nil
}

func (GitHub) Kind() string { return "github" }

func (GitHub) Descriptors() []ConnectorToolDescriptor {
	return []ConnectorToolDescriptor{
		{
			Name:           "list_issues",
			Description:    "List open issues for a repository.",
			RequiredScopes: []string{"READ"},
			RiskClass:      store.PermissionRead,
		},
		{
			Name:           "create_issue",
			Description:    "Create an issue in a repository.",
			RequiredScopes: []string{"WRITE"},
			RiskClass:      store.PermissionWrite,
		},
	}
}

type githubListIssuesInput struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

type githubCreateIssueInput struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (g GitHub) Execute(ctx context.Context, connector *store.Connector, toolName, input string, secrets SecretResolver) (string, error) {
	token, err := secrets.Resolve(connector.ID, "token")
	if err != nil {
		return "", fmt.Errorf("connectors: github: %w", err)
	}
	client, err := g.newClient(token)
	if err != nil {
		return "", err
	}

	switch toolName {
	case "list_issues":
		var in githubListIssuesInput
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return "", fmt.Errorf("connectors: github: decode list_issues input: %w", err)
		}
		var issues []*github.Issue
		err := retry.Do(ctx, retry.DefaultConfig, func() error {
			var rerr error
			issues, _, rerr = client.Issues.ListByRepo(ctx, in.Owner, in.Repo, nil)
			return rerr
		})
		if err != nil {
			return "", fmt.Errorf("connectors: github: list issues: %w", err)
		}
		out, err := json.Marshal(summariseIssues(issues))
		if err != nil {
			return "", err
		}
		return string(out), nil

	case "create_issue":
		var in githubCreateIssueInput
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return "", fmt.Errorf("connectors: github: decode create_issue input: %w", err)
		}
		var issue *github.Issue
		err := retry.Do(ctx, retryOnServerError, func() error {
			var rerr error
			issue, _, rerr = client.Issues.Create(ctx, in.Owner, in.Repo, &github.IssueRequest{
				Title: &in.Title,
				Body:  &in.Body,
			})
			return rerr
		})
		if err != nil {
			return "", fmt.Errorf("connectors: github: create issue: %w", err)
		}
		return fmt.Sprintf("created issue #%d: %s", issue.GetNumber(), issue.GetHTMLURL()), nil

	default:
		return "", fmt.Errorf("connectors: github: unknown tool %q", toolName)
	}
}

// retryOnServerError is used for the write path: it only retries when the
// API itself signals a transient failure (5xx or no response at all), never
// on a 4xx that a blind retry would just repeat (e.g. a duplicate-title
// rejection).
var retryOnServerError = retry.Config{
	MaxAttempts:  retry.DefaultConfig.MaxAttempts,
	InitialDelay: retry.DefaultConfig.InitialDelay,
	MaxDelay:     retry.DefaultConfig.MaxDelay,
	ShouldRetry: func(err error) bool {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil {
			return ghErr.Response.StatusCode >= 500
		}
		return true
	},
}

type issueSummary struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	URL    string `json:"url"`
}

func summariseIssues(issues []*github.Issue) []issueSummary {
	out := make([]issueSummary, 0, len(issues))
	for _, iss := range issues {
		out = append(out, issueSummary{
			Number: iss.GetNumber(),
			Title:  iss.GetTitle(),
			State:  iss.GetState(),
			URL:    iss.GetHTMLURL(),
		})
	}
	return out
}
