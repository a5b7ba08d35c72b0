// Package planner is TITAN's planner: a deterministic, LLM-free intent
// classifier and plan-candidate scorer. It is grounded on the teacher's
// nlp.Classifier in structure — a layered, rule-based post-processing
// pipeline over a small closed vocabulary — generalised from
// command-intent classification to plan-candidate generation and
// scoring.
package planner

import (
	"strings"

	"github.com/antigravity-dev/titan/internal/titan/store"
)

// Intent is the lowercase-substring-classified intent of a goal's
// description.
type Intent string

const (
	IntentScanWorkspace Intent = "ScanWorkspace"
	IntentUpdateReadme  Intent = "UpdateReadme"
	IntentReadPath      Intent = "ReadPath"
	IntentGenericRecon  Intent = "GenericRecon"
)

// confidenceBase and the per-class/per-cost coefficients are named
// exactly as the scoring formula.
const (
	confidenceBase = 0.80

	writeConfidencePenalty = 0.10
	execConfidencePenalty  = 0.08
	netConfidencePenalty   = 0.05
	noInputPenalty         = 0.03

	riskWrite = 0.45
	riskExec  = 0.35
	riskNet   = 0.30
	riskRead  = 0.0

	costPerStep       = 0.05
	costPerSearchText = 0.03
)

// StepTemplate is one step of a candidate plan, before execution.
type StepTemplate struct {
	StepID     string
	ToolName   string
	Permission store.Permission
	Input      string
}

// Candidate is a scored plan candidate.
type Candidate struct {
	ID    string
	Steps []StepTemplate
	Score float64
}

// DetectIntent classifies description with a lowercase substring match.
// Longer, more specific phrases are checked before their generic
// fallback so "read path" doesn't steal a "scan workspace" match.
func DetectIntent(description string) (Intent, string) {
	lower := strings.ToLower(description)

	switch {
	case strings.Contains(lower, "update the readme"), strings.Contains(lower, "update readme"):
		return IntentUpdateReadme, ""
	case strings.Contains(lower, "scan the workspace"), strings.Contains(lower, "scan workspace"):
		return IntentScanWorkspace, ""
	case strings.Contains(lower, "read "):
		if idx := strings.Index(lower, "read "); idx >= 0 {
			rest := strings.TrimSpace(description[idx+len("read "):])
			if rest != "" {
				return IntentReadPath, rest
			}
		}
		return IntentGenericRecon, ""
	default:
		return IntentGenericRecon, ""
	}
}

// GenerateCandidates returns the hand-authored candidate set for intent,
// in the fixed order that backs the tie-break rule in Select.
func GenerateCandidates(intent Intent, arg string) []Candidate {
	switch intent {
	case IntentScanWorkspace:
		return []Candidate{
			newCandidate("list_then_search", []StepTemplate{
				{StepID: "s1", ToolName: "list_dir", Permission: store.PermissionRead, Input: "."},
				{StepID: "s2", ToolName: "search_text", Permission: store.PermissionRead, Input: "TODO::."},
			}),
			newCandidate("list_only", []StepTemplate{
				{StepID: "s1", ToolName: "list_dir", Permission: store.PermissionRead, Input: "."},
			}),
			newCandidate("deep_scan", []StepTemplate{
				{StepID: "s1", ToolName: "list_dir", Permission: store.PermissionRead, Input: "."},
				{StepID: "s2", ToolName: "search_text", Permission: store.PermissionRead, Input: "TODO::."},
				{StepID: "s3", ToolName: "search_text", Permission: store.PermissionRead, Input: "FIXME::."},
			}),
		}
	case IntentUpdateReadme:
		return []Candidate{
			newCandidate("read_then_write", []StepTemplate{
				{StepID: "s1", ToolName: "read_file", Permission: store.PermissionRead, Input: "README.md"},
				{StepID: "s2", ToolName: "write_file", Permission: store.PermissionWrite, Input: "README.md::"},
			}),
			newCandidate("write_only", []StepTemplate{
				{StepID: "s1", ToolName: "write_file", Permission: store.PermissionWrite, Input: "README.md::"},
			}),
			newCandidate("read_search_write", []StepTemplate{
				{StepID: "s1", ToolName: "read_file", Permission: store.PermissionRead, Input: "README.md"},
				{StepID: "s2", ToolName: "search_text", Permission: store.PermissionRead, Input: "TODO::."},
				{StepID: "s3", ToolName: "write_file", Permission: store.PermissionWrite, Input: "README.md::"},
			}),
		}
	case IntentReadPath:
		return []Candidate{
			newCandidate("read_path", []StepTemplate{
				{StepID: "s1", ToolName: "read_file", Permission: store.PermissionRead, Input: arg},
			}),
			newCandidate("list_then_read", []StepTemplate{
				{StepID: "s1", ToolName: "list_dir", Permission: store.PermissionRead, Input: "."},
				{StepID: "s2", ToolName: "read_file", Permission: store.PermissionRead, Input: arg},
			}),
		}
	default: // IntentGenericRecon
		return []Candidate{
			newCandidate("list_root", []StepTemplate{
				{StepID: "s1", ToolName: "list_dir", Permission: store.PermissionRead, Input: "."},
			}),
			newCandidate("list_and_search", []StepTemplate{
				{StepID: "s1", ToolName: "list_dir", Permission: store.PermissionRead, Input: "."},
				{StepID: "s2", ToolName: "search_text", Permission: store.PermissionRead, Input: "TODO::."},
			}),
		}
	}
}

func newCandidate(id string, steps []StepTemplate) Candidate {
	return Candidate{ID: id, Steps: steps, Score: score(steps)}
}

func score(steps []StepTemplate) float64 {
	var writeCount, execCount, netCount, searchTextCount int
	hasInput := false
	var riskSum float64

	for _, st := range steps {
		switch st.Permission {
		case store.PermissionWrite:
			writeCount++
			riskSum += riskWrite
		case store.PermissionExec:
			execCount++
			riskSum += riskExec
		case store.PermissionNet:
			netCount++
			riskSum += riskNet
		case store.PermissionRead:
			riskSum += riskRead
		}
		if st.ToolName == "search_text" {
			searchTextCount++
		}
		if strings.TrimSpace(st.Input) != "" {
			hasInput = true
		}
	}

	base := confidenceBase
	base -= float64(writeCount) * writeConfidencePenalty
	base -= float64(execCount) * execConfidencePenalty
	base -= float64(netCount) * netConfidencePenalty
	if !hasInput {
		base -= noInputPenalty
	}

	cost := float64(len(steps))*costPerStep + float64(searchTextCount)*costPerSearchText

	s := base - riskSum - cost
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	return s
}

// Select runs the full planner pipeline: detect intent, generate
// candidates, and pick the highest score, breaking ties by first-seen
// order (GenerateCandidates's slice order). It returns the chosen
// candidate, the intent tag, and the ordered trace events a caller
// should persist.
func Select(description string) (Intent, Candidate, []string) {
	intent, arg := DetectIntent(description)
	candidates := GenerateCandidates(intent, arg)

	var events []string
	events = append(events, "planning_started")

	best := candidates[0]
	for _, c := range candidates {
		events = append(events, "plan_candidate_generated")
		if c.Score > best.Score {
			best = c
		}
	}
	events = append(events, "plan_selected", "planning_completed")

	return intent, best, events
}
