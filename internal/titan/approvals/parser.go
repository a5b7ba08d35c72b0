package approvals

import (
	"fmt"
	"strings"
)

// Decision is a parsed /approve or /deny command.
type Decision struct {
	Approve    bool
	ApprovalID string
	Reason     string
}

// ErrNotADecision is returned when text is not an approve/deny command.
var ErrNotADecision = fmt.Errorf("approvals: not an approval decision")

// ParseDecision parses a slash command of the form:
//
//	/approve <id>
//	/deny <id> reason="<text>"
//	/deny <id> <reason text>
//
// matching the spec's "/approve <id> / /deny <id>" command table. The
// leading slash is optional so gateway code that has already stripped a
// "/titan " prefix can pass either form.
func ParseDecision(text string) (*Decision, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "/")

	lower := strings.ToLower(text)
	var isApprove bool
	switch {
	case strings.HasPrefix(lower, "approve ") || lower == "approve":
		isApprove = true
	case strings.HasPrefix(lower, "deny ") || lower == "deny":
		isApprove = false
	default:
		return nil, ErrNotADecision
	}

	verb := "approve"
	if !isApprove {
		verb = "deny"
	}
	rest := strings.TrimSpace(text[len(verb):])
	if rest == "" {
		return nil, fmt.Errorf("usage: %s <approval-id> [reason]", verb)
	}

	fields := strings.Fields(rest)
	id := fields[0]

	var reason string
	if len(fields) > 1 {
		reason = parseReason(strings.Join(fields[1:], " "))
	}
	if !isApprove && strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf(`deny requires a reason: /deny <id> reason="<text>" or /deny <id> <text>`)
	}

	return &Decision{Approve: isApprove, ApprovalID: id, Reason: reason}, nil
}

func parseReason(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "reason=") {
		val := s[len("reason="):]
		return strings.Trim(val, `"'`)
	}
	return s
}
