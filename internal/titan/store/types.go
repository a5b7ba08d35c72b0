package store

import "time"

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	GoalPending   GoalStatus = "pending"
	GoalPlanning  GoalStatus = "planning"
	GoalExecuting GoalStatus = "executing"
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
	GoalCancelled GoalStatus = "cancelled"
)

// RiskMode is the active risk posture.
type RiskMode string

const (
	RiskSecure RiskMode = "secure"
	RiskYolo   RiskMode = "yolo"
)

// Permission is a capability class assigned to a tool or a plan step.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionExec  Permission = "exec"
	PermissionNet   Permission = "net"
)

// StepStatus records how a plan step's execution concluded.
type StepStatus string

const (
	StepExecuted              StepStatus = "executed"
	StepBlockedPendingApproval StepStatus = "blocked_pending_approval"
	StepExecutedAfterApproval StepStatus = "executed_after_approval"
	StepSkipped               StepStatus = "skipped"
)

// ApprovalStatus is the lifecycle state of an Approval.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
	ApprovalExpired  ApprovalStatus = "expired"
)

// UsageMode controls per-session token telemetry verbosity.
type UsageMode string

const (
	UsageOff    UsageMode = "off"
	UsageTokens UsageMode = "tokens"
	UsageFull   UsageMode = "full"
)

// ActivationMode controls when a session reacts to inbound messages.
type ActivationMode string

const (
	ActivationAlways  ActivationMode = "always"
	ActivationMention ActivationMode = "mention"
)

// SignatureStatus is the outcome of verifying a staged skill bundle.
type SignatureStatus string

const (
	SignatureVerified       SignatureStatus = "verified"
	SignatureUnsigned       SignatureStatus = "unsigned"
	SignatureUntrustedKey   SignatureStatus = "untrusted_key"
	SignatureInvalid        SignatureStatus = "invalid_signature"
)

// Goal is a single unit of user or gateway intent.
type Goal struct {
	ID          string
	Description string
	Status      GoalStatus
	DedupeKey   string
	SessionID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TraceEvent is one entry in a goal's timeline.
type TraceEvent struct {
	ID        int64
	GoalID    string
	EventType string
	Detail    string
	RiskMode  RiskMode
	CreatedAt time.Time
}

// Plan is the selected candidate for a goal.
type Plan struct {
	ID                  string
	GoalID              string
	IntentTag           string
	SelectedCandidateID string
	SelectedScore       float64
}

// Step is one step of a Plan, persisted after execution.
type Step struct {
	ID         string
	GoalID     string
	PlanID     string
	StepID     string
	ToolName   string
	Permission Permission
	Input      string
	Status     StepStatus
	Output     string
}

// Approval is a persisted gate on a capability-classed action.
type Approval struct {
	ID             string
	Nonce          string
	GoalID         string
	ToolName       string
	Capability     string
	Input          string
	Status         ApprovalStatus
	RequestedBy    string
	ResolvedBy     string
	DecisionReason string
	ExpiresAtMS    int64
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// ToolRun records a single tool invocation, keyed optionally to the
// approval that authorised it. Its existence is what "consumes" an approval.
type ToolRun struct {
	ID         string
	ApprovalID string
	ToolName   string
	Status     string
	Output     string
	CreatedAt  time.Time
}

// Session is the (channel, peer) conversation context.
type Session struct {
	ID               string
	Channel          string
	PeerID           string
	ModelOverride    string
	ModeOverride     string
	UsageMode        UsageMode
	ActivationMode   ActivationMode
	CompactionsCount int64
	QueueDepth       int64
	StopRequested    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MessageRole distinguishes transcript entries.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSummary   MessageRole = "summary"
)

// Message is one entry in a session transcript.
type Message struct {
	ID        int64
	SessionID string
	Role      MessageRole
	Content   string
	CreatedAt time.Time
}

// RuntimeRiskState is the process-wide singleton risk posture.
type RuntimeRiskState struct {
	RiskMode            RiskMode
	YoloArmedToken      string
	YoloArmedAtMS       int64
	YoloExpiresAtMS     int64
	YoloBypassPathGuard bool
	LastChangedAtMS     int64
	LastChangedBy       string
}

// InstalledSkill is a finalised skill install record.
type InstalledSkill struct {
	Slug            string
	Name            string
	Version         string
	Description     string
	Source          string
	Hash            string
	SignatureStatus SignatureStatus
	Scopes          []string
	AllowedPaths    []string
	AllowedHosts    []string
	LastRunGoalID   string
	InstalledAt     time.Time
}

// Connector is a configured external-API integration.
type Connector struct {
	ID             string
	Type           string
	DisplayName    string
	ConfigJSON     string
	LastTestAtMS   int64
	LastTestStatus string
	CreatedAt      time.Time
}

// EpisodicMemory is an append-only goal-scoped reflection summary.
type EpisodicMemory struct {
	ID        int64
	GoalID    string
	Summary   string
	Metadata  string
	CreatedAt time.Time
}

// SemanticFact is an append-only namespaced fact.
type SemanticFact struct {
	ID           int64
	Namespace    string
	Fact         string
	SourceGoalID string
	CreatedAt    time.Time
}

// ProceduralStrategy is an append-only namespaced strategy note.
type ProceduralStrategy struct {
	ID           int64
	Namespace    string
	Strategy     string
	SourceGoalID string
	CreatedAt    time.Time
}
