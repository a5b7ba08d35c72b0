package broker

import (
	"context"
	"sync"

	"github.com/antigravity-dev/titan/internal/titan/planner"
	"github.com/antigravity-dev/titan/internal/titan/policy"
	"github.com/antigravity-dev/titan/internal/titan/store"
	"github.com/antigravity-dev/titan/internal/titan/tools"
)

// GoalJob is one programmatically submitted unit of work.
type GoalJob struct {
	GoalID      string
	Description string
	DedupeKey   string
	MaxRetries  int
	cancelled   bool
}

// Queue is a FIFO of GoalJob with submit-time dedupe on DedupeKey and a
// cancellation set consulted at dequeue — a cancelled job is consumed but
// never executed.
type Queue struct {
	mu        sync.Mutex
	jobs      []*GoalJob
	dedupe    map[string]bool
	cancelled map[string]bool
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{
		dedupe:    make(map[string]bool),
		cancelled: make(map[string]bool),
	}
}

// Submit enqueues job unless its DedupeKey (when non-empty) has already
// been submitted. Returns false when the submission was a no-op dedupe.
func (q *Queue) Submit(job *GoalJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.DedupeKey != "" {
		if q.dedupe[job.DedupeKey] {
			return false
		}
		q.dedupe[job.DedupeKey] = true
	}
	q.jobs = append(q.jobs, job)
	return true
}

// Cancel marks goalID as cancelled. A cancelled job still in the queue is
// consumed (not executed) the next time it is dequeued.
func (q *Queue) Cancel(goalID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled[goalID] = true
}

// Len reports the number of jobs currently waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// dequeue pops the head of the queue, or nil if empty.
func (q *Queue) dequeue() *GoalJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if q.cancelled[job.GoalID] {
		job.cancelled = true
	}
	return job
}

// RunConfig bounds one RunNextFromQueue execution.
type RunConfig struct {
	Registry *tools.Registry
	EvalStep func(toolName string, capability store.Permission) policy.Result
	ExecCtx  tools.ExecutionContext
}

// RunNextOutcome is what RunNextFromQueue reports for telemetry and
// persistence.
type RunNextOutcome struct {
	Job         *GoalJob
	Cancelled   bool
	Attempts    int
	TraceEvents []string
	Result      Result
}

// RunNextFromQueue dequeues exactly one job from q and runs it to either
// completion, a required approval, or exhaustion of job.MaxRetries+1
// attempts. A cancelled job is reported with Cancelled=true and a
// goal_cancelled trace, never executed. classify turns the job's free-text
// description into a scored plan candidate via the planner.
func RunNextFromQueue(ctx context.Context, q *Queue, cfg RunConfig, classify func(description string) (planner.Intent, planner.Candidate)) *RunNextOutcome {
	job := q.dequeue()
	if job == nil {
		return nil
	}
	if job.cancelled {
		return &RunNextOutcome{Job: job, Cancelled: true, TraceEvents: []string{"goal_cancelled"}}
	}

	_, candidate := classify(job.Description)
	maxAttempts := job.MaxRetries + 1

	outcome := &RunNextOutcome{Job: job, TraceEvents: []string{"execution_started"}}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.Attempts = attempt

		res := RunPlan(ctx, cfg.Registry, cfg.EvalStep, candidate, cfg.ExecCtx)
		outcome.Result = res
		outcome.TraceEvents = append(outcome.TraceEvents, res.TraceEvents...)

		if res.GoalStatus == store.GoalCompleted || res.GoalStatus == store.GoalPending {
			return outcome
		}
		if attempt < maxAttempts {
			outcome.TraceEvents = append(outcome.TraceEvents, "retry_scheduled")
			continue
		}
	}
	return outcome
}
